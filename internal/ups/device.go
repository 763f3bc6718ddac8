package ups

import (
	"log"
	"time"

	"upsbridge/internal/hid"
)

// Device owns the descriptor parser, the report decoder and the Status they
// populate. The USB adapter drives it through the Bus callbacks; network
// consumers read the Status.
type Device struct {
	status  *Status
	decoder *hid.Decoder
	watched []hid.Watched
	now     func() time.Time
}

// Option configures a Device.
type Option func(*Device)

// WithoutReportIDs configures the decoder for devices that use a single
// unnumbered report. Not observed on UPS-class hardware; the default is
// report IDs present.
func WithoutReportIDs() Option {
	return func(d *Device) {
		d.decoder = hid.NewDecoder(false)
	}
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Device) {
		d.now = now
	}
}

func NewDevice(opts ...Option) *Device {
	d := &Device{
		status:  NewStatus(),
		decoder: hid.NewDecoder(true),
		watched: hid.PowerDeviceUsages,
		now:     time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Status returns the shared status snapshot container.
func (d *Device) Status() *Status {
	return d.status
}

// OnDescriptor parses a freshly delivered report descriptor and installs the
// resulting bindings. A parse failure discards all bindings and leaves the
// device disconnected; the next descriptor delivery retries.
func (d *Device) OnDescriptor(descriptor []byte) {
	bindings, err := hid.Parse(descriptor, d.watched)
	if err != nil {
		log.Printf("ups: descriptor parse failed: %v", err)
		d.decoder.SetBindings(nil)
		d.status.setConnected(false)
		return
	}
	d.decoder.SetBindings(bindings)
	d.status.setConnected(len(bindings) > 0)
	log.Printf("ups: descriptor parsed, %d of %d watched usages bound", len(bindings), len(d.watched))
}

// OnReport decodes one interrupt IN report into the status table. Reports
// whose ID matches no binding are dropped silently.
func (d *Device) OnReport(payload []byte) {
	now := d.now()
	for _, sample := range d.decoder.Decode(payload) {
		d.status.store(sample, now)
	}
}

// OnDeviceInfo installs the device-identity strings, each delivered as a raw
// UTF-16LE string descriptor buffer.
func (d *Device) OnDeviceInfo(manufacturer, product, serial []byte) {
	d.status.setDeviceInfo(
		hid.DecodeStringDescriptor(manufacturer),
		hid.DecodeStringDescriptor(product),
		hid.DecodeStringDescriptor(serial),
	)
}

// OnDeviceRemoved clears bindings, fields and strings. Removal is a normal
// transition, never an error.
func (d *Device) OnDeviceRemoved() {
	log.Printf("ups: device removed")
	d.decoder.SetBindings(nil)
	d.status.clear()
}
