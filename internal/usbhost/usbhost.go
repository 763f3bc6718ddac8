// Package usbhost attaches to a USB HID power device with gousb and feeds
// the decoder Bus: report descriptor and device strings once per attach,
// then interrupt IN reports until the device goes away.
package usbhost

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/gousb"

	"upsbridge/internal/ups"
)

const (
	classHID = 0x03

	// Standard device requests.
	reqGetDescriptor  = 0x06
	descTypeDevice    = 0x0100
	descTypeString    = 0x0300
	descTypeHIDReport = 0x2200

	// bmRequestType values.
	ctrlInDevice    = 0x80 // IN | Standard | Device
	ctrlInInterface = 0x81 // IN | Standard | Interface

	maxDescriptorLen = 4096
	maxStringLen     = 255
	rescanInterval   = 3 * time.Second
	readTimeout      = 30 * time.Second
)

// Monitor owns the attach/detach cycle for one UPS. It scans for a matching
// device, delivers descriptors and reports to the Bus, and rescans after the
// device disappears.
type Monitor struct {
	bus    *ups.Bus
	vid    uint16 // 0 matches any
	pid    uint16 // 0 matches any
	rescan time.Duration
}

func NewMonitor(bus *ups.Bus, vid, pid uint16) *Monitor {
	return &Monitor{bus: bus, vid: vid, pid: pid, rescan: rescanInterval}
}

// Run scans and serves devices until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	for {
		if err := m.attachOnce(ctx, usbCtx); err != nil && !errors.Is(err, errNoDevice) {
			log.Printf("usbhost: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.rescan):
		}
	}
}

var errNoDevice = errors.New("no matching device")

// attachOnce opens the first matching device, runs one full attach cycle and
// returns when the device is removed or ctx is cancelled.
func (m *Monitor) attachOnce(ctx context.Context, usbCtx *gousb.Context) error {
	devs, err := usbCtx.OpenDevices(m.match)
	// OpenDevices can return both opened devices and an enumeration error.
	if len(devs) == 0 {
		if err != nil {
			return fmt.Errorf("enumerate: %w", err)
		}
		return errNoDevice
	}
	for _, d := range devs[1:] {
		d.Close()
	}
	dev := devs[0]
	defer dev.Close()

	if err := dev.SetAutoDetach(true); err != nil {
		log.Printf("usbhost: auto-detach: %v", err)
	}

	ifNum, epAddr, err := findHIDEndpoint(dev.Desc)
	if err != nil {
		return err
	}

	m.deliverDeviceInfo(dev)

	descriptor, err := fetchReportDescriptor(dev, ifNum)
	if err != nil {
		return fmt.Errorf("report descriptor: %w", err)
	}
	m.bus.OnDescriptor(descriptor)

	err = m.readReports(ctx, dev, ifNum, epAddr)
	m.bus.OnDeviceRemoved()
	return err
}

func (m *Monitor) match(desc *gousb.DeviceDesc) bool {
	if m.vid != 0 && uint16(desc.Vendor) != m.vid {
		return false
	}
	if m.pid != 0 && uint16(desc.Product) != m.pid {
		return false
	}
	_, _, err := findHIDEndpoint(desc)
	return err == nil
}

// findHIDEndpoint locates the first HID interface with an interrupt IN
// endpoint in configuration 1.
func findHIDEndpoint(desc *gousb.DeviceDesc) (ifNum int, epAddr int, err error) {
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if uint8(alt.Class) != classHID {
					continue
				}
				for _, ep := range alt.Endpoints {
					if ep.Direction == gousb.EndpointDirectionIn && ep.TransferType == gousb.TransferTypeInterrupt {
						return intf.Number, ep.Number, nil
					}
				}
			}
		}
	}
	return 0, 0, errors.New("no HID interrupt IN endpoint")
}

// deliverDeviceInfo fetches the raw manufacturer, product and serial string
// descriptors. The indexes come from the raw device descriptor; gousb does
// not expose them.
func (m *Monitor) deliverDeviceInfo(dev *gousb.Device) {
	raw := make([]byte, 18)
	n, err := dev.Control(ctrlInDevice, reqGetDescriptor, descTypeDevice, 0, raw)
	if err != nil || n < 17 {
		log.Printf("usbhost: device descriptor: %v", err)
		return
	}
	iManufacturer, iProduct, iSerial := raw[14], raw[15], raw[16]

	langID := fetchLangID(dev)
	m.bus.OnDeviceInfo(
		fetchStringDescriptor(dev, iManufacturer, langID),
		fetchStringDescriptor(dev, iProduct, langID),
		fetchStringDescriptor(dev, iSerial, langID),
	)
}

// fetchLangID reads string descriptor zero and returns the first supported
// language, falling back to US English.
func fetchLangID(dev *gousb.Device) uint16 {
	buf := make([]byte, maxStringLen)
	n, err := dev.Control(ctrlInDevice, reqGetDescriptor, descTypeString, 0, buf)
	if err != nil || n < 4 {
		return 0x0409
	}
	return uint16(buf[2]) | uint16(buf[3])<<8
}

func fetchStringDescriptor(dev *gousb.Device, index uint8, langID uint16) []byte {
	if index == 0 {
		return nil
	}
	buf := make([]byte, maxStringLen)
	n, err := dev.Control(ctrlInDevice, reqGetDescriptor, descTypeString|uint16(index), langID, buf)
	if err != nil || n < 2 {
		return nil
	}
	return buf[:n]
}

func fetchReportDescriptor(dev *gousb.Device, ifNum int) ([]byte, error) {
	buf := make([]byte, maxDescriptorLen)
	n, err := dev.Control(ctrlInInterface, reqGetDescriptor, descTypeHIDReport, uint16(ifNum), buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// readReports claims the HID interface and pumps interrupt IN transfers into
// the Bus until a transfer fails or ctx is cancelled.
func (m *Monitor) readReports(ctx context.Context, dev *gousb.Device, ifNum, epAddr int) error {
	cfg, err := dev.Config(1)
	if err != nil {
		return fmt.Errorf("claim config: %w", err)
	}
	defer cfg.Close()

	intf, err := cfg.Interface(ifNum, 0)
	if err != nil {
		return fmt.Errorf("claim interface %d: %w", ifNum, err)
	}
	defer intf.Close()

	ep, err := intf.InEndpoint(epAddr)
	if err != nil {
		return fmt.Errorf("open endpoint %d: %w", epAddr, err)
	}

	log.Printf("usbhost: attached %s, interface %d endpoint %d", dev.Desc.String(), ifNum, epAddr)

	buf := make([]byte, ep.Desc.MaxPacketSize)
	for {
		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		n, err := ep.ReadContext(readCtx, buf)
		timedOut := readCtx.Err() == context.DeadlineExceeded
		cancel()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if timedOut {
				// Idle UPS, nothing to report this interval.
				continue
			}
			return fmt.Errorf("interrupt read: %w", err)
		}
		if n > 0 {
			report := make([]byte, n)
			copy(report, buf[:n])
			m.bus.OnReport(report)
		}
	}
}
