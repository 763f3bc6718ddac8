package hid

import (
	"log"
	"math"
)

// Sample is one decoded data point from an input report.
type Sample struct {
	Key     Key
	Name    string
	Value   float64
	Boolean bool
}

// Decoder turns raw HID input reports into physical values using the
// bindings produced by Parse. A Decoder is not safe for concurrent use;
// reports arrive in FIFO order from a single interrupt endpoint.
type Decoder struct {
	bindings        []FieldBinding
	reportIDPresent bool

	// keys whose degenerate logical range was already reported this attach
	warned map[Key]bool
}

// NewDecoder returns a decoder with no bindings. reportIDPresent selects
// whether byte 0 of each report payload is the report ID; UPS-class devices
// always multiplex reports, so the bridge defaults this to true.
func NewDecoder(reportIDPresent bool) *Decoder {
	return &Decoder{reportIDPresent: reportIDPresent, warned: map[Key]bool{}}
}

// SetBindings installs the bindings for a new attach cycle and resets the
// per-attach diagnostics.
func (d *Decoder) SetBindings(bindings []FieldBinding) {
	d.bindings = bindings
	d.warned = map[Key]bool{}
}

// Bindings returns the installed bindings.
func (d *Decoder) Bindings() []FieldBinding {
	return d.bindings
}

// Decode extracts every bound field carried by one input report. A report
// whose ID matches no binding returns an empty slice; decode failures are
// per-field and skip just that field.
func (d *Decoder) Decode(payload []byte) []Sample {
	var id uint8
	data := payload
	if d.reportIDPresent {
		if len(payload) == 0 {
			return nil
		}
		id = payload[0]
		data = payload[1:]
	}

	var samples []Sample
	for _, b := range d.bindings {
		if b.ReportID != id {
			continue
		}
		raw, ok := extractBits(data, b.BitOffset, b.BitWidth)
		if !ok {
			continue
		}
		if b.Boolean() {
			samples = append(samples, Sample{Key: b.Key, Name: b.Name, Value: float64(raw), Boolean: true})
			continue
		}
		if b.LogicalMax == b.LogicalMin {
			if !d.warned[b.Key] {
				log.Printf("hid: %s has degenerate logical range [%d, %d], skipping", b.Name, b.LogicalMin, b.LogicalMax)
				d.warned[b.Key] = true
			}
			continue
		}
		v := int64(raw)
		if b.Signed && raw&(1<<(b.BitWidth-1)) != 0 {
			v = int64(raw) - (1 << b.BitWidth)
		}
		phys := (float64(v)-float64(b.LogicalMin))*
			(float64(b.PhysicalMax)-float64(b.PhysicalMin))/
			(float64(b.LogicalMax)-float64(b.LogicalMin)) +
			float64(b.PhysicalMin)
		phys *= math.Pow(10, float64(b.UnitExponent))
		samples = append(samples, Sample{Key: b.Key, Name: b.Name, Value: phys})
	}
	return samples
}

// extractBits reads width bits starting at bit off from data, LSB-first
// within each byte and little-endian across bytes (HID report convention).
// ok is false when the range falls outside the payload.
func extractBits(data []byte, off, width uint32) (uint64, bool) {
	if width == 0 || width > 64 || off+width > uint32(len(data))*8 {
		return 0, false
	}
	var v uint64
	for i := uint32(0); i < width; i++ {
		bit := off + i
		if data[bit/8]>>(bit%8)&1 == 1 {
			v |= 1 << i
		}
	}
	return v, true
}
