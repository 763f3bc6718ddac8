// Package ups holds the decoded state of the attached UPS and the callback
// contract the USB adapter drives.
package ups

import (
	"sync"
	"time"

	"upsbridge/internal/hid"
)

// FieldValue is the last decoded value of one watched data point.
type FieldValue struct {
	Used       bool
	Value      float64
	Boolean    bool
	LastUpdate time.Time
}

// Status is a thread-safe snapshot of the attached UPS. The decoder task is
// the only writer; HTTP handlers and the SNMP poller read from other
// goroutines. One mutex guards the whole struct.
type Status struct {
	mu           sync.RWMutex
	connected    bool
	manufacturer string
	model        string
	serial       string
	fields       map[hid.Key]FieldValue
	names        map[hid.Key]string
}

func NewStatus() *Status {
	return &Status{
		fields: map[hid.Key]FieldValue{},
		names:  map[hid.Key]string{},
	}
}

// Connected reports whether a UPS is attached with a parsed descriptor.
func (s *Status) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Status) setConnected(c bool) {
	s.mu.Lock()
	s.connected = c
	s.mu.Unlock()
}

func (s *Status) Manufacturer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manufacturer
}

func (s *Status) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

func (s *Status) Serial() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serial
}

func (s *Status) setDeviceInfo(manufacturer, model, serial string) {
	s.mu.Lock()
	s.manufacturer = manufacturer
	s.model = model
	s.serial = serial
	s.mu.Unlock()
}

func (s *Status) store(sample hid.Sample, now time.Time) {
	s.mu.Lock()
	s.fields[sample.Key] = FieldValue{
		Used:       true,
		Value:      sample.Value,
		Boolean:    sample.Boolean,
		LastUpdate: now,
	}
	s.names[sample.Key] = sample.Name
	s.mu.Unlock()
}

// clear wipes every field, the device strings and the connected flag in one
// critical section, as the device-removed path requires.
func (s *Status) clear() {
	s.mu.Lock()
	s.connected = false
	s.manufacturer = ""
	s.model = ""
	s.serial = ""
	s.fields = map[hid.Key]FieldValue{}
	s.names = map[hid.Key]string{}
	s.mu.Unlock()
}

// Field returns the value stored under key. Used is false when the field was
// never decoded this attach cycle.
func (s *Status) Field(key hid.Key) FieldValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields[key]
}

func (s *Status) field(usage uint16) (float64, bool) {
	v := s.Field(hid.Key{Page: hid.BatterySystemPage, Usage: usage})
	return v.Value, v.Used
}

// RemainingCapacity returns the battery charge in percent.
func (s *Status) RemainingCapacity() (float64, bool) {
	return s.field(hid.UsageRemainingCapacity)
}

// ACPresent reports whether mains power is present.
func (s *Status) ACPresent() (float64, bool) {
	return s.field(hid.UsageACPresent)
}

func (s *Status) Charging() (float64, bool) {
	return s.field(hid.UsageCharging)
}

func (s *Status) Discharging() (float64, bool) {
	return s.field(hid.UsageDischarging)
}

func (s *Status) BatteryPresent() (float64, bool) {
	return s.field(hid.UsageBatteryPresent)
}

func (s *Status) NeedsReplacement() (float64, bool) {
	return s.field(hid.UsageNeedsReplacement)
}

// RuntimeToEmpty returns the estimated runtime in seconds.
func (s *Status) RuntimeToEmpty() (float64, bool) {
	return s.field(hid.UsageRuntimeToEmpty)
}

// Snapshot renders the status as the JSON projection served on /status:
// {"status":"offline"} when no UPS is attached, otherwise
// {"status":"online","UPS":{...}} with one entry per used field (booleans as
// true/false) plus the device strings.
func (s *Status) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return map[string]any{"status": "offline"}
	}
	fields := map[string]any{}
	for key, v := range s.fields {
		if !v.Used {
			continue
		}
		name := s.names[key]
		if v.Boolean {
			fields[name] = v.Value != 0
		} else {
			fields[name] = v.Value
		}
	}
	fields["manufacturer"] = s.manufacturer
	fields["model"] = s.model
	fields["serial"] = s.serial
	return map[string]any{
		"status": "online",
		"UPS":    fields,
	}
}
