package hid

// BatterySystemPage is the HID usage page for Power Device battery systems
// (Usage Tables for HID Power Devices, section 4).
const BatterySystemPage = 0x0085

// Watched battery-system usages.
const (
	UsageRemainingCapacity = 0x66
	UsageACPresent         = 0xD0
	UsageCharging          = 0x44
	UsageDischarging       = 0x45
	UsageBatteryPresent    = 0xD1
	UsageNeedsReplacement  = 0x4B
	UsageRuntimeToEmpty    = 0x68
)

// Key identifies a HID data item by usage page and usage.
type Key struct {
	Page  uint16
	Usage uint16
}

// Watched names a (page, usage) pair the descriptor parser binds when it is
// seen on an Input item.
type Watched struct {
	Key  Key
	Name string
}

// PowerDeviceUsages is the fixed set of battery-system data points the
// bridge tracks.
var PowerDeviceUsages = []Watched{
	{Key{BatterySystemPage, UsageRemainingCapacity}, "Remaining Capacity"},
	{Key{BatterySystemPage, UsageACPresent}, "AC Present"},
	{Key{BatterySystemPage, UsageCharging}, "Charging"},
	{Key{BatterySystemPage, UsageDischarging}, "Discharging"},
	{Key{BatterySystemPage, UsageBatteryPresent}, "Battery Present"},
	{Key{BatterySystemPage, UsageNeedsReplacement}, "Needs Replacement"},
	{Key{BatterySystemPage, UsageRuntimeToEmpty}, "Runtime To Empty"},
}

// FieldBinding maps a watched usage to the exact bits of one input report.
// Bindings are immutable once the parser returns them and stay valid until
// the next attach cycle.
type FieldBinding struct {
	Key          Key
	Name         string
	ReportID     uint8
	BitOffset    uint32 // from bit 0 of the payload, excluding the report-ID byte
	BitWidth     uint32
	LogicalMin   int32
	LogicalMax   int32
	PhysicalMin  int32
	PhysicalMax  int32
	UnitExponent int32
	Signed       bool
}

// Boolean reports whether the field is a single-bit flag. Width-1 fields
// bypass scaling and decode to 0 or 1.
func (b FieldBinding) Boolean() bool {
	return b.BitWidth == 1
}
