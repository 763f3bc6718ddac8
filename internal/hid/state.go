package hid

// opt is an item value that may not have been seen yet. HID distinguishes
// "not declared" from "declared as zero" for several global items.
type opt[T any] struct {
	v  T
	ok bool
}

func (o *opt[T]) set(v T) {
	o.v = v
	o.ok = true
}

func (o opt[T]) or(def T) T {
	if o.ok {
		return o.v
	}
	return def
}

// globalState accumulates Global items. Each field persists across Main
// items until overwritten, pushed or popped (HID 1.11 section 6.2.2.7).
type globalState struct {
	usagePage    opt[uint16]
	logicalMin   opt[int32]
	logicalMax   opt[int32]
	physicalMin  opt[int32]
	physicalMax  opt[int32]
	unitExponent opt[int32]
	unit         opt[uint32]
	reportSize   opt[uint32]
	reportID     opt[uint8]
	reportCount  opt[uint32]
}

func (g *globalState) apply(tag uint8, payload []byte) {
	switch tag {
	case TagUsagePage:
		g.usagePage.set(uint16(toUnsigned(payload)))
	case TagLogicalMin:
		g.logicalMin.set(toSigned(payload))
	case TagLogicalMax:
		g.logicalMax.set(toSigned(payload))
	case TagPhysicalMin:
		g.physicalMin.set(toSigned(payload))
	case TagPhysicalMax:
		g.physicalMax.set(toSigned(payload))
	case TagUnitExponent:
		g.unitExponent.set(unitExponent(payload))
	case TagUnit:
		g.unit.set(toUnsigned(payload))
	case TagReportSize:
		g.reportSize.set(toUnsigned(payload))
	case TagReportID:
		g.reportID.set(uint8(toUnsigned(payload)))
	case TagReportCount:
		g.reportCount.set(toUnsigned(payload))
	}
}

// localState accumulates Local items. It is cleared after every Main item
// (HID 1.11 section 6.2.2.8).
type localState struct {
	usages   []uint32
	usageMin opt[uint32]
	usageMax opt[uint32]
}

func (l *localState) apply(tag uint8, payload []byte) {
	switch tag {
	case TagUsage:
		l.usages = append(l.usages, toUnsigned(payload))
	case TagUsageMin:
		l.usageMin.set(toUnsigned(payload))
	case TagUsageMax:
		l.usageMax.set(toUnsigned(payload))
	}
}

func (l *localState) reset() {
	*l = localState{}
}

// usageFor resolves the usage for logical field i of a Main item. When the
// usage list is shorter than the report count, the last listed usage applies
// to the remaining fields; a declared Usage Minimum starts a range.
func (l *localState) usageFor(i uint32) (uint32, bool) {
	if int(i) < len(l.usages) {
		return l.usages[i], true
	}
	if len(l.usages) > 0 {
		return l.usages[len(l.usages)-1], true
	}
	if l.usageMin.ok {
		u := l.usageMin.v + i
		if l.usageMax.ok && u > l.usageMax.v {
			u = l.usageMax.v
		}
		return u, true
	}
	return 0, false
}
