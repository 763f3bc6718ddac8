package hid

import (
	"errors"
	"fmt"
	"log"
)

// MaxDescriptorSize bounds the report descriptors the parser accepts. UPS
// descriptors observed in the field are a few hundred bytes.
const MaxDescriptorSize = 4096

// maxGlobalStack bounds Push/Pop nesting.
const maxGlobalStack = 8

// Descriptor parse failures. Errors are wrapped with the offending byte
// offset where one is known.
var (
	ErrTruncatedDescriptor = errors.New("hid: truncated descriptor")
	ErrUnbalancedPushPop   = errors.New("hid: pop without matching push")
	ErrStackOverflow       = errors.New("hid: global state stack overflow")
	ErrDescriptorTooLarge  = errors.New("hid: descriptor too large")
)

// Parse walks a raw HID report descriptor and returns one FieldBinding per
// watched usage found on an Input item. A usage seen on more than one report
// binds only once, first wins. Parsing uses only local state; on error no
// bindings are returned.
func Parse(descriptor []byte, watched []Watched) ([]FieldBinding, error) {
	if len(descriptor) > MaxDescriptorSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrDescriptorTooLarge, len(descriptor))
	}

	var (
		global    globalState
		local     localState
		stack     []globalState
		bindings  []FieldBinding
		bitCursor = map[uint8]uint32{}
		depth     int
	)

	bound := func(k Key) bool {
		for _, b := range bindings {
			if b.Key == k {
				return true
			}
		}
		return false
	}

	stream := NewItemStream(descriptor)
	for {
		item, ok, err := stream.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if item.Long {
			log.Printf("hid: skipping long item tag 0x%02x at byte %d", item.LongTag, item.Offset)
			continue
		}

		switch item.Prefix.Type {
		case ItemGlobal:
			switch item.Prefix.Tag {
			case TagPush:
				if len(stack) >= maxGlobalStack {
					return nil, fmt.Errorf("%w: at byte %d", ErrStackOverflow, item.Offset)
				}
				stack = append(stack, global)
			case TagPop:
				if len(stack) == 0 {
					return nil, fmt.Errorf("%w: at byte %d", ErrUnbalancedPushPop, item.Offset)
				}
				global = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
			default:
				global.apply(item.Prefix.Tag, item.Payload)
				if item.Prefix.Tag == TagReportID {
					id := global.reportID.or(0)
					if _, ok := bitCursor[id]; !ok {
						bitCursor[id] = 0
					}
				}
			}

		case ItemLocal:
			local.apply(item.Prefix.Tag, item.Payload)

		case ItemMain:
			switch item.Prefix.Tag {
			case TagCollection:
				depth++
			case TagEndCollection:
				if depth > 0 {
					depth--
				}
			case TagInput, TagOutput, TagFeature:
				size := global.reportSize.or(0)
				count := global.reportCount.or(0)
				id := global.reportID.or(0)
				before := bitCursor[id]

				if item.Prefix.Tag == TagInput && size > 0 {
					for i := uint32(0); i < count; i++ {
						usage, ok := local.usageFor(i)
						if !ok {
							continue
						}
						key := resolveKey(global.usagePage.or(0), usage)
						if !isWatched(watched, key) || bound(key) {
							continue
						}
						lmin := global.logicalMin.or(0)
						lmax := global.logicalMax.or(0)
						b := FieldBinding{
							Key:          key,
							Name:         watchedName(watched, key),
							ReportID:     id,
							BitOffset:    before + i*size,
							BitWidth:     size,
							LogicalMin:   lmin,
							LogicalMax:   lmax,
							UnitExponent: global.unitExponent.or(0),
							Signed:       lmin < 0,
						}
						b.PhysicalMin, b.PhysicalMax = resolvePhysical(global, lmin, lmax)
						bindings = append(bindings, b)
					}
				}
				bitCursor[id] = before + size*count
			}
			local.reset()
		}
	}
	if depth != 0 {
		log.Printf("hid: descriptor leaves %d collection(s) open", depth)
	}
	return bindings, nil
}

// resolveKey splits an extended (4-byte) usage into page and usage; short
// usages take the page from the current Usage Page item.
func resolveKey(page uint16, usage uint32) Key {
	if usage > 0xFFFF {
		return Key{Page: uint16(usage >> 16), Usage: uint16(usage)}
	}
	return Key{Page: page, Usage: uint16(usage)}
}

// resolvePhysical applies the HID defaulting rule: absent or all-zero
// physical bounds mean identity scaling against the logical range.
func resolvePhysical(g globalState, lmin, lmax int32) (int32, int32) {
	if !g.physicalMin.ok || !g.physicalMax.ok {
		return lmin, lmax
	}
	if g.physicalMin.v == 0 && g.physicalMax.v == 0 {
		return lmin, lmax
	}
	return g.physicalMin.v, g.physicalMax.v
}

func isWatched(watched []Watched, k Key) bool {
	for _, w := range watched {
		if w.Key == k {
			return true
		}
	}
	return false
}

func watchedName(watched []Watched, k Key) string {
	for _, w := range watched {
		if w.Key == k {
			return w.Name
		}
	}
	return ""
}
