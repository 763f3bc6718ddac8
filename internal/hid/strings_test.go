package hid

import "testing"

func TestDecodeStringDescriptor(t *testing.T) {
	// "EATON" as a string descriptor: bLength 12, type 0x03, UTF-16LE.
	buf := []byte{0x0C, 0x03, 'E', 0x00, 'A', 0x00, 'T', 0x00, 'O', 0x00, 'N', 0x00}
	if got := DecodeStringDescriptor(buf); got != "EATON" {
		t.Errorf("got %q, want EATON", got)
	}
}

func TestDecodeStringDescriptorSkipsNonLatin(t *testing.T) {
	// "A<U+4E2D>B" keeps only the Latin-1 code units.
	buf := []byte{0x08, 0x03, 'A', 0x00, 0x2D, 0x4E, 'B', 0x00}
	if got := DecodeStringDescriptor(buf); got != "AB" {
		t.Errorf("got %q, want AB", got)
	}
}

func TestDecodeStringDescriptorLatin1Supplement(t *testing.T) {
	// U+00E9 (e acute) stays, as a Latin-1 byte.
	buf := []byte{0x04, 0x03, 0xE9, 0x00}
	if got := DecodeStringDescriptor(buf); got != "\xe9" {
		t.Errorf("got %q, want \\xe9", got)
	}
}

func TestDecodeStringDescriptorTrailingIncompleteUnit(t *testing.T) {
	// bLength covers an odd trailing byte, which must be ignored.
	buf := []byte{0x05, 0x03, 'X', 0x00, 'Y'}
	if got := DecodeStringDescriptor(buf); got != "X" {
		t.Errorf("got %q, want X", got)
	}
}

func TestDecodeStringDescriptorLengthBeyondBuffer(t *testing.T) {
	buf := []byte{0xFF, 0x03, 'Z', 0x00}
	if got := DecodeStringDescriptor(buf); got != "Z" {
		t.Errorf("got %q, want Z", got)
	}
}

func TestDecodeStringDescriptorEmpty(t *testing.T) {
	if got := DecodeStringDescriptor(nil); got != "" {
		t.Errorf("got %q, want empty", got)
	}
	if got := DecodeStringDescriptor([]byte{0x02, 0x03}); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
