package ups

// Bus is the callback contract between the USB adapter and the decoder. The
// adapter receives a Bus by reference and invokes the callbacks from its
// transfer loop; nothing in the decoder reaches back into USB state.
type Bus struct {
	// OnDescriptor delivers the raw HID report descriptor, setup header
	// already stripped, once per device attach.
	OnDescriptor func(descriptor []byte)

	// OnReport delivers one raw input report from the interrupt IN endpoint.
	OnReport func(payload []byte)

	// OnDeviceInfo delivers the manufacturer, product and serial string
	// descriptors as raw UTF-16LE buffers.
	OnDeviceInfo func(manufacturer, product, serial []byte)

	// OnDeviceRemoved signals device detach. No payload.
	OnDeviceRemoved func()
}

// Bus returns a Bus wired to the device's handlers.
func (d *Device) Bus() *Bus {
	return &Bus{
		OnDescriptor:    d.OnDescriptor,
		OnReport:        d.OnReport,
		OnDeviceInfo:    d.OnDeviceInfo,
		OnDeviceRemoved: d.OnDeviceRemoved,
	}
}
