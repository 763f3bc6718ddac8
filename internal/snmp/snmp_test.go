package snmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upsbridge/internal/ups"
)

var capacityDescriptor = []byte{
	0x05, 0x85, 0x09, 0x66,
	0x15, 0x00, 0x25, 0x64,
	0x75, 0x08, 0x95, 0x01,
	0x85, 0x01, 0x81, 0x02,
}

type fakeSender struct {
	calls []bool
}

func (f *fakeSender) SendConnectionTrap(connected bool) error {
	f.calls = append(f.calls, connected)
	return nil
}

func (f *fakeSender) Close() error { return nil }

func TestPollNoEdgeNoTrap(t *testing.T) {
	device := ups.NewDevice()
	sender := &fakeSender{}
	svc := NewService(device.Status(), sender, 0)

	svc.Poll()
	svc.Poll()
	assert.Empty(t, sender.calls, "no trap without a connection edge")
}

func TestPollConnectEdge(t *testing.T) {
	device := ups.NewDevice()
	sender := &fakeSender{}
	svc := NewService(device.Status(), sender, 0)

	device.OnDescriptor(capacityDescriptor)
	svc.Poll()

	require.Len(t, sender.calls, 1)
	assert.True(t, sender.calls[0], "connect edge must report connected")

	// Steady state, no further traps.
	svc.Poll()
	assert.Len(t, sender.calls, 1)
}

func TestPollDisconnectEdge(t *testing.T) {
	device := ups.NewDevice()
	sender := &fakeSender{}
	svc := NewService(device.Status(), sender, 0)

	device.OnDescriptor(capacityDescriptor)
	svc.Poll()
	device.OnDeviceRemoved()
	svc.Poll()

	require.Len(t, sender.calls, 2)
	assert.False(t, sender.calls[1], "disconnect edge must report disconnected")
}

func TestPollWithoutSender(t *testing.T) {
	device := ups.NewDevice()
	svc := NewService(device.Status(), nil, 0)

	device.OnDescriptor(capacityDescriptor)
	assert.NotPanics(t, func() { svc.Poll() })
}
