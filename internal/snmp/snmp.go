// Package snmp watches the UPS connection state and notifies SNMP managers
// when it changes. Polling runs on a fixed cadence; edge detection lives
// here, not in the decoder.
package snmp

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/shirou/gopsutil/v3/host"

	"upsbridge/internal/ups"
)

// UPS MIB (RFC 1628) and SNMPv2 notification OIDs.
const (
	oidSNMPTrap             = ".1.3.6.1.6.3.1.1.4.1.0"
	oidSysName              = ".1.3.6.1.2.1.1.5.0"
	oidHrSystemUptime       = ".1.3.6.1.2.1.25.1.1.0"
	oidUPSAlarmAdded        = ".1.3.6.1.2.1.33.2.3" // upsTrapAlarmEntryAdded
	oidUPSAlarmRemoved      = ".1.3.6.1.2.1.33.2.4" // upsTrapAlarmEntryRemoved
	oidUPSChargeRemaining   = ".1.3.6.1.2.1.33.1.2.4.0"
	oidUPSMinutesRemaining  = ".1.3.6.1.2.1.33.1.2.3.0"
	defaultTrapPort         = 162
	trapTimeout             = 5 * time.Second
)

// TrapSender delivers connection-state notifications. Split out so the
// poller can be tested without a network.
type TrapSender interface {
	SendConnectionTrap(connected bool) error
	Close() error
}

// Sender emits SNMP v2c traps with gosnmp.
type Sender struct {
	client  *gosnmp.GoSNMP
	sysName string
	status  *ups.Status
}

// NewSender connects a trap session to destination ("host" or "host:port").
func NewSender(destination, community, sysName string, status *ups.Status) (*Sender, error) {
	target := destination
	port := uint16(defaultTrapPort)
	if h, p, err := net.SplitHostPort(destination); err == nil {
		target = h
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("snmp: bad trap port %q: %w", p, err)
		}
		port = uint16(n)
	}

	client := &gosnmp.GoSNMP{
		Target:    target,
		Port:      port,
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   trapTimeout,
		Retries:   1,
	}
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("snmp: connect %s: %w", destination, err)
	}
	return &Sender{client: client, sysName: sysName, status: status}, nil
}

// SendConnectionTrap notifies the manager of a connection edge. Disconnects
// raise upsTrapAlarmEntryAdded, reconnects upsTrapAlarmEntryRemoved; battery
// varbinds ride along when the corresponding fields are bound.
func (s *Sender) SendConnectionTrap(connected bool) error {
	trapOID := oidUPSAlarmAdded
	if connected {
		trapOID = oidUPSAlarmRemoved
	}

	vars := []gosnmp.SnmpPDU{
		{Name: oidSNMPTrap, Type: gosnmp.ObjectIdentifier, Value: trapOID},
		{Name: oidSysName, Type: gosnmp.OctetString, Value: s.sysName},
	}
	if uptime, err := host.Uptime(); err == nil {
		vars = append(vars, gosnmp.SnmpPDU{
			Name: oidHrSystemUptime, Type: gosnmp.TimeTicks, Value: uint32(uptime * 100),
		})
	}
	if charge, used := s.status.RemainingCapacity(); used {
		vars = append(vars, gosnmp.SnmpPDU{
			Name: oidUPSChargeRemaining, Type: gosnmp.Integer, Value: int(charge),
		})
	}
	if runtime, used := s.status.RuntimeToEmpty(); used {
		vars = append(vars, gosnmp.SnmpPDU{
			Name: oidUPSMinutesRemaining, Type: gosnmp.Integer, Value: int(runtime / 60),
		})
	}

	_, err := s.client.SendTrap(gosnmp.SnmpTrap{Variables: vars})
	return err
}

func (s *Sender) Close() error {
	if s.client.Conn != nil {
		return s.client.Conn.Close()
	}
	return nil
}

// Service polls the UPS connection flag and fires a trap on every edge.
type Service struct {
	status       *ups.Status
	sender       TrapSender // nil disables traps, edges are still logged
	interval     time.Duration
	wasConnected bool
}

func NewService(status *ups.Status, sender TrapSender, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Second
	}
	return &Service{status: status, sender: sender, interval: interval}
}

// Run polls until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Poll()
		}
	}
}

// Poll performs one edge check. Exported for tests and for callers with
// their own scheduling.
func (s *Service) Poll() {
	connected := s.status.Connected()
	if connected == s.wasConnected {
		return
	}
	s.wasConnected = connected

	if connected {
		log.Printf("snmp: UPS reconnected")
	} else {
		log.Printf("snmp: UPS disconnected")
	}
	if s.sender == nil {
		return
	}
	if err := s.sender.SendConnectionTrap(connected); err != nil {
		log.Printf("snmp: trap send failed: %v", err)
	}
}
