package transport

import (
	"fmt"
	"strconv"
	"strings"

	"go.bug.st/serial/enumerator"
)

// USB identifiers of the CP210x bridge on the acquisition board.
const (
	DefaultVID uint16 = 0x10C4
	DefaultPID uint16 = 0xEA60
)

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          uint16
	PID          uint16
	SerialNumber string
	Product      string
}

func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	desc := fmt.Sprintf("%s [%04X:%04X]", p.Name, p.VID, p.PID)
	if p.Product != "" {
		desc += " " + p.Product
	}
	if p.SerialNumber != "" {
		desc += " (sn " + p.SerialNumber + ")"
	}
	return desc
}

// Matches reports whether the port is a USB device with the given ids.
func (p PortInfo) Matches(vid, pid uint16) bool {
	return p.IsUSB && p.VID == vid && p.PID == pid
}

// ListPorts enumerates serial ports with USB details where available.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, portInfoFrom(d))
	}
	return ports, nil
}

// FindPort returns the first port whose USB ids match.
func FindPort(vid, pid uint16) (PortInfo, error) {
	ports, err := ListPorts()
	if err != nil {
		return PortInfo{}, err
	}
	return selectPort(ports, vid, pid)
}

func selectPort(ports []PortInfo, vid, pid uint16) (PortInfo, error) {
	for _, p := range ports {
		if p.Matches(vid, pid) {
			return p, nil
		}
	}
	return PortInfo{}, fmt.Errorf("%w (VID=0x%04X PID=0x%04X)", ErrNoDevice, vid, pid)
}

func portInfoFrom(d *enumerator.PortDetails) PortInfo {
	info := PortInfo{
		Name:         d.Name,
		IsUSB:        d.IsUSB,
		SerialNumber: d.SerialNumber,
		Product:      d.Product,
	}
	if d.IsUSB {
		info.VID = parseUSBID(d.VID)
		info.PID = parseUSBID(d.PID)
	}
	return info
}

// parseUSBID accepts "10c4", "10C4" or "0x10C4".
func parseUSBID(s string) uint16 {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}
