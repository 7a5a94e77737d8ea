package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.bug.st/serial/enumerator"
)

func TestParseUSBID(t *testing.T) {
	tests := []struct {
		in   string
		want uint16
	}{
		{in: "10C4", want: 0x10C4},
		{in: "ea60", want: 0xEA60},
		{in: "0x2341", want: 0x2341},
		{in: " 1a86 ", want: 0x1A86},
		{in: "", want: 0},
		{in: "zzzz", want: 0},
		{in: "123456", want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseUSBID(tt.in), "parseUSBID(%q)", tt.in)
	}
}

func TestPortInfoFrom(t *testing.T) {
	usb := portInfoFrom(&enumerator.PortDetails{
		Name:         "/dev/ttyUSB0",
		IsUSB:        true,
		VID:          "10c4",
		PID:          "ea60",
		SerialNumber: "0001",
		Product:      "CP2102 USB to UART Bridge Controller",
	})
	assert.True(t, usb.Matches(DefaultVID, DefaultPID))
	assert.Equal(t, "/dev/ttyUSB0 [10C4:EA60] CP2102 USB to UART Bridge Controller (sn 0001)", usb.String())

	native := portInfoFrom(&enumerator.PortDetails{Name: "/dev/ttyS0", VID: "10c4"})
	assert.False(t, native.Matches(DefaultVID, DefaultPID))
	assert.Equal(t, uint16(0), native.VID)
	assert.Equal(t, "/dev/ttyS0", native.String())
}

func TestSelectPort(t *testing.T) {
	ports := []PortInfo{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: 0x2341, PID: 0x0043},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: DefaultVID, PID: DefaultPID},
	}

	p, err := selectPort(ports, DefaultVID, DefaultPID)
	assert.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", p.Name)

	_, err = selectPort(ports, 0x0403, 0x6001)
	assert.True(t, errors.Is(err, ErrNoDevice))
}
