package transport

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Serial defaults matching the acquisition firmware.
const (
	DefaultBaudRate       = 115200
	DefaultSerialReadPoll = 100 * time.Millisecond
)

// SerialTarget opens a serial port in 8N1 mode.
type SerialTarget struct {
	Port     string
	BaudRate int

	// ReadTimeout bounds each Read so the reader can notice Disconnect.
	ReadTimeout time.Duration
}

var _ Target = SerialTarget{}

func (t SerialTarget) baud() int {
	if t.BaudRate <= 0 {
		return DefaultBaudRate
	}
	return t.BaudRate
}

// Open opens and configures the port, discarding stale input.
func (t SerialTarget) Open(ctx context.Context) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.Port == "" {
		return nil, fmt.Errorf("serial port not specified")
	}

	mode := &serial.Mode{
		BaudRate: t.baud(),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(t.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", t.Port, err)
	}

	timeout := t.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultSerialReadPoll
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to flush input: %w", err)
	}
	return port, nil
}

func (t SerialTarget) String() string {
	return fmt.Sprintf("serial:%s@%d", t.Port, t.baud())
}
