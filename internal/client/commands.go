package client

import (
	"go.uber.org/zap"

	"github.com/kineintra/kineintra/internal/protocol"
)

// Command methods validate their arguments, then send one COMMAND frame.
// They never wait for the ACK: match it by seq through OnAck or Poll.
// A nil error means the frame was written.

func (c *Client) GetStatus(seq uint8) error {
	return c.send(protocol.NewGetStatus(seq))
}

func (c *Client) StartMeasure(seq uint8) error {
	return c.send(protocol.NewStartMeasure(seq))
}

func (c *Client) StopMeasure(seq uint8) error {
	return c.send(protocol.NewStopMeasure(seq))
}

// SetSensorCount sets the number of connected sensors, 0..32.
func (c *Client) SetSensorCount(seq uint8, n int) error {
	if err := checkRange("sensor count", n, 0, protocol.MaxSensors); err != nil {
		return err
	}
	return c.send(protocol.NewSetSensorCount(seq, uint8(n)))
}

// SetRate sets the sample rate of sensor idx in Hz.
func (c *Client) SetRate(seq uint8, idx, hz int) error {
	if err := checkRange("sensor index", idx, 0, protocol.MaxSensors-1); err != nil {
		return err
	}
	if err := checkRange("rate", hz, 0, 0xFFFF); err != nil {
		return err
	}
	return c.send(protocol.NewSetRate(seq, uint8(idx), uint16(hz)))
}

// SetBits sets the sample width of sensor idx, 1..32 bits.
func (c *Client) SetBits(seq uint8, idx, bits int) error {
	if err := checkRange("sensor index", idx, 0, protocol.MaxSensors-1); err != nil {
		return err
	}
	if err := checkRange("bits", bits, 1, 32); err != nil {
		return err
	}
	return c.send(protocol.NewSetBits(seq, uint8(idx), uint8(bits)))
}

// SetActiveMap enables the sensors marked true. sensors must describe
// exactly n sensors.
func (c *Client) SetActiveMap(seq uint8, sensors map[int]bool, n int) error {
	m, err := ActiveMap(sensors, n)
	if err != nil {
		return err
	}
	return c.send(protocol.NewSetActiveMap(seq, m))
}

// SetActiveBitmap sends a raw active map.
func (c *Client) SetActiveBitmap(seq uint8, activeMap uint32) error {
	return c.send(protocol.NewSetActiveMap(seq, activeMap))
}

func (c *Client) Calibrate(seq uint8, mode uint8) error {
	return c.send(protocol.NewCalibrate(seq, mode))
}

func (c *Client) StopCalibrate(seq uint8) error {
	return c.send(protocol.NewStopCalibrate(seq))
}

func (c *Client) EndCalibrate(seq uint8) error {
	return c.send(protocol.NewEndCalibrate(seq))
}

// ActiveMap builds a 32-bit active map from a sensor index mapping.
func ActiveMap(sensors map[int]bool, n int) (uint32, error) {
	if err := checkRange("sensor count", n, 0, protocol.MaxSensors); err != nil {
		return 0, err
	}
	if len(sensors) != n {
		return 0, &ValidationError{Field: "sensor mapping length", Value: len(sensors), Reason: "must match sensor count"}
	}
	var m uint32
	for idx, on := range sensors {
		if err := checkRange("sensor index", idx, 0, protocol.MaxSensors-1); err != nil {
			return 0, err
		}
		if on {
			m |= 1 << uint(idx)
		}
	}
	return m, nil
}

func (c *Client) send(cmd protocol.CommandPayload) error {
	if !c.conn.IsConnected() {
		return ErrNotConnected
	}
	raw, err := protocol.BuildCommand(cmd)
	if err != nil {
		return err
	}
	if err := c.conn.Send(raw); err != nil {
		c.log.Warn("Send failed", zap.Stringer("cmd", cmd.ID), zap.Uint8("seq", cmd.Seq), zap.Error(err))
		return err
	}
	c.log.Debug("Sent command", zap.Stringer("cmd", cmd.ID), zap.Uint8("seq", cmd.Seq))
	return nil
}
