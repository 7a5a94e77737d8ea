package protocol

import (
	"encoding/binary"
	"fmt"
)

// CommandPayload is a host request. Seq is chosen by the caller and echoed
// back in the matching ACK.
type CommandPayload struct {
	ID   CommandID
	Seq  uint8
	Args []byte
}

func (CommandPayload) Kind() Kind { return KindCommand }

func (c CommandPayload) String() string {
	return fmt.Sprintf("Command{id=%s, seq=%d, args=% x}", c.ID, c.Seq, c.Args)
}

// EncodeCommand serializes c as cmd_id, seq, args. Known commands must carry
// exactly their fixed argument length.
func EncodeCommand(c CommandPayload) ([]byte, error) {
	if want, ok := c.ID.ArgLen(); ok && len(c.Args) != want {
		return nil, fmt.Errorf("%w: %s takes %d argument bytes, got %d", ErrInvalidArgument, c.ID, want, len(c.Args))
	}
	p := make([]byte, 2+len(c.Args))
	p[0] = byte(c.ID)
	p[1] = c.Seq
	copy(p[2:], c.Args)
	return p, nil
}

// DecodeCommand parses a COMMAND payload. Unknown command identifiers are
// returned without error so the device side can answer INVALID_COMMAND with
// the right sequence number.
func DecodeCommand(p []byte) (CommandPayload, error) {
	var c CommandPayload
	if len(p) < 2 {
		return c, lengthErr(KindCommand, len(p), 2)
	}
	c.ID = CommandID(p[0])
	c.Seq = p[1]
	c.Args = append([]byte(nil), p[2:]...)
	if want, ok := c.ID.ArgLen(); ok && len(c.Args) != want {
		return c, lengthErr(KindCommand, len(p), 2+want)
	}
	return c, nil
}

// Typed argument accessors. They assume the payload went through
// DecodeCommand or one of the New* constructors.

func (c CommandPayload) SensorCount() uint8 { return c.Args[0] }

func (c CommandPayload) Rate() (idx uint8, hz uint16) {
	return c.Args[0], binary.LittleEndian.Uint16(c.Args[1:3])
}

func (c CommandPayload) Bits() (idx uint8, bits uint8) { return c.Args[0], c.Args[1] }

func (c CommandPayload) ActiveMap() uint32 { return binary.LittleEndian.Uint32(c.Args[0:4]) }

func (c CommandPayload) Mode() uint8 { return c.Args[0] }

// Constructors

func NewGetStatus(seq uint8) CommandPayload {
	return CommandPayload{ID: CmdGetStatus, Seq: seq}
}

func NewStartMeasure(seq uint8) CommandPayload {
	return CommandPayload{ID: CmdStartMeasure, Seq: seq}
}

func NewStopMeasure(seq uint8) CommandPayload {
	return CommandPayload{ID: CmdStopMeasure, Seq: seq}
}

func NewSetSensorCount(seq, n uint8) CommandPayload {
	return CommandPayload{ID: CmdSetSensorCount, Seq: seq, Args: []byte{n}}
}

func NewSetRate(seq, idx uint8, hz uint16) CommandPayload {
	args := make([]byte, 3)
	args[0] = idx
	binary.LittleEndian.PutUint16(args[1:], hz)
	return CommandPayload{ID: CmdSetRate, Seq: seq, Args: args}
}

func NewSetBits(seq, idx, bits uint8) CommandPayload {
	return CommandPayload{ID: CmdSetBits, Seq: seq, Args: []byte{idx, bits}}
}

func NewSetActiveMap(seq uint8, activeMap uint32) CommandPayload {
	args := make([]byte, 4)
	binary.LittleEndian.PutUint32(args, activeMap)
	return CommandPayload{ID: CmdSetActiveMap, Seq: seq, Args: args}
}

func NewCalibrate(seq, mode uint8) CommandPayload {
	return CommandPayload{ID: CmdCalibrate, Seq: seq, Args: []byte{mode}}
}

func NewStopCalibrate(seq uint8) CommandPayload {
	return CommandPayload{ID: CmdStopCalibrate, Seq: seq}
}

func NewEndCalibrate(seq uint8) CommandPayload {
	return CommandPayload{ID: CmdEndCalibrate, Seq: seq}
}
