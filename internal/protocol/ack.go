package protocol

import (
	"encoding/binary"
	"fmt"
)

// Fixed payload sizes
const (
	AckPayloadSize   = 3
	ErrorPayloadSize = 7
)

// AckPayload answers a command, echoing its identifier and sequence number.
type AckPayload struct {
	CommandID CommandID
	Seq       uint8
	Result    AckResult
}

func (AckPayload) Kind() Kind { return KindAck }

func (a AckPayload) String() string {
	return fmt.Sprintf("Ack{cmd=%s, seq=%d, result=%s}", a.CommandID, a.Seq, a.Result)
}

// Matches reports whether the ack answers c.
func (a AckPayload) Matches(c CommandPayload) bool {
	return a.CommandID == c.ID && a.Seq == c.Seq
}

func EncodeAck(a AckPayload) []byte {
	return []byte{byte(a.CommandID), a.Seq, byte(a.Result)}
}

func DecodeAck(p []byte) (AckPayload, error) {
	if len(p) != AckPayloadSize {
		return AckPayload{}, lengthErr(KindAck, len(p), AckPayloadSize)
	}
	return AckPayload{CommandID: CommandID(p[0]), Seq: p[1], Result: AckResult(p[2])}, nil
}

// ErrorPayload is an asynchronous device fault. Aux meaning depends on Code.
type ErrorPayload struct {
	Timestamp uint32
	Code      ErrorCode
	Aux       uint16
}

func (ErrorPayload) Kind() Kind { return KindError }

func (e ErrorPayload) String() string {
	return fmt.Sprintf("Error{ts=%d, code=%s, aux=0x%04x}", e.Timestamp, e.Code, e.Aux)
}

func EncodeError(e ErrorPayload) []byte {
	p := make([]byte, ErrorPayloadSize)
	binary.LittleEndian.PutUint32(p, e.Timestamp)
	p[4] = byte(e.Code)
	binary.LittleEndian.PutUint16(p[5:], e.Aux)
	return p
}

func DecodeErrorPayload(p []byte) (ErrorPayload, error) {
	if len(p) != ErrorPayloadSize {
		return ErrorPayload{}, lengthErr(KindError, len(p), ErrorPayloadSize)
	}
	return ErrorPayload{
		Timestamp: binary.LittleEndian.Uint32(p),
		Code:      ErrorCode(p[4]),
		Aux:       binary.LittleEndian.Uint16(p[5:]),
	}, nil
}
