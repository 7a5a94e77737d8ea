package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Frame is one envelope as seen on the wire. Frames produced by the
// Reassembler carry CRCValid=false when the received checksum did not match;
// disposal of such frames is left to the consumer.
type Frame struct {
	Version  byte
	Kind     Kind
	Payload  []byte
	CRC      uint16 // checksum as received (or as computed for encoded frames)
	CRCValid bool
}

// Encode builds a complete frame:
//
//	[0]     0xA5        SOF1
//	[1]     0x5A        SOF2
//	[2]     0x01        Version
//	[3]     kind        Frame kind
//	[4-5]   length      Payload length (little-endian uint16)
//	[6..]   payload     Payload bytes
//	[N-2:N] crc         CRC-16-CCITT over bytes 2..6+length (little-endian)
func Encode(kind Kind, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	out := make([]byte, EnvelopeSize+len(payload))
	out[0] = SOF1
	out[1] = SOF2
	out[2] = ProtocolVersion
	out[3] = byte(kind)
	binary.LittleEndian.PutUint16(out[4:6], uint16(len(payload)))
	copy(out[6:], payload)

	crc := CRC16(out[2 : 6+len(payload)])
	binary.LittleEndian.PutUint16(out[6+len(payload):], crc)
	return out, nil
}

// Bytes re-encodes the frame with a freshly computed checksum.
func (f *Frame) Bytes() ([]byte, error) {
	return Encode(f.Kind, f.Payload)
}

// ParseFrame decodes exactly one frame occupying the whole buffer. It is the
// one-shot counterpart of the Reassembler and is used by tooling that already
// has frame boundaries (captures, WebSocket messages).
func ParseFrame(raw []byte) (*Frame, error) {
	if len(raw) < EnvelopeSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(raw))
	}
	if raw[0] != SOF1 || raw[1] != SOF2 {
		return nil, fmt.Errorf("%w: got 0x%02x 0x%02x", ErrBadSOF, raw[0], raw[1])
	}

	length := int(binary.LittleEndian.Uint16(raw[4:6]))
	if len(raw) != EnvelopeSize+length {
		return nil, fmt.Errorf("%w: header declares %d payload bytes, buffer holds %d",
			ErrTruncated, length, len(raw)-EnvelopeSize)
	}

	received := binary.LittleEndian.Uint16(raw[6+length:])
	payload := make([]byte, length)
	copy(payload, raw[6:6+length])

	return &Frame{
		Version:  raw[2],
		Kind:     Kind(raw[3]),
		Payload:  payload,
		CRC:      received,
		CRCValid: CRC16(raw[2:6+length]) == received,
	}, nil
}

func (f *Frame) String() string {
	crc := "ok"
	if !f.CRCValid {
		crc = "BAD"
	}
	return fmt.Sprintf("Frame{version=0x%02x, kind=%s, len=%d, crc=0x%04x (%s)}",
		f.Version, f.Kind, len(f.Payload), f.CRC, crc)
}

// FormatFrame renders an encoded frame as annotated hex, one field per line.
func FormatFrame(raw []byte) string {
	var b strings.Builder
	if len(raw) < EnvelopeSize {
		fmt.Fprintf(&b, "short frame (%d bytes): %s\n", len(raw), hex.EncodeToString(raw))
		return b.String()
	}
	length := int(binary.LittleEndian.Uint16(raw[4:6]))
	fmt.Fprintf(&b, "SOF     : %02x %02x\n", raw[0], raw[1])
	fmt.Fprintf(&b, "Version : %02x\n", raw[2])
	fmt.Fprintf(&b, "Kind    : %02x (%s)\n", raw[3], Kind(raw[3]))
	fmt.Fprintf(&b, "Length  : %d\n", length)

	end := 6 + length
	if end > len(raw) {
		end = len(raw)
	}
	payload := raw[6:end]
	for off := 0; off < len(payload); off += 16 {
		stop := off + 16
		if stop > len(payload) {
			stop = len(payload)
		}
		label := "Payload :"
		if off > 0 {
			label = "         "
		}
		fmt.Fprintf(&b, "%s %04x  % x\n", label, off, payload[off:stop])
	}
	if len(raw) >= 6+length+CRCSize {
		fmt.Fprintf(&b, "CRC     : %04x\n", binary.LittleEndian.Uint16(raw[6+length:]))
	}
	return b.String()
}
