package protocol

import "fmt"

// Message is a decoded payload. The concrete types are StatusPayload,
// DataPayload, CommandPayload, AckPayload and ErrorPayload.
type Message interface {
	Kind() Kind
	String() string
}

// Decode parses the frame payload according to its kind. layout is only
// consulted for DATA frames and may be nil otherwise.
func Decode(f *Frame, layout *SampleLayout) (Message, error) {
	switch f.Kind {
	case KindStatus:
		return DecodeStatus(f.Payload)
	case KindData:
		return DecodeData(f.Payload, layout)
	case KindCommand:
		return DecodeCommand(f.Payload)
	case KindAck:
		return DecodeAck(f.Payload)
	case KindError:
		return DecodeErrorPayload(f.Payload)
	default:
		return nil, decodeErr(f.Kind, ErrUnknownKind)
	}
}

// EncodeMessage builds a complete frame for m. layout is required for
// DataPayload and ignored otherwise.
func EncodeMessage(m Message, layout *SampleLayout) ([]byte, error) {
	var (
		payload []byte
		err     error
	)
	switch v := m.(type) {
	case StatusPayload:
		payload = EncodeStatus(v)
	case DataPayload:
		if layout == nil {
			return nil, ErrMissingContext
		}
		payload, err = EncodeData(v.Timestamp, v.Samples, *layout)
	case CommandPayload:
		payload, err = EncodeCommand(v)
	case AckPayload:
		payload = EncodeAck(v)
	case ErrorPayload:
		payload = EncodeError(v)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, m)
	}
	if err != nil {
		return nil, err
	}
	return Encode(m.Kind(), payload)
}

// BuildCommand encodes c as a complete COMMAND frame.
func BuildCommand(c CommandPayload) ([]byte, error) {
	return EncodeMessage(c, nil)
}
