package protocol

import (
	"errors"
	"fmt"
)

// Decode and encode failures. Callers match with errors.Is.
var (
	ErrPayloadTooLarge = errors.New("payload exceeds 65535 bytes")
	ErrMalformedLength = errors.New("malformed payload length")
	ErrMissingContext  = errors.New("no sample layout available")
	ErrUnknownKind     = errors.New("unknown frame kind")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrTruncated       = errors.New("truncated frame")
	ErrBadCRC          = errors.New("crc mismatch")
	ErrBadSOF          = errors.New("missing start-of-frame marker")
)

// DecodeError reports which payload kind failed to decode.
type DecodeError struct {
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErr(kind Kind, err error) error {
	return &DecodeError{Kind: kind, Err: err}
}

func lengthErr(kind Kind, got, want int) error {
	return decodeErr(kind, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedLength, got, want))
}
