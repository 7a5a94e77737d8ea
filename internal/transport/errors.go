package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send when no channel is open.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected is returned by Connect on a live connection.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrNoDevice is returned by FindPort when no port matches.
	ErrNoDevice = errors.New("no matching serial device")
)

// ErrorType classifies transport failures.
type ErrorType int

const (
	// ErrorTypeUnknown indicates an unclassified error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeOpen indicates the channel could not be opened
	ErrorTypeOpen
	// ErrorTypeRead indicates the channel broke while reading
	ErrorTypeRead
	// ErrorTypeWrite indicates the channel broke while writing
	ErrorTypeWrite
	// ErrorTypeCallback indicates a frame callback panicked
	ErrorTypeCallback
)

// String returns a human-readable name for the error type
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeOpen:
		return "open"
	case ErrorTypeRead:
		return "read"
	case ErrorTypeWrite:
		return "write"
	case ErrorTypeCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// TransportError carries the failing operation and target.
type TransportError struct {
	Type   ErrorType
	Target string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("transport %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Type, e.Target, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Terminal reports whether the error ended the connection.
func (e *TransportError) Terminal() bool {
	return e.Type == ErrorTypeRead || e.Type == ErrorTypeWrite
}

// IsTerminal reports whether err is a TransportError that closed the connection.
func IsTerminal(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Terminal()
}
