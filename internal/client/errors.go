package client

import (
	"fmt"

	"github.com/kineintra/kineintra/internal/transport"
)

// ErrNotConnected is returned by every command while no channel is open.
var ErrNotConnected = transport.ErrNotConnected

// ValidationError reports a command argument outside its protocol range.
// Nothing is sent when a command fails validation.
type ValidationError struct {
	Field  string
	Value  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %d: %s", e.Field, e.Value, e.Reason)
}

func checkRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return &ValidationError{Field: field, Value: v, Reason: fmt.Sprintf("must be in [%d, %d]", lo, hi)}
	}
	return nil
}
