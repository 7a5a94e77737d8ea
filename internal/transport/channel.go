package transport

import (
	"context"
	"io"
)

// Channel is an open byte pipe to a device. Read may return (0, nil) when a
// read timeout expires; Close must unblock a pending Read.
type Channel interface {
	io.Reader
	io.Writer
	io.Closer
}

// Target knows how to open a Channel. Implementations: SerialTarget,
// TCPTarget, WebSocketTarget and the simulator's in-memory target.
type Target interface {
	Open(ctx context.Context) (Channel, error)
	String() string
}
