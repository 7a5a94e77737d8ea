package transport

import (
	"context"
	"fmt"
	"net"
)

// DefaultTCPAddress is where kinesim and serial bridges listen by default.
const DefaultTCPAddress = "127.0.0.1:8888"

// TCPTarget connects to a TCP serial bridge or a simulator server.
type TCPTarget struct {
	Address string
}

var _ Target = TCPTarget{}

func (t TCPTarget) addr() string {
	if t.Address == "" {
		return DefaultTCPAddress
	}
	return t.Address
}

// Open dials the bridge.
func (t TCPTarget) Open(ctx context.Context) (Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr())
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", t.addr(), err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}

func (t TCPTarget) String() string {
	return "tcp:" + t.addr()
}
