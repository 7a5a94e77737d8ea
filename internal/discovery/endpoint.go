package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kineintra/kineintra/internal/transport"
)

// TXT record keys published with every endpoint.
const (
	TxtProtocol = "proto" // protocol version, "1"
	TxtKind     = "kind"  // "sim" or "bridge"
	TxtHTTPPort = "http"  // port of the WebSocket and metrics listener
	TxtWSPath   = "ws"    // WebSocket path, e.g. "/ws"
)

// Endpoint is a simulator or serial bridge found on the network
type Endpoint struct {
	// Instance is the mDNS instance name (e.g., "kinesim-lab1")
	Instance string

	// Hostname is the mDNS hostname (e.g., "lab1.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available
	IP string

	// Port is the raw TCP frame port
	Port int

	// Metadata contains the TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the endpoint was discovered
	DiscoveredAt time.Time
}

func (e *Endpoint) String() string {
	return fmt.Sprintf("%s (%s) at %s", e.Instance, e.Kind(), e.TCPAddress())
}

// Kind returns the advertised endpoint kind, "sim" if unset.
func (e *Endpoint) Kind() string {
	if k := e.GetMetadata(TxtKind); k != "" {
		return k
	}
	return "sim"
}

// TCPAddress returns host:port for the raw TCP channel.
func (e *Endpoint) TCPAddress() string {
	return net.JoinHostPort(e.IP, strconv.Itoa(e.Port))
}

// WebSocketURL returns the WebSocket URL, or "" if none is advertised.
func (e *Endpoint) WebSocketURL() string {
	port := e.GetMetadata(TxtHTTPPort)
	path := e.GetMetadata(TxtWSPath)
	if port == "" || path == "" {
		return ""
	}
	return "ws://" + net.JoinHostPort(e.IP, port) + path
}

// Target returns the transport target for the endpoint, preferring raw TCP.
func (e *Endpoint) Target() transport.Target {
	return transport.TCPTarget{Address: e.TCPAddress()}
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (e *Endpoint) GetMetadata(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}
