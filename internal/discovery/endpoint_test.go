package discovery

import (
	"testing"

	"github.com/kineintra/kineintra/internal/transport"
)

func TestEndpoint_String(t *testing.T) {
	ep := &Endpoint{Instance: "kinesim-lab1", IP: "192.168.4.16", Port: 8888}

	expected := "kinesim-lab1 (sim) at 192.168.4.16:8888"
	if ep.String() != expected {
		t.Errorf("Endpoint.String() = %v, want %v", ep.String(), expected)
	}
}

func TestEndpoint_Addresses(t *testing.T) {
	tests := []struct {
		name    string
		ep      *Endpoint
		wantTCP string
		wantWS  string
	}{
		{
			name:    "tcp only",
			ep:      &Endpoint{IP: "10.0.0.5", Port: 9000},
			wantTCP: "10.0.0.5:9000",
		},
		{
			name: "with websocket",
			ep: &Endpoint{
				IP:       "192.168.1.2",
				Port:     8888,
				Metadata: map[string]string{TxtHTTPPort: "8889", TxtWSPath: "/ws"},
			},
			wantTCP: "192.168.1.2:8888",
			wantWS:  "ws://192.168.1.2:8889/ws",
		},
		{
			name:    "ipv6",
			ep:      &Endpoint{IP: "fe80::1", Port: 8888},
			wantTCP: "[fe80::1]:8888",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ep.TCPAddress(); got != tt.wantTCP {
				t.Errorf("TCPAddress() = %v, want %v", got, tt.wantTCP)
			}
			if got := tt.ep.WebSocketURL(); got != tt.wantWS {
				t.Errorf("WebSocketURL() = %v, want %v", got, tt.wantWS)
			}
			target, ok := tt.ep.Target().(transport.TCPTarget)
			if !ok || target.Address != tt.wantTCP {
				t.Errorf("Target() = %v, want tcp:%v", tt.ep.Target(), tt.wantTCP)
			}
		})
	}
}

func TestEndpoint_Kind(t *testing.T) {
	if got := (&Endpoint{}).Kind(); got != "sim" {
		t.Errorf("Kind() default = %v, want sim", got)
	}
	ep := &Endpoint{Metadata: map[string]string{TxtKind: "bridge"}}
	if got := ep.Kind(); got != "bridge" {
		t.Errorf("Kind() = %v, want bridge", got)
	}
}

func TestEndpoint_GetMetadata_NilMap(t *testing.T) {
	ep := &Endpoint{}
	if got := ep.GetMetadata("anything"); got != "" {
		t.Errorf("GetMetadata() with nil map = %v, want empty string", got)
	}
}
