package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestScanner_parseServiceEntry(t *testing.T) {
	scanner := NewScanner()

	tests := []struct {
		name         string
		entry        *zeroconf.ServiceEntry
		wantNil      bool
		wantInstance string
		wantIP       string
		wantPort     int
	}{
		{
			name: "simulator with IPv4",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "kinesim-lab1"},
				HostName:      "lab1.local.",
				Port:          8888,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.4.16")},
				Text:          []string{"proto=1", "kind=sim"},
			},
			wantInstance: "kinesim-lab1",
			wantIP:       "192.168.4.16",
			wantPort:     8888,
		},
		{
			name: "custom port",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "bridge"},
				HostName:      "pi.local.",
				Port:          9000,
				AddrIPv4:      []net.IP{net.ParseIP("10.0.0.5")},
			},
			wantInstance: "bridge",
			wantIP:       "10.0.0.5",
			wantPort:     9000,
		},
		{
			name: "no port specified (should default to 8888)",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "noport"},
				AddrIPv4:      []net.IP{net.ParseIP("172.16.0.1")},
			},
			wantInstance: "noport",
			wantIP:       "172.16.0.1",
			wantPort:     DefaultPort,
		},
		{
			name: "empty instance",
			entry: &zeroconf.ServiceEntry{
				HostName: "x.local.",
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.1")},
			},
			wantNil: true,
		},
		{
			name: "no IP address",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "ghost"},
				Port:          8888,
			},
			wantNil: true,
		},
		{
			name: "IPv6 only",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "v6"},
				Port:          8888,
				AddrIPv6:      []net.IP{net.ParseIP("fe80::1")},
			},
			wantInstance: "v6",
			wantIP:       "fe80::1",
			wantPort:     8888,
		},
		{
			name: "both families (should prefer IPv4)",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "dual"},
				Port:          8888,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.50")},
				AddrIPv6:      []net.IP{net.ParseIP("fe80::2")},
			},
			wantInstance: "dual",
			wantIP:       "192.168.1.50",
			wantPort:     8888,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := scanner.parseServiceEntry(tt.entry)

			if tt.wantNil {
				if ep != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", ep)
				}
				return
			}
			if ep == nil {
				t.Fatal("parseServiceEntry() = nil, want endpoint")
			}
			if ep.Instance != tt.wantInstance {
				t.Errorf("ep.Instance = %v, want %v", ep.Instance, tt.wantInstance)
			}
			if ep.IP != tt.wantIP {
				t.Errorf("ep.IP = %v, want %v", ep.IP, tt.wantIP)
			}
			if ep.Port != tt.wantPort {
				t.Errorf("ep.Port = %v, want %v", ep.Port, tt.wantPort)
			}
			if time.Since(ep.DiscoveredAt) > time.Second {
				t.Errorf("ep.DiscoveredAt is not recent: %v", ep.DiscoveredAt)
			}
		})
	}
}

func TestScanner_parseServiceEntry_Metadata(t *testing.T) {
	scanner := NewScanner()

	entry := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "kinesim"},
		Port:          8888,
		AddrIPv4:      []net.IP{net.ParseIP("192.168.4.16")},
		Text:          []string{"proto=1", "http=8889", "ws=/ws", "flag"},
	}

	ep := scanner.parseServiceEntry(entry)
	if ep == nil {
		t.Fatal("parseServiceEntry() = nil, want endpoint")
	}

	expected := map[string]string{
		"proto": "1",
		"http":  "8889",
		"ws":    "/ws",
		"flag":  "", // key without value
	}
	if len(ep.Metadata) != len(expected) {
		t.Errorf("ep.Metadata has %d entries, want %d", len(ep.Metadata), len(expected))
	}
	for key, want := range expected {
		if got, ok := ep.Metadata[key]; !ok {
			t.Errorf("ep.Metadata missing key %q", key)
		} else if got != want {
			t.Errorf("ep.Metadata[%q] = %q, want %q", key, got, want)
		}
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()
	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}

func TestTXTRecords(t *testing.T) {
	got := TXTRecords(map[string]string{"proto": "1", "kind": "sim", "flag": ""})
	want := []string{"flag", "kind=sim", "proto=1"}
	if len(got) != len(want) {
		t.Fatalf("TXTRecords() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TXTRecords()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// Live mDNS needs multicast on the test host; run manually with
// go test -tags=integration ./internal/discovery/
