package discovery

import (
	"fmt"
	"sort"

	"github.com/grandcat/zeroconf"
)

// Advertiser publishes an endpoint until Shutdown.
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers instance on all interfaces. meta becomes the TXT
// record.
func Advertise(instance string, port int, meta map[string]string) (*Advertiser, error) {
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, TXTRecords(meta), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return &Advertiser{server: server}, nil
}

// Shutdown withdraws the advertisement.
func (a *Advertiser) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// TXTRecords renders meta as sorted key=value strings.
func TXTRecords(meta map[string]string) []string {
	txt := make([]string, 0, len(meta))
	for k, v := range meta {
		if v == "" {
			txt = append(txt, k)
			continue
		}
		txt = append(txt, k+"="+v)
	}
	sort.Strings(txt)
	return txt
}
