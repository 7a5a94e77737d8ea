// Package discovery advertises and finds KineIntra endpoints over mDNS.
//
// kinesim servers and serial-to-TCP bridges publish themselves as
// "_kineintra._tcp" services. The service port is the raw TCP frame port;
// TXT records describe the rest:
//   - proto: protocol version ("1")
//   - kind: "sim" or "bridge"
//   - http, ws: port and path of the WebSocket endpoint, if any
//
// # Usage Example
//
//	endpoints, err := discovery.Scan(3 * time.Second)
//	if err != nil {
//	    return err
//	}
//	for _, ep := range endpoints {
//	    fmt.Println(ep)
//	}
//
//	// Publishing (kinesim does this on startup)
//	adv, err := discovery.Advertise("kinesim-lab1", 8888, map[string]string{"proto": "1"})
//	defer adv.Shutdown()
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Endpoints must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
