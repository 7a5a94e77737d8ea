// Package server hosts simulated kineintra devices on the network.
//
// Every accepted connection gets its own simulator.Simulator, so several
// hosts can exercise independent devices at once. Two listeners are
// opened:
//
//   - Addr carries the raw frame byte stream over TCP (default 127.0.0.1:8888).
//   - HTTPAddr serves the WebSocket endpoint, Prometheus metrics and a small
//     admin surface (default 127.0.0.1:8889).
//
// # HTTP endpoints
//
//	GET  /ws                    binary WebSocket carrying the frame stream
//	GET  /metrics               Prometheus exposition
//	GET  /healthz               {"status":"ok","sessions":N}
//	GET  /sessions              connected hosts with their device state
//	POST /sessions/{id}/fault   inject an ERROR (?code=0x02&aux=3)
//
// WebSocket message boundaries carry no meaning; the device side feeds
// every binary message through the same reassembler as a serial port.
//
// # Discovery
//
// When Config.Instance is set the TCP port is advertised over mDNS as
// _kineintra._tcp with TXT records for the protocol version, the HTTP
// port and the WebSocket path (see package discovery).
//
// # Usage Example
//
//	srv, err := server.New(server.Config{
//	    Instance: "kinesim-lab1",
//	    Source:   "sine",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(); err != nil { // blocks until SIGINT/SIGTERM
//	    log.Fatal(err)
//	}
//
// Tests bind port 0 and drive Listen, Serve and Shutdown directly.
package server
