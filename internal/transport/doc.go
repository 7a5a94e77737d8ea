// Package transport owns the byte channel to a sensor device.
//
// A Connection wraps one Channel (serial port, TCP bridge, WebSocket bridge
// or the in-memory simulator) and runs a single reader goroutine that feeds
// received bytes through a protocol.Reassembler. Every emitted frame is
// handed to the registered FrameCallbacks, in wire order, on the reader
// goroutine.
//
// # Targets
//
//   - SerialTarget: go.bug.st/serial, 8N1, default 115200 baud
//   - TCPTarget: a TCP serial bridge or kinesim (default 127.0.0.1:8888)
//   - WebSocketTarget: kinesim's /ws endpoint
//   - simulator.Target: in-memory virtual device for tests
//
// ListPorts and FindPort enumerate USB serial adapters so the CP210x bridge
// on the acquisition board can be found by VID/PID.
//
// # Lifecycle
//
//	conn := transport.NewConnection(transport.Config{})
//	conn.RegisterFrameCallback(func(f protocol.Frame) { ... })
//
//	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
//	defer cancel()
//	if err := conn.Connect(ctx, transport.SerialTarget{Port: "/dev/ttyUSB0"}); err != nil {
//	    return err
//	}
//	defer conn.Disconnect()
//
// # Failure Model
//
// A read or write failure moves the connection to StateError, closes the
// channel, stops the reader and delivers exactly one terminal
// *TransportError on Errors(). There is no automatic reconnect. Panics in
// frame callbacks are recovered and reported on the same channel without
// stopping the reader.
package transport
