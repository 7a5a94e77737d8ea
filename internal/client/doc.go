// Package client is the host-side API for a KineIntra acquisition board.
//
// A Client owns one transport.Connection. It turns intents into COMMAND
// frames and delivers every decoded frame twice: to the registered
// callbacks and to a bounded queue drained with Poll.
//
// # Usage Example
//
//	c := client.New(client.Config{})
//	if err := c.ConnectTimeout(transport.SerialTarget{Port: "/dev/ttyUSB0"}, 2*time.Second); err != nil {
//	    return err
//	}
//	defer c.Disconnect()
//
//	var seq client.Sequence
//	c.OnAck(func(a protocol.AckPayload) { fmt.Println(a) })
//	_ = c.GetStatus(seq.Next())
//	_ = c.StartMeasure(seq.Next())
//
//	for {
//	    ev, ok := c.Poll(100 * time.Millisecond)
//	    if ok {
//	        fmt.Println(ev)
//	    }
//	}
//
// # Data Decoding
//
// DATA frames are decoded with the layout of the last STATUS. DATA received
// before any STATUS cannot be decoded; it is counted in
// Statistics().DecodeErrors and dropped. Request a status first.
//
// # Backpressure
//
// Every decoded event goes to both the poll queue and the callbacks. A full
// poll queue drops its oldest event (DroppedEvents) and never blocks the
// transport reader. When callbacks fall DispatchBuffer events behind, the
// reader waits for them, leaving further bytes in the channel's buffers.
// Disconnect releases a waiting reader; events still in flight at that
// point skip the callbacks (DroppedCallbacks).
package client
