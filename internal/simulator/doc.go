// Package simulator implements a virtual KineIntra acquisition board.
//
// The simulator is the device side of the protocol: it parses COMMAND frames
// with the same reassembler and codec the host uses and answers the way the
// firmware does. It needs no hardware and is used by tests, by kinectl --sim
// and by the kinesim server.
//
// # State Machine
//
// Device holds the firmware state and configuration:
//   - Idle: STATUS heartbeat every 500ms
//   - Measuring: DATA frames at the fastest active sensor rate
//   - Calibrating: entered with CALIBRATE, left with STOP_CALIBRATE or END_CALIBRATE
//   - Error: latched by an injected fault, cleared by STOP_MEASURE
//
// Every COMMAND is answered with exactly one ACK. Successful commands are
// followed by a STATUS push. Frames with a bad CRC are dropped silently.
//
// # Usage Example
//
//	target := simulator.NewVirtualTarget(simulator.Config{})
//	conn := transport.NewConnection(transport.Config{})
//	if err := conn.Connect(ctx, target); err != nil {
//	    return err
//	}
//	target.Simulator().InjectFault(protocol.ErrCodeSensorFault, 3)
//
// # Sample Sources
//
// DATA values come from a Source: RandomSource (seedable, above a 30%
// baseline), SineSource (one frequency per sensor) or ConstantSource.
package simulator
