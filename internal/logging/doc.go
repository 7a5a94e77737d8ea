// Package logging provides structured logging for KineIntra tools.
//
// This package wraps a global zap logger with convenience functions used by
// the transport, client and simulator packages. Logging is silent until
// initialized, so library code never writes to a CLI's terminal unless the
// user asked for it with --log-level or KINEINTRA_LOG_LEVEL.
//
// # Log Levels
//
//   - Debug: frame hex dumps, reassembler resets, heartbeat traffic
//   - Info: connections, commands, state changes
//   - Warn: CRC errors, dropped events, recovered callback panics
//   - Error: channel failures
//
// # Configuration
//
//	if err := logging.InitializeWithOptions(logging.Options{
//	    Level: "debug",
//	    File:  "/var/log/kinesim.log", // rotated by lumberjack
//	}); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Domain Helpers
//
//	logging.LogConnection("serial:/dev/ttyUSB0", "connected")
//	logging.LogFrame("tx", protocol.KindCommand, raw)
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. Initialize should be
// called once at startup before goroutines are started.
package logging
