// Kinectl controls a kineintra sensor board from the command line.
//
// It talks the framed binary protocol over a USB serial port, a TCP bridge,
// a WebSocket endpoint or an in-process simulator:
//
//   - Query and change device configuration (status, set-rate, set-bits, ...)
//   - Start and stop measurement, run calibration
//   - Watch live samples in a terminal monitor
//   - Find devices (serial ports, mDNS-advertised simulators)
//
// Targets come from flags or from named profiles in the config file.
//
// See 'kinectl --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kineintra/kineintra/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kinectl",
	Short: "kineintra sensor board control utility",
	Long: `Control a kineintra sensor board over serial, TCP, WebSocket or a
built-in simulator.

Target selection (first match wins):
  --port, --tcp, --ws or --sim flags
  --profile NAME, or default_profile from the config file
  the first USB serial adapter matching the board's VID:PID

Create a starter config with 'kinectl config init'.`,
	Version: version.Version,
	Example: `  # Status over USB serial
  kinectl status --port /dev/ttyUSB0

  # Start measuring on a simulator served by kinesim
  kinectl start --tcp 127.0.0.1:8888

  # Live view against the in-process simulator
  kinectl monitor --sim

  # Use a saved profile
  kinectl status --profile lab`,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&targetOpts.Port, "port", "", "Serial port (e.g. /dev/ttyUSB0, COM3)")
	pf.IntVar(&targetOpts.Baud, "baud", 0, "Serial baud rate (default 115200)")
	pf.StringVar(&targetOpts.TCP, "tcp", "", "TCP bridge or kinesim address (host:port)")
	pf.StringVar(&targetOpts.WS, "ws", "", "WebSocket URL (ws://host:8889/ws)")
	pf.BoolVar(&targetOpts.Sim, "sim", false, "Use an in-process simulated device")
	pf.StringVar(&targetOpts.Source, "source", "", "Sample source for --sim (random, sine, constant)")
	pf.StringVar(&targetOpts.Profile, "profile", "", "Config profile name")
	pf.DurationVar(&targetOpts.Timeout, "timeout", 0, "Connect and reply timeout (default from profile, 3s)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when unset")
	pf.StringVar(&logFile, "log-file", "", "Write logs to a rotating file")
	pf.BoolVar(&jsonOutput, "json", false, "Print JSON instead of styled output")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			newPrinter().PrintJSON(version.Get())
			return nil
		}
		fmt.Printf("kinectl %s\n", version.Full())
		return nil
	},
}
