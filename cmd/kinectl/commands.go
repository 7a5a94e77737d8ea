package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kineintra/kineintra/internal/client"
	"github.com/kineintra/kineintra/internal/protocol"
	"github.com/kineintra/kineintra/internal/ui"
)

// Command flags
var (
	calibrationMode uint8
	activeCount     int
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(stopCalCmd)
	rootCmd.AddCommand(endCalCmd)
	rootCmd.AddCommand(setSensorCountCmd)
	rootCmd.AddCommand(setRateCmd)
	rootCmd.AddCommand(setBitsCmd)
	rootCmd.AddCommand(setActiveCmd)
}

var linkTroubleshooting = []string{
	"Check the target with 'kinectl ports' or 'kinectl scan'",
	"Run with --log-level debug to see raw frames",
}

var configTroubleshooting = []string{
	"Configuration changes are refused while measuring: run 'kinectl stop' first",
	"A latched fault refuses changes until 'kinectl stop' clears it",
}

// exchange is one command round trip: send, wait for the matching ACK and,
// when accepted, for the STATUS that follows it.
type exchange struct {
	title           string
	command         string
	id              protocol.CommandID
	params          map[string]string
	send            func(c *client.Client, seq uint8) error
	troubleshooting []string
}

// rejectedError reports a command the device answered with a non-OK ACK.
type rejectedError struct {
	ack protocol.AckPayload
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("device rejected %s (seq %d): %s", e.ack.CommandID, e.ack.Seq, e.ack.Result)
}

func runExchange(cmd *cobra.Command, ex exchange) error {
	cmd.SilenceUsage = true

	s, err := prepare()
	if err != nil {
		return err
	}
	defer s.close()

	st, err := s.run(ex, os.Stdout)
	if err != nil {
		return err
	}

	p := newPrinter()
	if !p.JSON {
		p.Newline()
	}
	p.PrintStatus(st)
	return nil
}

// run executes ex on s, rendering steps to out unless JSON output is on.
func (s *session) run(ex exchange, out io.Writer) (protocol.StatusPayload, error) {
	if jsonOutput {
		out = io.Discard
	}
	params := map[string]string{"Target": s.target.String()}
	for k, v := range ex.params {
		params[k] = v
	}

	runner := ui.NewRunner(ui.RunnerConfig{
		Title:   ex.title,
		Command: ex.command,
		Params:  params,
		StepNames: []string{
			"Connect",
			"Send " + ex.id.String(),
			"Wait for ACK",
			"Wait for STATUS",
		},
		Troubleshooting: append(append([]string(nil), ex.troubleshooting...), linkTroubleshooting...),
		Output:          out,
	})

	var status protocol.StatusPayload
	_, err := runner.Run(func(onStep ui.StepCallback) (map[string]string, error) {
		onStep(1, "", ui.StepRunning, "")
		if err := s.connect(); err != nil {
			onStep(1, "", ui.StepFailed, "")
			return nil, err
		}
		onStep(1, "Connect to "+s.target.String(), ui.StepComplete, "")

		seq := s.seq.Next()
		onStep(2, "", ui.StepRunning, "")
		if err := ex.send(s.client, seq); err != nil {
			onStep(2, "", ui.StepFailed, err.Error())
			return nil, err
		}
		onStep(2, "", ui.StepComplete, fmt.Sprintf("seq %d", seq))

		sent := time.Now()
		onStep(3, "", ui.StepRunning, "")
		ack, err := s.awaitAck(ex.id, seq)
		if err != nil {
			onStep(3, "", ui.StepFailed, "timeout")
			return nil, err
		}
		if ack.Result != protocol.AckOK {
			onStep(3, "", ui.StepFailed, ack.Result.String())
			onStep(4, "", ui.StepSkipped, "")
			return map[string]string{"Seq": strconv.Itoa(int(seq))}, &rejectedError{ack: ack}
		}
		onStep(3, "", ui.StepComplete, fmt.Sprintf("OK in %s", time.Since(sent).Round(time.Millisecond)))

		onStep(4, "", ui.StepRunning, "")
		status, err = s.awaitStatus()
		if err != nil {
			onStep(4, "", ui.StepFailed, "timeout")
			return nil, err
		}
		onStep(4, "", ui.StepComplete, status.State.String())

		return map[string]string{
			"Seq":   strconv.Itoa(int(seq)),
			"State": status.State.String(),
		}, nil
	})
	return status, err
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show device state and sensor configuration",
	Long: `Send GET_STATUS and print the STATUS snapshot: state, active and health
maps, and per-sensor rate, width and role.`,
	Example: `  kinectl status --port /dev/ttyUSB0
  kinectl status --sim --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExchange(cmd, exchange{
			title:   "Status",
			command: "kinectl status",
			id:      protocol.CmdGetStatus,
			send:    (*client.Client).GetStatus,
		})
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start measurement",
	Long: `Send START_MEASURE. The device resets its clock and streams DATA frames
for the active sensors until stopped. Use 'kinectl monitor' to watch them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExchange(cmd, exchange{
			title:   "Start measurement",
			command: "kinectl start",
			id:      protocol.CmdStartMeasure,
			send:    (*client.Client).StartMeasure,
			troubleshooting: []string{
				"BUSY means the device is already measuring",
				"NOT_ALLOWED during calibration: run 'kinectl stopcal' or 'kinectl endcal'",
			},
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop measurement and clear a latched fault",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExchange(cmd, exchange{
			title:           "Stop measurement",
			command:         "kinectl stop",
			id:              protocol.CmdStopMeasure,
			send:            (*client.Client).StopMeasure,
			troubleshooting: []string{"NOT_ALLOWED during calibration: run 'kinectl stopcal' first"},
		})
	},
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Enter calibration",
	Long: `Send CALIBRATE with the given mode. The device stays in CALIBRATING until
'kinectl endcal' commits or 'kinectl stopcal' aborts the calibration.`,
	Example: `  kinectl calibrate --mode 1 --tcp 127.0.0.1:8888`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExchange(cmd, exchange{
			title:   "Calibration",
			command: fmt.Sprintf("kinectl calibrate --mode %d", calibrationMode),
			id:      protocol.CmdCalibrate,
			params:  map[string]string{"Mode": strconv.Itoa(int(calibrationMode))},
			send: func(c *client.Client, seq uint8) error {
				return c.Calibrate(seq, calibrationMode)
			},
			troubleshooting: []string{"Calibration starts only from IDLE: run 'kinectl stop' first"},
		})
	},
}

func init() {
	calibrateCmd.Flags().Uint8Var(&calibrationMode, "mode", 0, "Calibration mode (device specific)")
}

var stopCalCmd = &cobra.Command{
	Use:   "stopcal",
	Short: "Abort calibration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExchange(cmd, exchange{
			title:           "Abort calibration",
			command:         "kinectl stopcal",
			id:              protocol.CmdStopCalibrate,
			send:            (*client.Client).StopCalibrate,
			troubleshooting: []string{"NOT_ALLOWED means no calibration is running"},
		})
	},
}

var endCalCmd = &cobra.Command{
	Use:   "endcal",
	Short: "Finish calibration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExchange(cmd, exchange{
			title:           "Finish calibration",
			command:         "kinectl endcal",
			id:              protocol.CmdEndCalibrate,
			send:            (*client.Client).EndCalibrate,
			troubleshooting: []string{"NOT_ALLOWED means no calibration is running"},
		})
	},
}

var setSensorCountCmd = &cobra.Command{
	Use:     "set-nsensors <n>",
	Short:   "Set the number of connected sensors (0-32)",
	Example: `  kinectl set-nsensors 4 --sim`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid sensor count: %w", err)
		}
		return runExchange(cmd, exchange{
			title:   "Set sensor count",
			command: "kinectl set-nsensors " + args[0],
			id:      protocol.CmdSetSensorCount,
			params:  map[string]string{"Sensors": args[0]},
			send: func(c *client.Client, seq uint8) error {
				return c.SetSensorCount(seq, n)
			},
			troubleshooting: configTroubleshooting,
		})
	},
}

var setRateCmd = &cobra.Command{
	Use:     "set-rate <index> <hz>",
	Short:   "Set the sample rate of one sensor",
	Example: `  kinectl set-rate 0 200 --port COM3`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, hz, err := parseIndexValue(args, "rate")
		if err != nil {
			return err
		}
		return runExchange(cmd, exchange{
			title:   "Set sample rate",
			command: "kinectl set-rate " + strings.Join(args, " "),
			id:      protocol.CmdSetRate,
			params:  map[string]string{"Sensor": args[0], "Rate": args[1] + " Hz"},
			send: func(c *client.Client, seq uint8) error {
				return c.SetRate(seq, idx, hz)
			},
			troubleshooting: configTroubleshooting,
		})
	},
}

var setBitsCmd = &cobra.Command{
	Use:     "set-bits <index> <bits>",
	Short:   "Set the sample width of one sensor (1-32 bits)",
	Example: `  kinectl set-bits 2 16 --sim`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, bits, err := parseIndexValue(args, "bits")
		if err != nil {
			return err
		}
		return runExchange(cmd, exchange{
			title:   "Set sample width",
			command: "kinectl set-bits " + strings.Join(args, " "),
			id:      protocol.CmdSetBits,
			params:  map[string]string{"Sensor": args[0], "Bits": args[1]},
			send: func(c *client.Client, seq uint8) error {
				return c.SetBits(seq, idx, bits)
			},
			troubleshooting: configTroubleshooting,
		})
	},
}

var setActiveCmd = &cobra.Command{
	Use:   "set-active <map>",
	Short: "Choose which sensors are sampled",
	Long: `Set the active map. The argument is either a JSON object mapping sensor
index to enabled, or an integer bitmap (decimal, 0x hex or 0b binary).

The device sets its sensor count to the number of enabled sensors.
With a JSON object, --count checks that exactly that many sensors are
described.`,
	Example: `  # Sensors 0 and 2 on, 1 off
  kinectl set-active '{"0": true, "1": false, "2": true}' --sim

  # Same as a bitmap
  kinectl set-active 0b101 --sim`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := parseActiveMap(args[0], activeCount)
		if err != nil {
			return err
		}
		return runExchange(cmd, exchange{
			title:   "Set active sensors",
			command: "kinectl set-active " + args[0],
			id:      protocol.CmdSetActiveMap,
			params:  map[string]string{"Active map": fmt.Sprintf("0x%08X", m)},
			send: func(c *client.Client, seq uint8) error {
				return c.SetActiveBitmap(seq, m)
			},
			troubleshooting: append([]string{"During calibration only one sensor may be active"}, configTroubleshooting...),
		})
	},
}

func init() {
	setActiveCmd.Flags().IntVar(&activeCount, "count", -1, "Expected number of sensors in a JSON map")
}

func parseIndexValue(args []string, name string) (int, int, error) {
	idx, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid sensor index: %w", err)
	}
	v, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return idx, v, nil
}

// parseActiveMap accepts a JSON object of index to bool or an integer
// bitmap. count < 0 accepts any number of JSON entries.
func parseActiveMap(arg string, count int) (uint32, error) {
	arg = strings.TrimSpace(arg)
	if strings.HasPrefix(arg, "{") {
		var raw map[string]bool
		if err := json.Unmarshal([]byte(arg), &raw); err != nil {
			return 0, fmt.Errorf("invalid sensor mapping: %w", err)
		}
		sensors := make(map[int]bool, len(raw))
		for k, on := range raw {
			idx, err := strconv.Atoi(strings.TrimSpace(k))
			if err != nil {
				return 0, fmt.Errorf("invalid sensor index %q", k)
			}
			sensors[idx] = on
		}
		if count < 0 {
			count = len(sensors)
		}
		return client.ActiveMap(sensors, count)
	}

	v, err := strconv.ParseUint(arg, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid active map %q: want a JSON object or an integer bitmap", arg)
	}
	return uint32(v), nil
}
