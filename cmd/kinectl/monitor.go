package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kineintra/kineintra/internal/client"
	"github.com/kineintra/kineintra/internal/logging"
	"github.com/kineintra/kineintra/internal/metrics"
	"github.com/kineintra/kineintra/internal/protocol"
	"github.com/kineintra/kineintra/internal/ui"
)

// Command flags
var (
	metricsAddr   string
	statsDuration time.Duration
)

func init() {
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(statsCmd)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live view of device state and samples",
	Long: `Open a full screen view of the device: state, per-sensor bars, the last ACK
and ERROR, and link counters.

Keys: s start, x stop, g refresh status, ? help, q quit.

With --metrics-addr the link counters are also served in Prometheus format
at /metrics while the monitor runs.`,
	Example: `  kinectl monitor --sim --source sine
  kinectl monitor --ws ws://127.0.0.1:8889/ws --metrics-addr :9100`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve link metrics on this address")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	s, err := prepare()
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.connect(); err != nil {
		newPrinter().PrintError("Monitor failed", err, linkTroubleshooting)
		return err
	}

	if metricsAddr != "" {
		stop, err := serveMetrics(metricsAddr, s.target.String(), s.client.Statistics)
		if err != nil {
			return err
		}
		defer stop()
	}

	return ui.RunMonitor(s.client, s.target.String())
}

// serveMetrics exposes the client's statistics until the returned stop
// function is called.
func serveMetrics(addr, target string, stats func() client.Statistics) (func(), error) {
	reg := metrics.NewRegistry()
	reg.MustRegister(metrics.NewClientCollector(target, stats))

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler(reg))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log := logging.Named("metrics")
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("Metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("Serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Measure link health",
	Long: `Connect, request a STATUS, then listen for --duration and print the frame
counters: frames and bytes in each direction, CRC errors, resync discards,
decode errors and dropped events.`,
	Example: `  kinectl stats --port /dev/ttyUSB0 --duration 10s`,
	Args:    cobra.NoArgs,
	RunE:    runStats,
}

func init() {
	statsCmd.Flags().DurationVar(&statsDuration, "duration", 2*time.Second, "How long to listen")
}

// linkReport is the stats command's summary.
type linkReport struct {
	Target     string            `json:"target"`
	Duration   string            `json:"duration"`
	Events     map[string]uint64 `json:"events"`
	Statistics client.Statistics `json:"statistics"`
}

func runStats(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	if statsDuration <= 0 {
		return fmt.Errorf("--duration must be positive")
	}

	s, err := prepare()
	if err != nil {
		return err
	}
	defer s.close()

	p := newPrinter()
	p.PrintHeader("Link statistics", "kinectl stats", map[string]string{
		"Target":   s.target.String(),
		"Duration": statsDuration.String(),
	})

	if err := s.connect(); err != nil {
		p.PrintError("Link statistics failed", err, linkTroubleshooting)
		return err
	}
	report := s.collect(statsDuration)

	if p.JSON {
		p.PrintJSON(report)
		return nil
	}
	for _, kind := range []protocol.Kind{protocol.KindStatus, protocol.KindData, protocol.KindAck, protocol.KindError} {
		p.Println(fmt.Sprintf("  %-8s %d", kind, report.Events[kind.String()]))
	}
	p.Newline()
	p.PrintStatistics(report.Statistics)
	return nil
}

// collect sends GET_STATUS and counts events by kind for d.
func (s *session) collect(d time.Duration) linkReport {
	if err := s.client.GetStatus(s.seq.Next()); err != nil {
		logging.Named("stats").Warn("GET_STATUS not sent", zap.Error(err))
	}

	events := make(map[string]uint64)
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if ev, ok := s.client.Poll(remaining); ok {
			events[ev.Kind.String()]++
		}
	}
	return linkReport{
		Target:     s.target.String(),
		Duration:   d.String(),
		Events:     events,
		Statistics: s.client.Statistics(),
	}
}
