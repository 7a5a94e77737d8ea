// Kinesim serves simulated kineintra sensor boards over the network.
//
// Each TCP or WebSocket connection gets its own virtual device speaking the
// framed binary protocol, so kinectl and other hosts can be exercised
// without hardware. The server also exposes Prometheus metrics and can
// advertise itself over mDNS.
//
// Usage:
//
//	kinesim serve [flags]
//
// See 'kinesim serve --help' for available options.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kineintra/kineintra/internal/logging"
	"github.com/kineintra/kineintra/internal/server"
	"github.com/kineintra/kineintra/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kinesim",
	Short: "kineintra device simulator",
	Long: `A network server hosting simulated kineintra sensor boards.

Every connection gets an independent device with the default power-on
configuration (8 FSR sensors, 100 Hz, 12 bits), a 500 ms STATUS heartbeat
while idle, and DATA streaming after START_MEASURE.

Use 'kinectl --tcp' or 'kinectl --ws' to connect.`,
	Version: version.Version,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Serve command and flags
var (
	addr      string
	httpAddr  string
	wsPath    string
	instance  string
	noMDNS    bool
	source    string
	seed      uint64
	heartbeat time.Duration
	txQueue   int
	logLevel  string
	logFile   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the simulator server",
	Long: `Start accepting host connections.

Raw frames are served over TCP on --addr. The HTTP listener on --http-addr
serves the WebSocket endpoint, /metrics, /healthz and /sessions. Faults can
be injected into a running session with
POST /sessions/{id}/fault?code=0x02&aux=3.`,
	Example: `  # Defaults: TCP 127.0.0.1:8888, HTTP 127.0.0.1:8889
  kinesim serve

  # Listen on all interfaces with a sine wave source
  kinesim serve --addr :8888 --http-addr :8889 --source sine

  # Deterministic random samples and verbose logging
  kinesim serve --seed 42 --log-level debug

  # Do not advertise over mDNS
  kinesim serve --no-mdns`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&addr, "addr", server.DefaultAddr, "TCP address for raw frames")
	serveCmd.Flags().StringVar(&httpAddr, "http-addr", server.DefaultHTTPAddr, "HTTP address for WebSocket, metrics and admin endpoints")
	serveCmd.Flags().StringVar(&wsPath, "ws-path", server.DefaultWSPath, "WebSocket endpoint path")
	serveCmd.Flags().StringVar(&instance, "instance", defaultInstance(), "mDNS instance name")
	serveCmd.Flags().BoolVar(&noMDNS, "no-mdns", false, "Disable mDNS advertisement")
	serveCmd.Flags().StringVar(&source, "source", "random", "Sample source (random, sine, constant)")
	serveCmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for the random source (0 = time based)")
	serveCmd.Flags().DurationVar(&heartbeat, "heartbeat", 500*time.Millisecond, "STATUS heartbeat interval while idle")
	serveCmd.Flags().IntVar(&txQueue, "tx-queue", 0, "Per-session TX queue depth (0 = default)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to a rotating file instead of stderr")
}

func defaultInstance() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "kinesim"
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	return "kinesim-" + host
}

func runServe(cmd *cobra.Command, args []string) error {
	if !strings.HasPrefix(wsPath, "/") {
		return fmt.Errorf("--ws-path must start with /")
	}
	if heartbeat <= 0 {
		return fmt.Errorf("--heartbeat must be positive")
	}

	if err := logging.InitializeWithOptions(logging.Options{Level: logLevel, File: logFile}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	cfg := server.Config{
		Addr:      addr,
		HTTPAddr:  httpAddr,
		WSPath:    wsPath,
		Source:    source,
		Seed:      seed,
		Heartbeat: heartbeat,
		TxQueue:   txQueue,
	}
	if !noMDNS {
		cfg.Instance = instance
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start()
}

// Version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kinesim %s\n", version.Full())
	},
}
