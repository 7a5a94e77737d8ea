package main

import (
	"fmt"
	"time"

	"github.com/kineintra/kineintra/internal/client"
	"github.com/kineintra/kineintra/internal/config"
	"github.com/kineintra/kineintra/internal/logging"
	"github.com/kineintra/kineintra/internal/protocol"
	"github.com/kineintra/kineintra/internal/transport"
	"github.com/kineintra/kineintra/internal/ui"
)

// Global flags
var (
	targetOpts targetOptions
	logLevel   string
	logFile    string
	jsonOutput bool
)

// targetOptions holds the target selection flags.
type targetOptions struct {
	Port    string
	Baud    int
	TCP     string
	WS      string
	Sim     bool
	Source  string
	Profile string
	Timeout time.Duration
}

// findPort locates the board's USB serial adapter when nothing else selects
// a target.
var findPort = func() (transport.PortInfo, error) {
	return transport.FindPort(transport.DefaultVID, transport.DefaultPID)
}

func (o targetOptions) explicit() int {
	n := 0
	for _, set := range []bool{o.Port != "", o.TCP != "", o.WS != "", o.Sim} {
		if set {
			n++
		}
	}
	return n
}

// profile builds the profile the flags describe. Flags win over the config
// file; --baud and --source also adjust a profile loaded from it.
func (o targetOptions) profile(reg *config.Registry) (*config.Profile, error) {
	if o.explicit() > 1 {
		return nil, fmt.Errorf("use only one of --port, --tcp, --ws and --sim")
	}

	switch {
	case o.Port != "":
		return &config.Profile{Kind: config.KindSerial, Port: o.Port, Baud: o.Baud}, nil
	case o.TCP != "":
		return &config.Profile{Kind: config.KindTCP, Address: o.TCP}, nil
	case o.WS != "":
		return &config.Profile{Kind: config.KindWebSocket, URL: o.WS}, nil
	case o.Sim:
		return &config.Profile{Kind: config.KindSim, Source: o.Source}, nil
	}

	saved, err := reg.Resolve(o.Profile)
	if err == nil {
		p := *saved
		if p.Kind == config.KindSerial && o.Baud != 0 {
			p.Baud = o.Baud
		}
		if p.Kind == config.KindSim && o.Source != "" {
			p.Source = o.Source
		}
		return &p, nil
	}
	if o.Profile != "" {
		return nil, err
	}

	port, ferr := findPort()
	if ferr != nil {
		return nil, fmt.Errorf("no target: use --port, --tcp, --ws, --sim or --profile (%v)", ferr)
	}
	return &config.Profile{Kind: config.KindSerial, Port: port.Name, Baud: o.Baud}, nil
}

// resolve returns the target and the timeout for connecting and for each
// reply.
func (o targetOptions) resolve(reg *config.Registry) (transport.Target, time.Duration, error) {
	p, err := o.profile(reg)
	if err != nil {
		return nil, 0, err
	}
	target, err := p.Target()
	if err != nil {
		return nil, 0, fmt.Errorf("invalid target: %w", err)
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = p.Timeout()
	}
	return target, timeout, nil
}

// setupLogging applies --log-level and --log-file. Without flags the
// config's log_file and log_level are used, and stderr stays silent unless
// KINEINTRA_LOG_LEVEL is set.
func setupLogging(prefs *config.Preferences) error {
	opts := logging.Options{Level: logLevel, File: logFile}
	if opts.File == "" && prefs != nil && prefs.LogFile != "" {
		opts.File = prefs.LogFile
		if opts.Level == "" {
			opts.Level = prefs.LogLevel
		}
	}
	if err := logging.InitializeWithOptions(opts); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

func newPrinter() *ui.Printer {
	p := ui.NewPrinter(nil)
	p.JSON = jsonOutput
	return p
}

// session is a client bound to the resolved target.
type session struct {
	client  *client.Client
	target  transport.Target
	timeout time.Duration
	seq     *client.Sequence
}

// prepare loads the config, sets up logging and resolves the target. The
// client is not connected yet.
func prepare() (*session, error) {
	reg, err := config.LoadRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := setupLogging(reg.Preferences); err != nil {
		return nil, err
	}
	return newSession(reg, targetOpts)
}

func newSession(reg *config.Registry, opts targetOptions) (*session, error) {
	target, timeout, err := opts.resolve(reg)
	if err != nil {
		return nil, err
	}
	var queue int
	if reg.Preferences != nil {
		queue = reg.Preferences.QueueSize
	}
	return &session{
		client:  client.New(client.Config{QueueSize: queue, Logger: logging.Named("client")}),
		target:  target,
		timeout: timeout,
		seq:     &client.Sequence{},
	}, nil
}

// connect opens the link unless it is already up, so several exchanges can
// share one session.
func (s *session) connect() error {
	if s.client.IsConnected() {
		return nil
	}
	if err := s.client.ConnectTimeout(s.target, s.timeout); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.target, err)
	}
	logging.LogConnection(s.target.String(), "connected")
	return nil
}

func (s *session) close() {
	if s.client.IsConnected() {
		_ = s.client.Disconnect()
		logging.LogConnection(s.target.String(), "disconnected")
	}
	logging.Sync()
}

// await polls events until match accepts one or the session timeout
// expires. A terminal transport error ends the wait early.
func (s *session) await(what string, match func(client.Event) bool) (client.Event, error) {
	deadline := time.Now().Add(s.timeout)
	for {
		select {
		case err := <-s.client.Errors():
			if transport.IsTerminal(err) {
				return client.Event{}, fmt.Errorf("link lost while waiting for %s: %w", what, err)
			}
		default:
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return client.Event{}, fmt.Errorf("no %s within %s", what, s.timeout)
		}
		ev, ok := s.client.Poll(min(remaining, 100*time.Millisecond))
		if ok && match(ev) {
			return ev, nil
		}
	}
}

func (s *session) awaitAck(id protocol.CommandID, seq uint8) (protocol.AckPayload, error) {
	ev, err := s.await(fmt.Sprintf("ACK for %s seq %d", id, seq), func(ev client.Event) bool {
		ack, ok := ev.AsAck()
		return ok && ack.Seq == seq && ack.CommandID == id
	})
	if err != nil {
		return protocol.AckPayload{}, err
	}
	ack, _ := ev.AsAck()
	return ack, nil
}

func (s *session) awaitStatus() (protocol.StatusPayload, error) {
	ev, err := s.await("STATUS", func(ev client.Event) bool {
		_, ok := ev.AsStatus()
		return ok
	})
	if err != nil {
		return protocol.StatusPayload{}, err
	}
	st, _ := ev.AsStatus()
	return st, nil
}
