package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kineintra/kineintra/internal/discovery"
	"github.com/kineintra/kineintra/internal/logging"
	"github.com/kineintra/kineintra/internal/metrics"
	"github.com/kineintra/kineintra/internal/protocol"
	"github.com/kineintra/kineintra/internal/simulator"
)

const (
	DefaultAddr     = "127.0.0.1:8888"
	DefaultHTTPAddr = "127.0.0.1:8889"
	DefaultWSPath   = "/ws"

	// shutdownTimeout caps Shutdown when the caller's context has no deadline.
	shutdownTimeout = 10 * time.Second
	acceptBackoff   = 100 * time.Millisecond
)

// Config holds the server configuration
type Config struct {
	Addr     string // raw frame listener, DefaultAddr when empty
	HTTPAddr string // WebSocket, metrics and health listener, DefaultHTTPAddr when empty
	WSPath   string

	// Instance is the mDNS instance name. Empty disables advertisement.
	Instance string

	// Source names the sample source for each session's device
	// ("random", "sine", "constant"). Seed feeds the random source; each
	// session gets Seed plus its ordinal so streams differ.
	Source string
	Seed   uint64

	Heartbeat time.Duration
	TxQueue   int

	// Registry receives the simulator metrics. A fresh registry is
	// created when nil.
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

// SessionInfo describes one connected host.
type SessionInfo struct {
	ID        string    `json:"id"`
	Transport string    `json:"transport"`
	Remote    string    `json:"remote"`
	Started   time.Time `json:"started"`
	State     string    `json:"state"`
}

type session struct {
	info SessionInfo
	conn io.Closer
	sim  *simulator.Simulator
}

// Server hosts one simulated device per connection over TCP and WebSocket.
type Server struct {
	config   Config
	log      *zap.Logger
	registry *prometheus.Registry
	observer *metrics.SimulatorMetrics
	upgrader websocket.Upgrader

	listener   net.Listener
	httpLn     net.Listener
	httpServer *http.Server
	advertiser *discovery.Advertiser

	ctx    context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	mu       sync.Mutex
	closing  bool
	sessions map[string]*session
	ordinal  atomic.Uint64
}

// New validates config and prepares a server. Nothing is bound until Listen.
func New(config Config) (*Server, error) {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.HTTPAddr == "" {
		config.HTTPAddr = DefaultHTTPAddr
	}
	if config.WSPath == "" {
		config.WSPath = DefaultWSPath
	}
	if _, err := simulator.NewSource(config.Source, config.Seed); err != nil {
		return nil, err
	}
	if config.Registry == nil {
		config.Registry = metrics.NewRegistry()
	}
	log := config.Logger
	if log == nil {
		log = logging.Named("server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   config,
		log:      log,
		registry: config.Registry,
		observer: metrics.NewSimulatorMetrics(config.Registry),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
	}
	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Listen binds both listeners and starts the mDNS advertisement.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	httpLn, err := net.Listen("tcp", s.config.HTTPAddr)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to listen on %s: %w", s.config.HTTPAddr, err)
	}
	s.listener = ln
	s.httpLn = httpLn

	s.log.Info("Simulator server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("http_addr", httpLn.Addr().String()),
		zap.String("ws_path", s.config.WSPath),
		zap.String("source", s.config.Source),
	)

	if s.config.Instance != "" {
		adv, err := discovery.Advertise(s.config.Instance, portOf(ln.Addr()), map[string]string{
			discovery.TxtProtocol: strconv.Itoa(int(protocol.ProtocolVersion)),
			discovery.TxtKind:     "sim",
			discovery.TxtHTTPPort: strconv.Itoa(portOf(httpLn.Addr())),
			discovery.TxtWSPath:   s.config.WSPath,
		})
		if err != nil {
			// The server is still usable by address.
			s.log.Warn("mDNS advertisement failed", zap.Error(err))
		} else {
			s.advertiser = adv
			s.log.Info("Advertising over mDNS",
				zap.String("instance", s.config.Instance),
				zap.String("service", discovery.ServiceType),
			)
		}
	}
	return nil
}

// Serve accepts connections until Shutdown. Listen must have succeeded.
func (s *Server) Serve() error {
	if s.listener == nil || s.httpLn == nil {
		return errors.New("server is not listening")
	}
	errChan := make(chan error, 2)
	go func() {
		errChan <- s.acceptConnections()
	}()
	go func() {
		err := s.httpServer.Serve(s.httpLn)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errChan <- err
	}()

	if err := <-errChan; err != nil {
		return err
	}
	return <-errChan
}

// Start listens, serves and blocks until SIGINT/SIGTERM or a fatal error.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve()
	}()

	select {
	case <-sigChan:
		s.log.Info("Shutdown signal received, stopping server...")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		_ = s.Shutdown(context.Background())
		return err
	}
}

// Addr returns the raw frame listener address, nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// HTTPAddr returns the HTTP listener address, nil before Listen.
func (s *Server) HTTPAddr() net.Addr {
	if s.httpLn == nil {
		return nil
	}
	return s.httpLn.Addr()
}

// Registry returns the registry backing /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// acceptConnections accepts and handles incoming connections
func (s *Server) acceptConnections() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error("Failed to accept connection", zap.Error(err))
			time.Sleep(acceptBackoff)
			continue
		}
		go s.runSession("tcp", conn.RemoteAddr().String(), conn)
	}
}

// runSession serves one simulated device on ch until either side closes it.
func (s *Server) runSession(transportName, remote string, ch io.ReadWriteCloser) {
	ordinal := s.ordinal.Add(1)
	src, err := simulator.NewSource(s.config.Source, s.config.Seed+ordinal)
	if err != nil {
		// Validated in New.
		_ = ch.Close()
		return
	}

	id := uuid.NewString()
	log := s.log.With(
		zap.String("session", id),
		zap.String("transport", transportName),
		zap.String("remote_addr", remote),
	)
	sim := simulator.New(simulator.Config{
		Heartbeat: s.config.Heartbeat,
		TxQueue:   s.config.TxQueue,
		Source:    src,
		Observer:  s.observer,
		Logger:    log,
	})

	sess := &session{
		info: SessionInfo{ID: id, Transport: transportName, Remote: remote, Started: time.Now()},
		conn: ch,
		sim:  sim,
	}
	if !s.track(sess) {
		_ = ch.Close()
		return
	}
	defer s.untrack(id)

	s.observer.SessionStarted(transportName)
	defer s.observer.SessionEnded()
	log.Info("Session started")

	err = sim.Serve(s.ctx, ch)
	if err != nil && !isNormalClose(err) {
		log.Warn("Session ended with error", zap.Error(err))
	}

	stats := sim.Stats()
	log.Info("Session ended",
		zap.Duration("duration", time.Since(sess.info.Started)),
		zap.Uint64("frames_sent", stats.FramesSent),
		zap.Uint64("commands", stats.CommandsHandled),
		zap.Uint64("crc_drops", stats.CRCDrops),
		zap.Uint64("tx_dropped", stats.TxDropped),
	)
}

// track registers a session unless shutdown has begun. The WaitGroup is
// only added to under mu so it never races with Shutdown's Wait.
func (s *Server) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions[sess.info.ID] = sess
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	s.wg.Done()
}

// Sessions lists connected hosts, oldest first.
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		info := sess.info
		info.State = sess.sim.Device().State().String()
		out = append(out, info)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

// GetActiveConnections returns the number of connected hosts
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ErrUnknownSession is returned for a session ID that is not connected.
var ErrUnknownSession = errors.New("unknown session")

// InjectFault forces the device of session id into the Error state.
func (s *Server) InjectFault(id string, code protocol.ErrorCode, aux uint16) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	sess.sim.InjectFault(code, aux)
	return nil
}

// Shutdown stops accepting, closes every session and waits for them to
// finish or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server...")

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	s.advertiser.Shutdown()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Error("Error closing listener", zap.Error(err))
		}
	}
	if s.httpLn != nil {
		httpCtx, cancel := context.WithTimeout(ctx, time.Second)
		if err := s.httpServer.Shutdown(httpCtx); err != nil {
			s.log.Warn("HTTP shutdown incomplete", zap.Error(err))
		}
		cancel()
	}

	// Cancelling the session context closes every channel, including
	// hijacked WebSocket connections that http.Server does not track.
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("All sessions closed gracefully")
	case <-ctx.Done():
		s.log.Warn("Shutdown timeout, forcing close")
		s.closeAll()
		return ctx.Err()
	case <-time.After(shutdownTimeout):
		s.log.Warn("Shutdown timeout, forcing close", zap.Duration("after", shutdownTimeout))
		s.closeAll()
	}
	return nil
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		s.log.Info("Closing active session", zap.String("session", id))
		_ = sess.conn.Close()
	}
}

func isNormalClose(err error) bool {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure,
	) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF)
}

func portOf(addr net.Addr) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}
