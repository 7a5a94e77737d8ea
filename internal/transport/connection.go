package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kineintra/kineintra/internal/logging"
	"github.com/kineintra/kineintra/internal/protocol"
)

const (
	// DefaultReadBufferSize is the size of a single channel read.
	DefaultReadBufferSize = 4096

	// DefaultErrorBuffer is the capacity of the Errors channel.
	DefaultErrorBuffer = 16

	// openRetryInterval paces Open attempts inside Connect.
	openRetryInterval = 100 * time.Millisecond
)

// ConnectionState is the lifecycle position of a Connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
	StateClosing
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FrameCallback receives every frame the reassembler emits, including frames
// with CRCValid=false. It runs on the reader goroutine.
type FrameCallback func(f protocol.Frame)

// StateCallback observes state transitions.
type StateCallback func(from, to ConnectionState)

// Statistics is a snapshot of connection counters.
type Statistics struct {
	FramesSent     uint64
	FramesReceived uint64
	CRCErrors      uint64
	BytesSent      uint64
	BytesReceived  uint64
	DiscardedBytes uint64
	StallResets    uint64
	CallbackErrors uint64
}

// Config holds Connection tuning. Zero values select defaults.
type Config struct {
	StallTimeout   time.Duration
	ReadBufferSize int
	ErrorBuffer    int
	Logger         *zap.Logger
}

// Connection owns one channel and its reader goroutine. Send may be called
// from any goroutine; writes are serialized and never block the reader.
//
// Disconnect joins the reader before returning, so no FrameCallback runs
// after it returns. Disconnect must not be called from a FrameCallback.
type Connection struct {
	cfg Config
	log *zap.Logger

	mu             sync.Mutex // guards the fields below
	state          ConnectionState
	target         Target
	ch             Channel
	stop           chan struct{}
	done           chan struct{}
	frameCallbacks []FrameCallback
	stateCallbacks []StateCallback

	writeMu      sync.Mutex // single writer on ch
	disconnectMu sync.Mutex

	errs chan error

	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
	crcErrors      atomic.Uint64
	bytesSent      atomic.Uint64
	bytesReceived  atomic.Uint64
	discarded      atomic.Uint64
	stallResets    atomic.Uint64
	callbackErrors atomic.Uint64
}

// NewConnection creates a disconnected Connection.
func NewConnection(cfg Config) *Connection {
	if cfg.StallTimeout == 0 {
		cfg.StallTimeout = protocol.DefaultStallTimeout
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	if cfg.ErrorBuffer <= 0 {
		cfg.ErrorBuffer = DefaultErrorBuffer
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Named("transport")
	}
	return &Connection{
		cfg:  cfg,
		log:  log,
		errs: make(chan error, cfg.ErrorBuffer),
	}
}

// Errors delivers recovered callback panics and the single terminal error
// of a broken channel. Reports are dropped if the buffer is full.
func (c *Connection) Errors() <-chan error {
	return c.errs
}

// RegisterFrameCallback adds fn to the callbacks run for every frame.
func (c *Connection) RegisterFrameCallback(fn FrameCallback) {
	c.mu.Lock()
	c.frameCallbacks = append(c.frameCallbacks, fn)
	c.mu.Unlock()
}

// OnStateChange adds fn to the state observers.
func (c *Connection) OnStateChange(fn StateCallback) {
	c.mu.Lock()
	c.stateCallbacks = append(c.stateCallbacks, fn)
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the channel is open and the reader running.
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// Target returns the target of the last Connect.
func (c *Connection) Target() Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Connect opens target, retrying until ctx expires, and starts the reader.
func (c *Connection) Connect(ctx context.Context, target Target) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected, StateConnecting, StateClosing:
		c.mu.Unlock()
		return ErrAlreadyConnected
	case StateError:
		// The previous reader already exited; reap it before reuse.
		c.mu.Unlock()
		if err := c.Disconnect(); err != nil {
			return err
		}
		c.mu.Lock()
	}
	old := c.state
	c.state = StateConnecting
	c.target = target
	c.mu.Unlock()
	c.notifyState(old, StateConnecting)

	logging.LogConnection(target.String(), "connecting")

	ch, err := c.open(ctx, target)
	if err != nil {
		c.setState(StateError)
		terr := &TransportError{Type: ErrorTypeOpen, Target: target.String(), Err: err}
		c.log.Warn("Connect failed", zap.String("target", target.String()), zap.Error(err))
		return terr
	}

	reasm := protocol.NewReassembler(protocol.WithStallTimeout(c.cfg.StallTimeout))
	stop := make(chan struct{})
	done := make(chan struct{})

	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnect ran while we were opening.
		c.mu.Unlock()
		_ = ch.Close()
		return ErrNotConnected
	}
	c.ch = ch
	c.stop = stop
	c.done = done
	c.state = StateConnected
	c.mu.Unlock()

	go c.readLoop(ch, reasm, stop, done)

	c.notifyState(StateConnecting, StateConnected)
	logging.LogConnection(target.String(), "connected")
	return nil
}

func (c *Connection) open(ctx context.Context, target Target) (Channel, error) {
	var lastErr error
	for {
		ch, err := target.Open(ctx)
		if err == nil {
			return ch, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-time.After(openRetryInterval):
		}
	}
}

// Disconnect closes the channel and waits for the reader to exit. It is
// idempotent. A Send racing with Disconnect either completes before the
// channel closes or fails with ErrNotConnected, even when it is blocked
// in Write on a peer that stopped reading.
func (c *Connection) Disconnect() error {
	c.disconnectMu.Lock()
	defer c.disconnectMu.Unlock()

	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	old := c.state
	c.state = StateClosing
	ch, stop, done := c.ch, c.stop, c.done
	c.ch, c.stop, c.done = nil, nil, nil
	target := c.target
	c.mu.Unlock()
	c.notifyState(old, StateClosing)

	if stop != nil {
		close(stop)
	}

	// Close without the write lock: it unblocks a Send stuck in Write.
	var closeErr error
	if ch != nil {
		closeErr = ch.Close()
	}

	if done != nil {
		<-done
	}

	c.setState(StateDisconnected)
	if target != nil {
		logging.LogConnection(target.String(), "disconnected")
	}
	return closeErr
}

// Send writes one encoded frame.
func (c *Connection) Send(frame []byte) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ch := c.ch
	c.mu.Unlock()

	c.writeMu.Lock()
	// Disconnect or a read failure may have closed the channel while we
	// waited for the write lock.
	if c.State() != StateConnected {
		c.writeMu.Unlock()
		return ErrNotConnected
	}
	n, err := writeFull(ch, frame)
	c.writeMu.Unlock()

	c.bytesSent.Add(uint64(n))
	if err != nil {
		if c.State() != StateConnected {
			// The channel was closed under the write.
			return ErrNotConnected
		}
		c.fail(ErrorTypeWrite, err)
		return &TransportError{Type: ErrorTypeWrite, Target: c.targetName(), Err: err}
	}
	c.framesSent.Add(1)

	if len(frame) > 3 {
		logging.LogFrame("tx", protocol.Kind(frame[3]), frame)
	}
	return nil
}

// SendMessage encodes m and sends it.
func (c *Connection) SendMessage(m protocol.Message) error {
	raw, err := protocol.EncodeMessage(m, nil)
	if err != nil {
		return err
	}
	return c.Send(raw)
}

func writeFull(ch Channel, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := ch.Write(p[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, errors.New("short write")
		}
	}
	return total, nil
}

// Statistics returns a snapshot of the counters.
func (c *Connection) Statistics() Statistics {
	return Statistics{
		FramesSent:     c.framesSent.Load(),
		FramesReceived: c.framesReceived.Load(),
		CRCErrors:      c.crcErrors.Load(),
		BytesSent:      c.bytesSent.Load(),
		BytesReceived:  c.bytesReceived.Load(),
		DiscardedBytes: c.discarded.Load(),
		StallResets:    c.stallResets.Load(),
		CallbackErrors: c.callbackErrors.Load(),
	}
}

func (c *Connection) readLoop(ch Channel, reasm *protocol.Reassembler, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	// Reassembler counters are cumulative per connection; keep the totals
	// from earlier sessions.
	baseDiscarded := c.discarded.Load()
	baseStalls := c.stallResets.Load()

	buf := make([]byte, c.cfg.ReadBufferSize)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := ch.Read(buf)
		if n > 0 {
			c.bytesReceived.Add(uint64(n))
			frames := reasm.Process(buf[:n])

			st := reasm.Stats()
			c.discarded.Store(baseDiscarded + st.DiscardedBytes)
			c.stallResets.Store(baseStalls + st.StallResets)

			for i := range frames {
				select {
				case <-stop:
					return
				default:
				}
				c.dispatch(frames[i])
			}
		}

		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			c.fail(ErrorTypeRead, err)
			return
		}
	}
}

func (c *Connection) dispatch(f protocol.Frame) {
	c.framesReceived.Add(1)
	if !f.CRCValid {
		c.crcErrors.Add(1)
		c.log.Debug("CRC mismatch", zap.Stringer("kind", f.Kind), zap.Int("length", len(f.Payload)))
	}

	c.mu.Lock()
	callbacks := append([]FrameCallback(nil), c.frameCallbacks...)
	c.mu.Unlock()

	for _, cb := range callbacks {
		c.invoke(cb, f)
	}
}

func (c *Connection) invoke(cb FrameCallback, f protocol.Frame) {
	defer func() {
		if r := recover(); r != nil {
			c.callbackErrors.Add(1)
			err := &TransportError{
				Type:   ErrorTypeCallback,
				Target: c.targetName(),
				Err:    fmt.Errorf("frame callback panicked: %v", r),
			}
			c.log.Warn("Recovered frame callback panic", zap.Error(err))
			c.report(err)
		}
	}()
	cb(f)
}

// fail moves a live connection to StateError, closes the channel and
// reports one terminal error. Later failures are ignored.
func (c *Connection) fail(typ ErrorType, err error) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateError
	ch := c.ch
	c.ch = nil
	target := c.targetNameLocked()
	c.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}

	terr := &TransportError{Type: typ, Target: target, Err: err}
	c.log.Error("Channel failed", zap.String("target", target), zap.Error(err))
	logging.LogConnection(target, "failed")
	c.report(terr)
	c.notifyState(StateConnected, StateError)
}

func (c *Connection) report(err error) {
	select {
	case c.errs <- err:
	default:
		c.log.Warn("Error channel full, dropping report", zap.Error(err))
	}
}

func (c *Connection) setState(s ConnectionState) {
	c.mu.Lock()
	old := c.state
	c.state = s
	c.mu.Unlock()
	if old != s {
		c.notifyState(old, s)
	}
}

func (c *Connection) notifyState(from, to ConnectionState) {
	c.mu.Lock()
	callbacks := append([]StateCallback(nil), c.stateCallbacks...)
	c.mu.Unlock()
	for _, cb := range callbacks {
		cb(from, to)
	}
}

func (c *Connection) targetName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetNameLocked()
}

func (c *Connection) targetNameLocked() string {
	if c.target == nil {
		return ""
	}
	return c.target.String()
}
