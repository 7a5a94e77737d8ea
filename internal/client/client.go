package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kineintra/kineintra/internal/logging"
	"github.com/kineintra/kineintra/internal/protocol"
	"github.com/kineintra/kineintra/internal/transport"
)

// DefaultDispatchBuffer is the number of events waiting for callbacks
// before the transport reader waits for the dispatcher.
const DefaultDispatchBuffer = 1024

// Callback types for On* registration.
type (
	StatusHandler func(protocol.StatusPayload)
	DataHandler   func(protocol.DataPayload)
	AckHandler    func(protocol.AckPayload)
	ErrorHandler  func(protocol.ErrorPayload)
	FrameHandler  func(protocol.Frame)
)

// Config tunes a Client. Zero values select defaults.
type Config struct {
	QueueSize      int
	DispatchBuffer int
	Transport      transport.Config
	Logger         *zap.Logger
}

// Statistics extends the transport counters with client-side drops.
type Statistics struct {
	transport.Statistics
	DecodeErrors     uint64
	DroppedEvents    uint64
	DroppedCallbacks uint64
}

// Client maps intents to COMMAND frames and routes received frames to
// callbacks and to a pollable queue. Both paths see every event.
//
// Callbacks run on one dispatcher goroutine per connection, in wire order.
// Disconnect waits for the dispatcher, so no callback runs after it
// returns. Callbacks must not call Connect or Disconnect.
type Client struct {
	cfg  Config
	log  *zap.Logger
	conn *transport.Connection

	lifecycle sync.Mutex // serializes Connect and Disconnect

	mu         sync.RWMutex // guards the fields below
	lastStatus *protocol.StatusPayload
	layout     *protocol.SampleLayout
	onStatus   []StatusHandler
	onData     []DataHandler
	onAck      []AckHandler
	onError    []ErrorHandler
	onFrame    []FrameHandler

	dispatchMu   sync.Mutex
	dispatch     chan dispatchItem
	dispatchStop chan struct{} // closed first on disconnect to release a waiting reader
	dispatchDone chan struct{}

	queue *eventQueue

	decodeErrors     atomic.Uint64
	droppedCallbacks atomic.Uint64
}

type dispatchItem struct {
	frame protocol.Frame
	event Event
}

// New creates a disconnected Client.
func New(cfg Config) *Client {
	if cfg.DispatchBuffer <= 0 {
		cfg.DispatchBuffer = DefaultDispatchBuffer
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Named("client")
	}
	if cfg.Transport.Logger == nil {
		cfg.Transport.Logger = log.Named("transport")
	}

	c := &Client{
		cfg:   cfg,
		log:   log,
		conn:  transport.NewConnection(cfg.Transport),
		queue: newEventQueue(cfg.QueueSize),
	}
	c.conn.RegisterFrameCallback(c.handleFrame)
	return c
}

// Connect opens target, waiting at most until ctx expires for the first
// successful open. The cached status is cleared.
func (c *Client) Connect(ctx context.Context, target transport.Target) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.conn.IsConnected() {
		return transport.ErrAlreadyConnected
	}
	// Reap a connection that failed on its own.
	c.haltDispatch()
	_ = c.conn.Disconnect()
	c.stopDispatcher()

	c.mu.Lock()
	c.lastStatus = nil
	c.layout = nil
	c.mu.Unlock()

	c.startDispatcher()
	if err := c.conn.Connect(ctx, target); err != nil {
		c.stopDispatcher()
		return err
	}
	c.log.Info("Connected", zap.String("target", target.String()))
	return nil
}

// ConnectTimeout is Connect with a relative deadline.
func (c *Client) ConnectTimeout(target transport.Target, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Connect(ctx, target)
}

// Disconnect closes the channel and drains pending callbacks. It is
// idempotent.
func (c *Client) Disconnect() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.haltDispatch()
	err := c.conn.Disconnect()
	c.stopDispatcher()
	return err
}

// IsConnected reports whether the channel is open.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// State returns the transport state.
func (c *Client) State() transport.ConnectionState {
	return c.conn.State()
}

// OnStateChange observes transport state transitions.
func (c *Client) OnStateChange(fn transport.StateCallback) {
	c.conn.OnStateChange(fn)
}

// Errors delivers transport errors: the terminal failure of a channel and
// recovered panics.
func (c *Client) Errors() <-chan error {
	return c.conn.Errors()
}

func (c *Client) OnStatus(fn StatusHandler) {
	c.mu.Lock()
	c.onStatus = append(c.onStatus, fn)
	c.mu.Unlock()
}

func (c *Client) OnData(fn DataHandler) {
	c.mu.Lock()
	c.onData = append(c.onData, fn)
	c.mu.Unlock()
}

func (c *Client) OnAck(fn AckHandler) {
	c.mu.Lock()
	c.onAck = append(c.onAck, fn)
	c.mu.Unlock()
}

func (c *Client) OnError(fn ErrorHandler) {
	c.mu.Lock()
	c.onError = append(c.onError, fn)
	c.mu.Unlock()
}

// OnRawFrame receives every CRC-valid frame before decoding.
func (c *Client) OnRawFrame(fn FrameHandler) {
	c.mu.Lock()
	c.onFrame = append(c.onFrame, fn)
	c.mu.Unlock()
}

// Poll returns the oldest queued event, waiting up to timeout.
func (c *Client) Poll(timeout time.Duration) (Event, bool) {
	return c.queue.pop(timeout)
}

// Pending is the number of events waiting in the poll queue.
func (c *Client) Pending() int {
	return c.queue.len()
}

// LastStatus returns the most recent STATUS, if any has been received.
func (c *Client) LastStatus() (protocol.StatusPayload, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastStatus == nil {
		return protocol.StatusPayload{}, false
	}
	return *c.lastStatus, true
}

// Layout returns the sample layout DATA frames are currently decoded with.
func (c *Client) Layout() (protocol.SampleLayout, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.layout == nil {
		return protocol.SampleLayout{}, false
	}
	return *c.layout, true
}

// DroppedEvents counts events discarded from a full poll queue.
func (c *Client) DroppedEvents() uint64 {
	return c.queue.dropped.Load()
}

// Statistics returns transport and client counters.
func (c *Client) Statistics() Statistics {
	return Statistics{
		Statistics:       c.conn.Statistics(),
		DecodeErrors:     c.decodeErrors.Load(),
		DroppedEvents:    c.queue.dropped.Load(),
		DroppedCallbacks: c.droppedCallbacks.Load(),
	}
}

// handleFrame runs on the transport reader goroutine. It decodes, updates
// the status cache and hands the event to both delivery paths without
// blocking.
func (c *Client) handleFrame(f protocol.Frame) {
	if !f.CRCValid {
		// Counted by the transport.
		return
	}

	c.mu.RLock()
	layout := c.layout
	c.mu.RUnlock()

	msg, err := protocol.Decode(&f, layout)
	if err != nil {
		c.decodeErrors.Add(1)
		c.log.Warn("Failed to decode frame", zap.Stringer("kind", f.Kind), zap.Error(err))
		return
	}

	if st, ok := msg.(protocol.StatusPayload); ok {
		l := st.Layout()
		c.mu.Lock()
		c.lastStatus = &st
		c.layout = &l
		c.mu.Unlock()
	}

	ev := Event{Kind: f.Kind, Message: msg, Received: time.Now()}
	c.queue.push(ev)

	c.dispatchMu.Lock()
	ch, stop := c.dispatch, c.dispatchStop
	c.dispatchMu.Unlock()
	if ch == nil {
		return
	}
	if stop == nil {
		// Disconnecting.
		c.droppedCallbacks.Add(1)
		return
	}

	item := dispatchItem{frame: f, event: ev}
	select {
	case ch <- item:
		return
	default:
	}

	// The backlog is full: hold the reader until callbacks catch up.
	c.log.Debug("Callback backlog full, waiting for dispatcher", zap.Int("backlog", cap(ch)))
	select {
	case ch <- item:
	case <-stop:
		c.droppedCallbacks.Add(1)
	}
}

func (c *Client) startDispatcher() {
	ch := make(chan dispatchItem, c.cfg.DispatchBuffer)
	stop := make(chan struct{})
	done := make(chan struct{})

	c.dispatchMu.Lock()
	c.dispatch = ch
	c.dispatchStop = stop
	c.dispatchDone = done
	c.dispatchMu.Unlock()

	go func() {
		defer close(done)
		for item := range ch {
			c.deliver(item)
		}
	}()
}

// haltDispatch releases a reader waiting on a full backlog. Events the
// reader produces from then on skip the callbacks.
func (c *Client) haltDispatch() {
	c.dispatchMu.Lock()
	if c.dispatchStop != nil {
		close(c.dispatchStop)
		c.dispatchStop = nil
	}
	c.dispatchMu.Unlock()
}

// stopDispatcher must only run once the transport reader has stopped, so
// nothing sends on the channel it closes.
func (c *Client) stopDispatcher() {
	c.haltDispatch()
	c.dispatchMu.Lock()
	ch, done := c.dispatch, c.dispatchDone
	c.dispatch, c.dispatchDone = nil, nil
	c.dispatchMu.Unlock()

	if ch == nil {
		return
	}
	close(ch)
	<-done
}

func (c *Client) deliver(item dispatchItem) {
	c.mu.RLock()
	frameFns := c.onFrame
	statusFns := c.onStatus
	dataFns := c.onData
	ackFns := c.onAck
	errorFns := c.onError
	c.mu.RUnlock()

	for _, fn := range frameFns {
		c.safely("frame", func() { fn(item.frame) })
	}

	switch m := item.event.Message.(type) {
	case protocol.StatusPayload:
		for _, fn := range statusFns {
			c.safely("status", func() { fn(m) })
		}
	case protocol.DataPayload:
		for _, fn := range dataFns {
			c.safely("data", func() { fn(m) })
		}
	case protocol.AckPayload:
		for _, fn := range ackFns {
			c.safely("ack", func() { fn(m) })
		}
	case protocol.ErrorPayload:
		for _, fn := range errorFns {
			c.safely("error", func() { fn(m) })
		}
	case protocol.CommandPayload:
		// Commands only flow host to device; echoes are queued but have
		// no callback list.
	}
}

func (c *Client) safely(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Callback panicked",
				zap.String("kind", kind),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	fn()
}
