package simulator

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kineintra/kineintra/internal/logging"
	"github.com/kineintra/kineintra/internal/protocol"
)

const (
	// DefaultHeartbeat is the STATUS interval while idle.
	DefaultHeartbeat = 500 * time.Millisecond

	// DefaultTxQueue is the number of frames buffered towards the host
	// before the device starts dropping and reports FIFO_CRITICAL.
	DefaultTxQueue = 256

	readBufferSize = 1024
)

// Observer receives simulator events, typically to feed metrics.
type Observer interface {
	FrameSent(kind protocol.Kind)
	CommandHandled(id protocol.CommandID, result protocol.AckResult)
	FramesDropped(n int)
}

type nopObserver struct{}

func (nopObserver) FrameSent(protocol.Kind)                            {}
func (nopObserver) CommandHandled(protocol.CommandID, protocol.AckResult) {}
func (nopObserver) FramesDropped(int)                                   {}

// Config tunes a Simulator. Zero values select defaults.
type Config struct {
	Heartbeat time.Duration
	TxQueue   int
	Source    Source
	Observer  Observer
	Logger    *zap.Logger
}

// Stats counts simulator activity across sessions.
type Stats struct {
	FramesSent      uint64
	CommandsHandled uint64
	CRCDrops        uint64
	TxDropped       uint64
}

// Simulator exposes one Device over a byte stream. The device keeps its
// configuration across Serve calls like a board that stays powered while
// the host reconnects. Only one Serve may run at a time.
type Simulator struct {
	cfg    Config
	log    *zap.Logger
	device *Device

	serving atomic.Bool

	// faults carries injected ERROR frames to the running session.
	faults chan protocol.ErrorPayload

	framesSent      atomic.Uint64
	commandsHandled atomic.Uint64
	crcDrops        atomic.Uint64
	txDropped       atomic.Uint64
}

// ErrBusy is returned by Serve when another session is already running.
var ErrBusy = errors.New("simulator already serving a session")

// New creates a simulator with a power-on device.
func New(cfg Config) *Simulator {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.TxQueue <= 0 {
		cfg.TxQueue = DefaultTxQueue
	}
	if cfg.Source == nil {
		cfg.Source = NewRandomSource(uint64(time.Now().UnixNano()))
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Named("simulator")
	}
	return &Simulator{
		cfg:    cfg,
		log:    log,
		device: NewDevice(),
		faults: make(chan protocol.ErrorPayload, 4),
	}
}

// Device returns the simulated device.
func (s *Simulator) Device() *Device {
	return s.device
}

// InjectFault latches the device into the Error state. The ERROR frame is
// sent on the running session, or on the next one.
func (s *Simulator) InjectFault(code protocol.ErrorCode, aux uint16) {
	e := s.device.InjectFault(code, aux)
	s.log.Warn("Injected fault", zap.Stringer("code", code), zap.Uint16("aux", aux))
	select {
	case s.faults <- e:
	default:
	}
}

// Stats returns a snapshot of the counters.
func (s *Simulator) Stats() Stats {
	return Stats{
		FramesSent:      s.framesSent.Load(),
		CommandsHandled: s.commandsHandled.Load(),
		CRCDrops:        s.crcDrops.Load(),
		TxDropped:       s.txDropped.Load(),
	}
}

// session is the per-connection plumbing of Serve.
type session struct {
	sim *Simulator
	ch  io.ReadWriteCloser
	log *zap.Logger

	// order keeps a command's ACK and STATUS ahead of any DATA sampled
	// under the state the command produced.
	order sync.Mutex

	tx       chan []byte
	dropped  atomic.Int64
	overflow atomic.Bool
}

// Serve runs the device on ch until the host closes it or ctx is done. It
// closes ch before returning. A closed channel is a normal end of session
// and yields a nil error.
func (s *Simulator) Serve(ctx context.Context, ch io.ReadWriteCloser) error {
	if !s.serving.CompareAndSwap(false, true) {
		_ = ch.Close()
		return ErrBusy
	}
	defer s.serving.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ss := &session{
		sim: s,
		ch:  ch,
		log: s.log,
		tx:  make(chan []byte, s.cfg.TxQueue),
	}

	var closeOnce sync.Once
	closeCh := func() { closeOnce.Do(func() { _ = ch.Close() }) }
	defer closeCh()

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		ss.writeLoop(ctx)
		cancel()
	}()
	go func() {
		defer wg.Done()
		ss.streamLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		ss.controlLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		closeCh()
	}()

	err := ss.readLoop()
	cancel()
	closeCh()
	wg.Wait()

	if err != nil && !isClosed(err) && ctx.Err() == nil {
		return err
	}
	return nil
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}

func (ss *session) readLoop() error {
	reasm := protocol.NewReassembler()
	buf := make([]byte, readBufferSize)
	for {
		n, err := ss.ch.Read(buf)
		if n > 0 {
			for _, f := range reasm.Process(buf[:n]) {
				ss.handleFrame(f)
			}
		}
		if err != nil {
			return err
		}
	}
}

// controlLoop emits idle heartbeats and injected faults.
func (ss *session) controlLoop(ctx context.Context) {
	heartbeat := time.NewTicker(ss.sim.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if ss.sim.device.State() == protocol.StateIdle {
				ss.send(ss.sim.device.Status(), nil)
			}
		case e := <-ss.sim.faults:
			ss.send(e, nil)
		}
	}
}

func (ss *session) handleFrame(f protocol.Frame) {
	if !f.CRCValid {
		ss.sim.crcDrops.Add(1)
		ss.log.Debug("Dropping frame with bad CRC", zap.Stringer("kind", f.Kind))
		return
	}
	if f.Kind != protocol.KindCommand {
		ss.log.Debug("Ignoring non-command frame", zap.Stringer("kind", f.Kind))
		return
	}

	cmd, err := protocol.DecodeCommand(f.Payload)
	if err != nil && len(f.Payload) < 2 {
		// No sequence number to answer with.
		ss.log.Debug("Ignoring short command", zap.Int("length", len(f.Payload)))
		return
	}

	ss.order.Lock()
	reply := ss.sim.device.Handle(cmd, err)
	ss.send(reply.Ack, nil)
	if reply.Status != nil {
		ss.send(*reply.Status, nil)
	}
	ss.order.Unlock()

	ss.sim.commandsHandled.Add(1)
	ss.sim.cfg.Observer.CommandHandled(cmd.ID, reply.Ack.Result)
	ss.log.Info("Command",
		zap.Stringer("cmd", cmd.ID),
		zap.Uint8("seq", cmd.Seq),
		zap.Stringer("result", reply.Ack.Result),
	)
}

// send encodes m and queues it without blocking. A full queue drops the
// frame and arms the FIFO_CRITICAL report.
func (ss *session) send(m protocol.Message, layout *protocol.SampleLayout) {
	raw, err := protocol.EncodeMessage(m, layout)
	if err != nil {
		ss.log.Error("Failed to encode frame", zap.Stringer("kind", m.Kind()), zap.Error(err))
		return
	}
	select {
	case ss.tx <- raw:
	default:
		ss.dropped.Add(1)
		ss.overflow.Store(true)
		ss.sim.txDropped.Add(1)
		ss.sim.cfg.Observer.FramesDropped(1)
	}
}

func (ss *session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-ss.tx:
			if !ss.write(raw) {
				return
			}
			if len(ss.tx) == 0 && ss.overflow.Swap(false) {
				n := ss.dropped.Swap(0)
				aux := uint16(math.MaxUint16)
				if n < math.MaxUint16 {
					aux = uint16(n)
				}
				e := protocol.ErrorPayload{
					Timestamp: ss.sim.device.Timestamp(),
					Code:      protocol.ErrCodeFifoCritical,
					Aux:       aux,
				}
				ss.log.Warn("TX queue overflowed", zap.Int64("dropped", n))
				raw, err := protocol.EncodeMessage(e, nil)
				if err == nil && !ss.write(raw) {
					return
				}
			}
		}
	}
}

func (ss *session) write(raw []byte) bool {
	if _, err := ss.ch.Write(raw); err != nil {
		if !isClosed(err) {
			ss.log.Warn("Write failed", zap.Error(err))
		}
		return false
	}
	ss.sim.framesSent.Add(1)
	ss.sim.cfg.Observer.FrameSent(protocol.Kind(raw[3]))
	return true
}

// streamLoop emits DATA frames at the device frame rate while measuring.
func (ss *session) streamLoop(ctx context.Context) {
	dev := ss.sim.device
	limiter := rate.NewLimiter(rate.Inf, 1)

	for {
		hz := dev.FrameRate()
		if dev.State() != protocol.StateMeasuring || hz == 0 {
			select {
			case <-ctx.Done():
				return
			case <-dev.Changed():
				continue
			}
		}

		if limiter.Limit() != rate.Limit(hz) {
			limiter.SetLimit(rate.Limit(hz))
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		ss.order.Lock()
		data, layout, ok := dev.NextData(ss.sim.cfg.Source)
		if ok {
			ss.send(data, &layout)
		}
		ss.order.Unlock()
	}
}
