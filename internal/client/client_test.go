package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kineintra/kineintra/internal/protocol"
	"github.com/kineintra/kineintra/internal/simulator"
	"github.com/kineintra/kineintra/internal/transport"
)

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	cfg.Logger = zap.NewNop()
	c := New(cfg)
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func connectSim(t *testing.T, c *Client, cfg simulator.Config) *simulator.VirtualTarget {
	t.Helper()
	cfg.Logger = zap.NewNop()
	target := simulator.NewVirtualTarget(cfg)
	require.NoError(t, c.ConnectTimeout(target, time.Second))
	return target
}

// pollKind drains the queue until an event of kind arrives.
func pollKind(t *testing.T, c *Client, kind protocol.Kind, timeout time.Duration) Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			t.Fatalf("no %s event within %v", kind, timeout)
		}
		ev, ok := c.Poll(left)
		if ok && ev.Kind == kind {
			return ev
		}
	}
}

func TestHeartbeatWhileIdle(t *testing.T) {
	c := newTestClient(t, Config{})
	var statuses atomic.Int32
	c.OnStatus(func(protocol.StatusPayload) { statuses.Add(1) })

	connectSim(t, c, simulator.Config{})
	time.Sleep(700 * time.Millisecond)

	assert.GreaterOrEqual(t, statuses.Load(), int32(1))
	st, ok := c.LastStatus()
	require.True(t, ok)
	assert.Equal(t, protocol.StateIdle, st.State)
	assert.Equal(t, uint64(0), c.Statistics().CRCErrors)
}

func TestGetStatusAckAndStatus(t *testing.T) {
	c := newTestClient(t, Config{})
	connectSim(t, c, simulator.Config{Heartbeat: time.Hour})

	require.NoError(t, c.GetStatus(1))

	ev := pollKind(t, c, protocol.KindAck, 500*time.Millisecond)
	ack, ok := ev.AsAck()
	require.True(t, ok)
	assert.Equal(t, protocol.AckPayload{CommandID: protocol.CmdGetStatus, Seq: 1, Result: protocol.AckOK}, ack)

	ev = pollKind(t, c, protocol.KindStatus, 500*time.Millisecond)
	st, ok := ev.AsStatus()
	require.True(t, ok)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, st.ActiveSensors())
}

func TestAckSequenceCorrelation(t *testing.T) {
	c := newTestClient(t, Config{})
	connectSim(t, c, simulator.Config{Heartbeat: time.Hour})

	var mu sync.Mutex
	var acks []protocol.AckPayload
	c.OnAck(func(a protocol.AckPayload) {
		mu.Lock()
		acks = append(acks, a)
		mu.Unlock()
	})

	var seq Sequence
	sent := make(map[uint8]protocol.CommandID)
	for i := 0; i < 10; i++ {
		s := seq.Next()
		if i%2 == 0 {
			require.NoError(t, c.GetStatus(s))
			sent[s] = protocol.CmdGetStatus
		} else {
			require.NoError(t, c.SetRate(s, i, 50+i))
			sent[s] = protocol.CmdSetRate
		}
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(acks) == 10
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, a := range acks {
		assert.Equal(t, uint8(i+1), a.Seq, "acks arrive in command order")
		assert.Equal(t, sent[a.Seq], a.CommandID)
		assert.Equal(t, protocol.AckOK, a.Result)
	}
}

func TestStreamingDecodesWithLayout(t *testing.T) {
	c := newTestClient(t, Config{})
	connectSim(t, c, simulator.Config{Heartbeat: time.Hour, Source: &simulator.ConstantSource{Default: 1000}})

	var seq Sequence
	require.NoError(t, c.SetActiveMap(seq.Next(), map[int]bool{0: true, 1: false, 2: true}, 3))
	require.NoError(t, c.SetBits(seq.Next(), 2, 20))
	require.NoError(t, c.SetRate(seq.Next(), 0, 500))
	require.NoError(t, c.StartMeasure(seq.Next()))

	ev := pollKind(t, c, protocol.KindData, time.Second)
	data, ok := ev.AsData()
	require.True(t, ok)
	assert.Equal(t, []protocol.Sample{{Index: 0, Value: 1000}, {Index: 2, Value: 1000}}, data.Samples)

	layout, ok := c.Layout()
	require.True(t, ok)
	assert.Equal(t, uint32(0b101), layout.ActiveMap)
	assert.Equal(t, uint8(20), layout.Bits[2])

	require.NoError(t, c.StopMeasure(seq.Next()))
	assert.Equal(t, uint64(0), c.Statistics().DecodeErrors)
}

func TestNoCallbacksAfterDisconnect(t *testing.T) {
	c := newTestClient(t, Config{})
	connectSim(t, c, simulator.Config{Heartbeat: time.Hour})

	var disconnected atomic.Bool
	var late atomic.Int32
	var got atomic.Int32
	c.OnData(func(protocol.DataPayload) {
		got.Add(1)
		if disconnected.Load() {
			late.Add(1)
		}
	})

	require.NoError(t, c.SetRate(1, 0, 2000))
	require.NoError(t, c.StartMeasure(2))
	require.Eventually(t, func() bool { return got.Load() > 5 }, time.Second, time.Millisecond)

	require.NoError(t, c.Disconnect())
	disconnected.Store(true)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(0), late.Load())
	assert.False(t, c.IsConnected())
	assert.NoError(t, c.Disconnect(), "second disconnect is a no-op")
}

func TestCommandsRequireConnection(t *testing.T) {
	c := newTestClient(t, Config{})

	cmds := map[string]func() error{
		"GetStatus":      func() error { return c.GetStatus(1) },
		"StartMeasure":   func() error { return c.StartMeasure(1) },
		"StopMeasure":    func() error { return c.StopMeasure(1) },
		"SetSensorCount": func() error { return c.SetSensorCount(1, 4) },
		"SetRate":        func() error { return c.SetRate(1, 0, 100) },
		"SetBits":        func() error { return c.SetBits(1, 0, 12) },
		"SetActiveMap":   func() error { return c.SetActiveMap(1, map[int]bool{0: true}, 1) },
		"Calibrate":      func() error { return c.Calibrate(1, 0) },
		"StopCalibrate":  func() error { return c.StopCalibrate(1) },
		"EndCalibrate":   func() error { return c.EndCalibrate(1) },
	}
	for name, fn := range cmds {
		assert.ErrorIs(t, fn(), ErrNotConnected, name)
	}
	assert.Equal(t, uint64(0), c.Statistics().FramesSent)
}

func TestCommandValidation(t *testing.T) {
	c := newTestClient(t, Config{})

	tests := []struct {
		name  string
		call  func() error
		field string
	}{
		{"count high", func() error { return c.SetSensorCount(1, 33) }, "sensor count"},
		{"count negative", func() error { return c.SetSensorCount(1, -1) }, "sensor count"},
		{"rate index", func() error { return c.SetRate(1, 32, 10) }, "sensor index"},
		{"rate high", func() error { return c.SetRate(1, 0, 70000) }, "rate"},
		{"rate negative", func() error { return c.SetRate(1, 0, -1) }, "rate"},
		{"bits zero", func() error { return c.SetBits(1, 0, 0) }, "bits"},
		{"bits wide", func() error { return c.SetBits(1, 0, 33) }, "bits"},
		{"bits index", func() error { return c.SetBits(1, -1, 8) }, "sensor index"},
		{"map length", func() error { return c.SetActiveMap(1, map[int]bool{0: true}, 2) }, "sensor mapping length"},
		{"map too many", func() error { return c.SetActiveMap(1, map[int]bool{}, 40) }, "sensor count"},
		{"map index", func() error { return c.SetActiveMap(1, map[int]bool{32: true}, 1) }, "sensor index"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestActiveMap(t *testing.T) {
	m, err := ActiveMap(map[int]bool{0: true, 1: false, 5: true, 31: true}, 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(1|1<<5|1<<31), m)

	m, err = ActiveMap(map[int]bool{}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), m)
}

func TestCallbackPanicDoesNotStopDelivery(t *testing.T) {
	c := newTestClient(t, Config{})
	c.OnAck(func(protocol.AckPayload) { panic("boom") })
	var acks atomic.Int32
	c.OnAck(func(protocol.AckPayload) { acks.Add(1) })

	connectSim(t, c, simulator.Config{Heartbeat: time.Hour})
	require.NoError(t, c.GetStatus(1))
	require.NoError(t, c.GetStatus(2))

	require.Eventually(t, func() bool { return acks.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, c.IsConnected())
}

func TestRejectedCommandReportsResult(t *testing.T) {
	c := newTestClient(t, Config{})
	target := connectSim(t, c, simulator.Config{Heartbeat: time.Hour})

	var faults atomic.Int32
	c.OnError(func(e protocol.ErrorPayload) {
		if e.Code == protocol.ErrCodeSensorFault {
			faults.Add(1)
		}
	})

	target.Simulator().InjectFault(protocol.ErrCodeSensorFault, 1)
	ev := pollKind(t, c, protocol.KindError, time.Second)
	e, ok := ev.AsError()
	require.True(t, ok)
	assert.Equal(t, uint16(1), e.Aux)

	require.NoError(t, c.StartMeasure(9))
	ack, _ := pollKind(t, c, protocol.KindAck, time.Second).AsAck()
	assert.Equal(t, protocol.AckNotAllowed, ack.Result)
	// Callbacks and the poll queue are independent paths.
	require.Eventually(t, func() bool { return faults.Load() == 1 }, time.Second, time.Millisecond)
}

func TestReconnectClearsStatus(t *testing.T) {
	c := newTestClient(t, Config{})
	target := connectSim(t, c, simulator.Config{Heartbeat: time.Hour})

	require.NoError(t, c.GetStatus(1))
	pollKind(t, c, protocol.KindStatus, time.Second)
	_, ok := c.LastStatus()
	require.True(t, ok)

	require.NoError(t, c.Disconnect())
	require.NoError(t, c.ConnectTimeout(target, time.Second))
	_, ok = c.LastStatus()
	assert.False(t, ok)

	require.NoError(t, c.GetStatus(2))
	ack, _ := pollKind(t, c, protocol.KindAck, time.Second).AsAck()
	assert.Equal(t, uint8(2), ack.Seq)
}

func TestDoubleConnect(t *testing.T) {
	c := newTestClient(t, Config{})
	target := connectSim(t, c, simulator.Config{Heartbeat: time.Hour})
	assert.ErrorIs(t, c.ConnectTimeout(target, time.Second), transport.ErrAlreadyConnected)
}

// pipeTarget hands the far end of a pipe to the test.
type pipeTarget struct {
	peers chan net.Conn
}

func (p *pipeTarget) Open(ctx context.Context) (transport.Channel, error) {
	a, b := net.Pipe()
	p.peers <- b
	return a, nil
}

func (p *pipeTarget) String() string { return "pipe" }

func TestDataBeforeStatusIsDecodeError(t *testing.T) {
	c := newTestClient(t, Config{})
	target := &pipeTarget{peers: make(chan net.Conn, 1)}
	require.NoError(t, c.ConnectTimeout(target, time.Second))
	peer := <-target.peers
	defer peer.Close()

	layout := protocol.SampleLayout{ActiveMap: 1}
	layout.Bits[0] = 8
	data, err := protocol.EncodeMessage(protocol.DataPayload{Timestamp: 1, Samples: []protocol.Sample{{Index: 0, Value: 9}}}, &layout)
	require.NoError(t, err)
	status, err := protocol.EncodeMessage(protocol.StatusPayload{ActiveMap: 1, BitsPerSample: layout.Bits}, nil)
	require.NoError(t, err)

	_, err = peer.Write(data)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.Statistics().DecodeErrors == 1 }, time.Second, time.Millisecond)
	_, ok := c.Poll(0)
	assert.False(t, ok, "undecodable data is not queued")

	_, err = peer.Write(append(status, data...))
	require.NoError(t, err)

	pollKind(t, c, protocol.KindStatus, time.Second)
	ev := pollKind(t, c, protocol.KindData, time.Second)
	d, _ := ev.AsData()
	v, ok := d.Value(0)
	assert.True(t, ok)
	assert.Equal(t, uint32(9), v)
}

func TestTransportFailureSurfacesOnErrors(t *testing.T) {
	c := newTestClient(t, Config{})
	target := &pipeTarget{peers: make(chan net.Conn, 1)}
	require.NoError(t, c.ConnectTimeout(target, time.Second))
	peer := <-target.peers

	require.NoError(t, peer.Close())
	select {
	case err := <-c.Errors():
		assert.True(t, transport.IsTerminal(err))
	case <-time.After(time.Second):
		t.Fatal("no terminal error")
	}
	assert.Equal(t, transport.StateError, c.State())
	assert.ErrorIs(t, c.GetStatus(1), ErrNotConnected)
}

func TestSlowCallbacksReceiveEveryEvent(t *testing.T) {
	c := newTestClient(t, Config{DispatchBuffer: 2})
	gate := make(chan struct{})
	var statuses atomic.Int32
	c.OnStatus(func(protocol.StatusPayload) {
		<-gate
		statuses.Add(1)
	})

	target := &pipeTarget{peers: make(chan net.Conn, 1)}
	require.NoError(t, c.ConnectTimeout(target, time.Second))
	peer := <-target.peers
	defer peer.Close()

	const n = 20
	status, err := protocol.EncodeMessage(protocol.StatusPayload{SensorCount: 1}, nil)
	require.NoError(t, err)
	var stream []byte
	for i := 0; i < n; i++ {
		stream = append(stream, status...)
	}
	go func() { _, _ = peer.Write(stream) }()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), statuses.Load())
	close(gate)

	require.Eventually(t, func() bool { return statuses.Load() == n }, 2*time.Second, time.Millisecond)
	assert.Equal(t, uint64(0), c.Statistics().DroppedCallbacks)

	polled := 0
	for {
		ev, ok := c.Poll(0)
		if !ok {
			break
		}
		if ev.Kind == protocol.KindStatus {
			polled++
		}
	}
	assert.Equal(t, n, polled)
}

func TestDisconnectWithFullCallbackBacklog(t *testing.T) {
	c := newTestClient(t, Config{DispatchBuffer: 1})
	gate := make(chan struct{})
	var calls atomic.Int32
	c.OnStatus(func(protocol.StatusPayload) {
		calls.Add(1)
		<-gate
	})

	target := &pipeTarget{peers: make(chan net.Conn, 1)}
	require.NoError(t, c.ConnectTimeout(target, time.Second))
	peer := <-target.peers
	defer peer.Close()

	status, err := protocol.EncodeMessage(protocol.StatusPayload{}, nil)
	require.NoError(t, err)
	var stream []byte
	for i := 0; i < 10; i++ {
		stream = append(stream, status...)
	}
	go func() { _, _ = peer.Write(stream) }()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	disconnected := make(chan error, 1)
	go func() { disconnected <- c.Disconnect() }()

	// Disconnect waits for the running callback, then finishes.
	time.Sleep(20 * time.Millisecond)
	close(gate)
	select {
	case err := <-disconnected:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect blocked on a full callback backlog")
	}

	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load(), "no callback after Disconnect")
	assert.False(t, c.IsConnected())
}
