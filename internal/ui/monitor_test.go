package ui

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kineintra/kineintra/internal/client"
	"github.com/kineintra/kineintra/internal/protocol"
)

type fakeClient struct {
	mu     sync.Mutex
	events []client.Event
	sent   []string
	err    error
	stats  client.Statistics
}

func (f *fakeClient) Poll(time.Duration) (client.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return client.Event{}, false
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, true
}

func (f *fakeClient) Statistics() client.Statistics { return f.stats }

func (f *fakeClient) record(id protocol.CommandID, seq uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, fmt.Sprintf("%s:%d", id, seq))
	return f.err
}

func (f *fakeClient) GetStatus(seq uint8) error    { return f.record(protocol.CmdGetStatus, seq) }
func (f *fakeClient) StartMeasure(seq uint8) error { return f.record(protocol.CmdStartMeasure, seq) }
func (f *fakeClient) StopMeasure(seq uint8) error  { return f.record(protocol.CmdStopMeasure, seq) }

func testStatus(state protocol.DeviceState) protocol.StatusPayload {
	st := protocol.StatusPayload{
		State:       state,
		SensorCount: 2,
		ActiveMap:   0b11,
		HealthMap:   0b01,
	}
	for i := 0; i < 2; i++ {
		st.SampleRates[i] = 100
		st.BitsPerSample[i] = 12
	}
	return st
}

func event(m protocol.Message) client.Event {
	return client.Event{Kind: m.Kind(), Message: m, Received: time.Now()}
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMonitorAppliesEvents(t *testing.T) {
	f := &fakeClient{}
	m := NewMonitor(f, "sim")
	m.setWidth(80)

	assert.Contains(t, m.View(), "waiting for STATUS")

	_, cmd := m.Update(eventsMsg{
		event(testStatus(protocol.StateMeasuring)),
		event(protocol.DataPayload{Timestamp: 1500, Samples: []protocol.Sample{{Index: 0, Value: 4095}, {Index: 1, Value: 10}}}),
		event(protocol.AckPayload{CommandID: protocol.CmdStartMeasure, Seq: 1, Result: protocol.AckOK}),
		event(protocol.ErrorPayload{Timestamp: 20, Code: protocol.ErrCodeSensorFault, Aux: 1}),
	})
	require.NotNil(t, cmd, "polling continues after a batch")

	assert.True(t, m.haveStatus)
	assert.Equal(t, uint32(4095), m.values[0])
	assert.Equal(t, uint32(10), m.values[1])
	assert.Equal(t, uint32(0b11), m.seen)
	assert.Equal(t, uint32(1500), m.timestamp)
	assert.Equal(t, uint64(1), m.dataFrames)
	assert.Equal(t, "START_MEASURE seq=1 OK", m.lastAck)
	assert.Equal(t, "SENSOR_FAULT aux=1 at 20µs", m.lastError)

	view := m.View()
	assert.Contains(t, view, "MEASURING")
	assert.Contains(t, view, "4095")
	assert.Contains(t, view, "FAULT", "sensor 1 is flagged unhealthy")
	assert.NotContains(t, view, "waiting for STATUS")
}

func TestMonitorKeysSendCommands(t *testing.T) {
	f := &fakeClient{}
	m := NewMonitor(f, "sim")

	_, cmd := m.Update(keyPress("s"))
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, sentMsg{cmd: protocol.CmdStartMeasure, seq: 1}, msg)

	_, cmd = m.Update(keyPress("x"))
	require.NotNil(t, cmd)
	cmd()

	_, cmd = m.Update(keyPress("g"))
	require.NotNil(t, cmd)
	cmd()

	assert.Equal(t, []string{"START_MEASURE:1", "STOP_MEASURE:2", "GET_STATUS:3"}, f.sent)

	_, cmd = m.Update(keyPress("?"))
	assert.Nil(t, cmd)
	assert.True(t, m.help.ShowAll)

	_, cmd = m.Update(keyPress("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}

func TestMonitorShowsSendFailure(t *testing.T) {
	f := &fakeClient{err: errors.New("client not connected")}
	m := NewMonitor(f, "sim")

	_, cmd := m.Update(keyPress("s"))
	m.Update(cmd())
	assert.Contains(t, m.sendError, "START_MEASURE seq=1: client not connected")
	assert.Contains(t, m.View(), "Send failed")

	f.err = nil
	_, cmd = m.Update(keyPress("s"))
	m.Update(cmd())
	assert.Empty(t, m.sendError)
}

func TestMonitorWaitForEventsDrainsBatch(t *testing.T) {
	f := &fakeClient{events: []client.Event{
		event(testStatus(protocol.StateIdle)),
		event(protocol.AckPayload{CommandID: protocol.CmdGetStatus, Seq: 1}),
		event(testStatus(protocol.StateIdle)),
	}}
	m := NewMonitor(f, "sim")

	msg := m.waitForEvents()()
	batch, ok := msg.(eventsMsg)
	require.True(t, ok)
	assert.Len(t, batch, 3)

	msg = m.waitForEvents()()
	assert.Equal(t, eventsMsg(nil), msg)
}

func TestMonitorRate(t *testing.T) {
	m := NewMonitor(&fakeClient{}, "sim")
	start := time.Now()
	m.windowAt = start
	m.window = 50

	_, cmd := m.Update(tickMsg(start.Add(500 * time.Millisecond)))
	require.NotNil(t, cmd)
	assert.InDelta(t, 100.0, m.rate, 0.001)
	assert.Equal(t, 0, m.window)
}

func TestFullScale(t *testing.T) {
	assert.Equal(t, uint64(4095), fullScale(12))
	assert.Equal(t, uint64(0xFFFFFFFF), fullScale(32))
	assert.Equal(t, uint64(0), fullScale(0))
	assert.Equal(t, uint64(0), fullScale(33))
}
