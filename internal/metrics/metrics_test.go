package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kineintra/kineintra/internal/client"
	"github.com/kineintra/kineintra/internal/protocol"
	"github.com/kineintra/kineintra/internal/transport"
)

func TestSimulatorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSimulatorMetrics(reg)

	m.SessionStarted("tcp")
	m.SessionStarted("ws")
	m.SessionEnded()
	m.FrameSent(protocol.KindStatus)
	m.FrameSent(protocol.KindStatus)
	m.CommandHandled(protocol.CmdStartMeasure, protocol.AckBusy)
	m.FramesDropped(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("tcp")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesSent.WithLabelValues(protocol.KindStatus.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("START_MEASURE", protocol.AckBusy.String())))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DroppedFrames))
}

func TestClientCollector(t *testing.T) {
	stats := client.Statistics{
		Statistics:    transport.Statistics{FramesSent: 4, FramesReceived: 10, CRCErrors: 2},
		DecodeErrors:  1,
		DroppedEvents: 5,
	}
	c := NewClientCollector("virtual", func() client.Statistics { return stats })

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
	assert.Equal(t, 11, testutil.CollectAndCount(c))

	expected := `
# HELP kineintra_link_crc_errors_total Frames that failed the CRC check.
# TYPE kineintra_link_crc_errors_total counter
kineintra_link_crc_errors_total{target="virtual"} 2
# HELP kineintra_link_dropped_events_total Events discarded from the full poll queue.
# TYPE kineintra_link_dropped_events_total counter
kineintra_link_dropped_events_total{target="virtual"} 5
`
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"kineintra_link_crc_errors_total", "kineintra_link_dropped_events_total"))
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	NewSimulatorMetrics(reg).SessionStarted("tcp")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `kineintra_sim_sessions_total{transport="tcp"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
