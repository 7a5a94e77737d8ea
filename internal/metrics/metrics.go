package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kineintra/kineintra/internal/protocol"
)

const namespace = "kineintra"

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// SimulatorMetrics counts simulator server activity. It satisfies
// simulator.Observer.
type SimulatorMetrics struct {
	SessionsActive prometheus.Gauge
	SessionsTotal  *prometheus.CounterVec // labels: transport=tcp|ws
	FramesSent     *prometheus.CounterVec // labels: kind
	Commands       *prometheus.CounterVec // labels: cmd, result
	DroppedFrames  prometheus.Counter
}

// NewSimulatorMetrics registers and returns the simulator metrics.
func NewSimulatorMetrics(reg prometheus.Registerer) *SimulatorMetrics {
	m := &SimulatorMetrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sim_sessions_active",
			Help:      "Current number of connected hosts.",
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sim_sessions_total",
			Help:      "Total host sessions by transport.",
		}, []string{"transport"}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sim_frames_sent_total",
			Help:      "Frames sent to hosts by kind.",
		}, []string{"kind"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sim_commands_total",
			Help:      "Commands handled by command and ACK result.",
		}, []string{"cmd", "result"}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sim_frames_dropped_total",
			Help:      "Frames dropped because the host did not drain the TX queue.",
		}),
	}
	reg.MustRegister(m.SessionsActive, m.SessionsTotal, m.FramesSent, m.Commands, m.DroppedFrames)
	return m
}

func (m *SimulatorMetrics) FrameSent(kind protocol.Kind) {
	m.FramesSent.WithLabelValues(kind.String()).Inc()
}

func (m *SimulatorMetrics) CommandHandled(id protocol.CommandID, result protocol.AckResult) {
	m.Commands.WithLabelValues(id.String(), result.String()).Inc()
}

func (m *SimulatorMetrics) FramesDropped(n int) {
	m.DroppedFrames.Add(float64(n))
}

// SessionStarted and SessionEnded track live hosts.
func (m *SimulatorMetrics) SessionStarted(transport string) {
	m.SessionsTotal.WithLabelValues(transport).Inc()
	m.SessionsActive.Inc()
}

func (m *SimulatorMetrics) SessionEnded() {
	m.SessionsActive.Dec()
}
