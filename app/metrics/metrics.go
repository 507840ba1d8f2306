package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the agent's prometheus collectors
type Metrics struct {
	Registry *prometheus.Registry

	AgentUp        prometheus.Gauge
	AgentInfo      *prometheus.GaugeVec
	Ticks          *prometheus.CounterVec
	TickFailures   *prometheus.CounterVec
	PollOutcomes   *prometheus.CounterVec
	Commands       *prometheus.CounterVec
	CommandSeconds *prometheus.HistogramVec
	SubmitFailures prometheus.Counter
	UploadBytes    prometheus.Counter
	InFlightTicks  prometheus.Gauge
}

// New creates and registers the agent collectors on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		AgentUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "diag_agent_up",
			Help: "Whether the agent loop is running (1 = running, 0 = not running)",
		}),
		AgentInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "diag_agent_info",
			Help: "Information about the diagnostic agent",
		}, []string{"version", "container_id", "team", "app"}),
		Ticks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diag_agent_ticks_total",
			Help: "Scheduled task invocations by task",
		}, []string{"task"}),
		TickFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diag_agent_tick_failures_total",
			Help: "Task invocations that ended in an error or panic",
		}, []string{"task"}),
		PollOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diag_agent_poll_outcomes_total",
			Help: "Command poll outcomes (command, none, error)",
		}, []string{"outcome"}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diag_agent_commands_total",
			Help: "Executed commands by type and outcome",
		}, []string{"type", "outcome"}),
		CommandSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diag_agent_command_duration_seconds",
			Help:    "Command execution time by type",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 15, 60, 300},
		}, []string{"type"}),
		SubmitFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "diag_agent_result_submit_failures_total",
			Help: "Command results that could not be delivered to the coordinator",
		}),
		UploadBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "diag_agent_artifact_upload_bytes_total",
			Help: "Bytes of artifacts accepted by the artifact store",
		}),
		InFlightTicks: f.NewGauge(prometheus.GaugeOpts{
			Name: "diag_agent_inflight_ticks",
			Help: "Task invocations currently holding a worker slot",
		}),
	}
}
