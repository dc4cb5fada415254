package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Deploy/remove lifecycle metrics
	DaemonsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cephadmd_daemons_total",
			Help: "Total number of daemons on this host by kind and state",
		},
		[]string{"kind", "state"},
	)

	DeployDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cephadmd_deploy_duration_seconds",
			Help:    "Time taken to deploy a daemon in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	DeploysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cephadmd_deploys_total",
			Help: "Total number of deploy operations by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	RemoveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cephadmd_remove_duration_seconds",
			Help:    "Time taken to remove a daemon in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Agent gatherer/reporter metrics
	GatherDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cephadmd_agent_gather_duration_seconds",
			Help:    "Time taken for one gather cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	GatherErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cephadmd_agent_gather_errors_total",
			Help: "Total number of gather cycles that returned an error",
		},
	)

	ReportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cephadmd_agent_report_duration_seconds",
			Help:    "Time taken for one report POST to the manager in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReportFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cephadmd_agent_report_failures_total",
			Help: "Total number of report POSTs that failed or returned a non-2xx status",
		},
	)

	AckCounter = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cephadmd_agent_ack_counter",
			Help: "Current value of the agent's last manager-pushed ack counter",
		},
	)

	ConfigPushesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cephadmd_agent_config_pushes_total",
			Help: "Total number of config pushes received over the mgr listener",
		},
	)

	// firewalld / systemctl collaborator metrics
	ExecDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cephadmd_exec_duration_seconds",
			Help:    "Time taken for an exec'd collaborator command (systemctl, firewall-cmd, podman) in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
)

func init() {
	prometheus.MustRegister(
		DaemonsTotal,
		DeployDuration,
		DeploysTotal,
		RemoveDuration,
		GatherDuration,
		GatherErrorsTotal,
		ReportDuration,
		ReportFailuresTotal,
		AckCounter,
		ConfigPushesTotal,
		ExecDuration,
	)
}

// Handler returns the Prometheus HTTP handler, served loopback-only
// alongside the agentapi health server.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
