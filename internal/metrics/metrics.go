// Package metrics exposes local-process self-observability: counters
// and histograms for gateway calls, retries, rate-limit wait time, and
// orchestrator task outcomes. This is ambient instrumentation, not a
// remote-service API, so it stays in scope even though SPEC_FULL's
// non-goals exclude an observability layer for the remote side.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the process's metrics and satisfies both
// gateway.Metrics and the orchestrator's task-outcome observer so both
// components can share one instance without importing each other.
type Registry struct {
	GatewayCalls     *prometheus.CounterVec
	GatewayRetries   prometheus.Counter
	RateLimitWait    prometheus.Histogram
	TaskOutcomes     *prometheus.CounterVec
	TaskDuration     prometheus.Histogram
}

// New constructs a Registry and registers its collectors with reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		GatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultsync_gateway_calls_total",
			Help: "Outbound remote gateway calls by path and outcome.",
		}, []string{"path", "outcome"}),
		GatewayRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vaultsync_gateway_retries_total",
			Help: "Gateway call attempts beyond the first.",
		}),
		RateLimitWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vaultsync_gateway_rate_limit_wait_seconds",
			Help:    "Time spent waiting on the rate-limit gate per call.",
			Buckets: prometheus.DefBuckets,
		}),
		TaskOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultsync_orchestrator_task_outcomes_total",
			Help: "Folder-sync tasks by outcome.",
		}, []string{"outcome"}),
		TaskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vaultsync_orchestrator_task_duration_seconds",
			Help:    "Per-document sync task duration.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(r.GatewayCalls, r.GatewayRetries, r.RateLimitWait, r.TaskOutcomes, r.TaskDuration)
	return r
}

// ObserveCall implements gateway.Metrics.
func (r *Registry) ObserveCall(path string, attempt int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.GatewayCalls.WithLabelValues(path, outcome).Inc()
	if attempt > 0 {
		r.GatewayRetries.Inc()
	}
}

// ObserveRateLimitWait implements gateway.Metrics.
func (r *Registry) ObserveRateLimitWait(d time.Duration) {
	r.RateLimitWait.Observe(d.Seconds())
}

// ObserveTask records one orchestrator task's outcome and duration.
func (r *Registry) ObserveTask(outcome string, d time.Duration) {
	r.TaskOutcomes.WithLabelValues(outcome).Inc()
	r.TaskDuration.Observe(d.Seconds())
}
