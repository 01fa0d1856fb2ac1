package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PR lifecycle metrics
	PRsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_prs_total",
			Help: "Total number of PRs by cold state",
		},
		[]string{"cold_state"},
	)

	PRsInProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_prs_in_progress",
			Help: "Number of PRs currently holding a hot state",
		},
	)

	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_transitions_total",
			Help: "Total number of state transitions by from/to/result",
		},
		[]string{"from", "to", "result"},
	)

	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_commits_total",
			Help: "Total number of cold-store commits by kind (milestone, display_sync)",
		},
		[]string{"kind", "result"},
	)

	// Lease metrics
	LeasesHeld = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_leases_held",
			Help: "Number of currently-held file leases",
		},
	)

	LeaseConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_lease_conflicts_total",
			Help: "Total number of lease acquisition conflicts",
		},
	)

	LeaseAcquireDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_lease_acquire_duration_seconds",
			Help:    "Time taken to acquire a lease set",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Scheduler metrics
	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_scheduling_latency_seconds",
			Help:    "Time taken for a scheduling cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	PRsScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_prs_scheduled_total",
			Help: "Total number of PRs selected by the scheduler",
		},
	)

	PRsBlocked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_prs_blocked_total",
			Help: "Total number of PRs blocked by the scheduler",
		},
	)

	// Coordination-mode metrics
	CoordinationMode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_coordination_mode",
			Help: "Current coordination mode (1 = active) by mode name",
		},
		[]string{"mode"},
	)

	ModeTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_mode_transitions_total",
			Help: "Total number of coordination-mode transitions",
		},
		[]string{"from", "to"},
	)

	// Hot-store health metrics
	HotStoreLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_hotstore_ping_latency_seconds",
			Help:    "Hot store ping latency",
			Buckets: prometheus.DefBuckets,
		},
	)

	HotStoreHealthy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_hotstore_healthy",
			Help: "Whether the hot store is currently healthy (1) or not (0)",
		},
	)

	// Reconciliation metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	ConflictsFoundTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_reconciliation_conflicts_total",
			Help: "Total number of consistency conflicts found, by kind",
		},
		[]string{"kind"},
	)

	// Agent registry metrics
	AgentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_agents_total",
			Help: "Total number of registered agents by status",
		},
		[]string{"status"},
	)

	AgentCrashesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_agent_crashes_total",
			Help: "Total number of detected agent crashes",
		},
	)

	// Sync coordinator metrics
	DisplaySyncsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_display_syncs_total",
			Help: "Total number of display-sync flushes performed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		PRsTotal,
		PRsInProgress,
		TransitionsTotal,
		CommitsTotal,
		LeasesHeld,
		LeaseConflictsTotal,
		LeaseAcquireDuration,
		SchedulingLatency,
		PRsScheduled,
		PRsBlocked,
		CoordinationMode,
		ModeTransitionsTotal,
		HotStoreLatency,
		HotStoreHealthy,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		ConflictsFoundTotal,
		AgentsTotal,
		AgentCrashesTotal,
		DisplaySyncsTotal,
	)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer, starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
