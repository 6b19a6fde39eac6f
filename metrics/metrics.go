package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ViolationTransitions counts lifecycle moves, labeled by target status
	ViolationTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Subsystem: "lifecycle",
		Name:      "violation_transitions_total",
		Help:      "Violation status changes, labeled by the status entered (warning = created).",
	}, []string{"status"})

	// ViolationExtensions counts repeat detections that extended an active warning
	ViolationExtensions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "parking",
		Subsystem: "lifecycle",
		Name:      "violation_extensions_total",
		Help:      "Detections that extended the grace period of an already active violation.",
	})

	// AlertsRaised counts authority alerts actually inserted (deduplicated raises excluded)
	AlertsRaised = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Subsystem: "lifecycle",
		Name:      "alerts_raised_total",
		Help:      "Authority alerts created, labeled by alert type.",
	}, []string{"type"})

	// DispatchOutcomes counts delivery attempts by channel and resulting status
	DispatchOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Subsystem: "notify",
		Name:      "dispatch_total",
		Help:      "Owner notification attempts, labeled by channel and delivery status.",
	}, []string{"channel", "status"})

	// ProviderLatencySeconds is the time spent waiting on a channel provider
	ProviderLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "parking",
		Subsystem: "notify",
		Name:      "provider_latency_seconds",
		Help:      "Channel provider call duration.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"channel"})

	// RetryAttempts counts retry scheduler attempts by result
	RetryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Subsystem: "notify",
		Name:      "retry_attempts_total",
		Help:      "Delivery retries, labeled by result (sent, failed, rejected, skipped).",
	}, []string{"result"})

	// TaskDurationSeconds is the duration of one background task run
	TaskDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "parking",
		Subsystem: "scheduler",
		Name:      "task_duration_seconds",
		Help:      "Duration of one run of a periodic background task.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"task"})

	// TaskErrors counts background task runs that returned an error
	TaskErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Subsystem: "scheduler",
		Name:      "task_errors_total",
		Help:      "Periodic background task runs that failed.",
	}, []string{"task"})

	// DetectionsPurged counts empty-scene detections removed by retention
	DetectionsPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "parking",
		Subsystem: "retention",
		Name:      "detections_purged_total",
		Help:      "Empty-scene detections deleted by the retention cleaner.",
	})

	// CapturesIngested counts capture messages by source and result
	CapturesIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Subsystem: "ingest",
		Name:      "captures_total",
		Help:      "Capture results received, labeled by source (nats, http) and result.",
	}, []string{"source", "result"})
)

// Register registers the engine metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ViolationTransitions,
			ViolationExtensions,
			AlertsRaised,
			DispatchOutcomes,
			ProviderLatencySeconds,
			RetryAttempts,
			TaskDurationSeconds,
			TaskErrors,
			DetectionsPurged,
			CapturesIngested,
		)
	})
}
