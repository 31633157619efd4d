// Package metrics provides Prometheus metrics for noisegate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "noisegate"
)

// Worker metrics
var (
	// WorkerPollCyclesTotal counts completed poll cycles.
	WorkerPollCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "poll_cycles_total",
			Help:      "Total completed poll cycles",
		},
	)

	// WorkerPollErrorsTotal counts per-channel poll failures.
	WorkerPollErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "poll_errors_total",
			Help:      "Total poll failures by channel",
		},
		[]string{"channel"},
	)

	// WorkerMessagesTotal counts messages evaluated per channel.
	WorkerMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "messages_total",
			Help:      "Total messages evaluated by channel",
		},
		[]string{"channel"},
	)

	// WorkerCycleDuration tracks how long a full poll cycle takes.
	WorkerCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "cycle_duration_seconds",
			Help:      "Poll cycle duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)

// Triage metrics
var (
	// TriageDecisionsTotal counts decisions by reason and effective severity.
	TriageDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triage",
			Name:      "decisions_total",
			Help:      "Total send decisions by reason and severity",
		},
		[]string{"reason", "severity"},
	)
)

// Notification metrics
var (
	// NotificationsSentTotal counts notifications delivered to the target.
	NotificationsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Total notifications delivered",
		},
	)

	// NotificationErrorsTotal counts failed notification attempts.
	NotificationErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "errors_total",
			Help:      "Total failed notification attempts",
		},
	)

	// NotificationsRateLimitedTotal counts notifications dropped by the
	// outbound rate limit.
	NotificationsRateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "rate_limited_total",
			Help:      "Total notifications dropped by the rate limit",
		},
	)
)

// Storage metrics
var (
	// StorageErrors counts storage operation errors.
	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total storage operation errors",
		},
		[]string{"operation"},
	)
)

// Archive metrics
var (
	// ArchivePending tracks decisions waiting to be flushed to the archive.
	ArchivePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "pending_records",
			Help:      "Decision records waiting to be flushed to the archive",
		},
	)

	// ArchiveDroppedTotal counts records dropped due to buffer overflow.
	ArchiveDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "dropped_total",
			Help:      "Total records dropped due to archive buffer overflow",
		},
	)

	// ArchiveFlushesTotal counts archive flush operations.
	ArchiveFlushesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "flushes_total",
			Help:      "Total archive flush operations",
		},
	)

	// ArchiveWrittenTotal counts records written to the archive.
	ArchiveWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "written_total",
			Help:      "Total records written to the archive",
		},
	)

	// ArchiveFlushErrors counts archive flush errors.
	ArchiveFlushErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "flush_errors_total",
			Help:      "Total archive flush errors",
		},
	)
)

// Digest metrics
var (
	// DigestsBuiltTotal counts built digests.
	DigestsBuiltTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "digest",
			Name:      "built_total",
			Help:      "Total digests built",
		},
	)

	// DigestErrorsTotal counts digest build or post failures.
	DigestErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "digest",
			Name:      "errors_total",
			Help:      "Total digest build or post failures",
		},
	)
)

// LLM metrics
var (
	// LLMRequestsTotal counts model calls by operation and outcome.
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total LLM requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
)

// Config metrics
var (
	// ConfigReloadsTotal counts configuration reload attempts by outcome.
	ConfigReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "reloads_total",
			Help:      "Total configuration reload attempts by outcome",
		},
		[]string{"outcome"},
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
