// Package metrics exposes the Prometheus instruments for the task
// subsystem. Metrics are registered with the default registry via promauto
// and served on /metrics by the ops HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobExecutionsTotal counts handler executions by task name and
	// outcome (succeeded, retried, dead_lettered).
	JobExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskforge_job_executions_total",
			Help: "Total number of job handler executions by task and outcome.",
		},
		[]string{"task", "outcome"},
	)

	// HandlerCrashesTotal counts recovered handler panics. Crashes retry
	// like transient failures but are surfaced separately.
	HandlerCrashesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskforge_handler_crashes_total",
			Help: "Total number of recovered handler panics by task.",
		},
		[]string{"task"},
	)

	// JobsInFlight tracks currently executing handlers by task name.
	JobsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskforge_jobs_in_flight",
			Help: "Number of handler executions currently running by task.",
		},
		[]string{"task"},
	)

	// JobsPublishedTotal counts envelopes accepted by the broker,
	// including retry republishes.
	JobsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskforge_jobs_published_total",
			Help: "Total number of envelopes published to the broker.",
		},
		[]string{"task"},
	)

	// PublishFailuresTotal counts publishes that exhausted the retry
	// budget and surfaced as PublishUnavailable.
	PublishFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskforge_publish_failures_total",
			Help: "Total number of publishes that failed after the retry budget.",
		},
	)

	// BrokerReconnectsTotal counts successful broker reconnections after a
	// transport-level disconnect.
	BrokerReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskforge_broker_reconnects_total",
			Help: "Total number of successful broker reconnections.",
		},
	)
)
