// Package metrics exposes Prometheus collectors for the moderation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_events_total",
			Help: "Gateway events evaluated by the engine",
		},
		[]string{"kind"},
	)

	MessageScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_message_score",
			Help:    "Abuse score of evaluated messages",
			Buckets: prometheus.LinearBuckets(0, 1, 9),
		},
	)

	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_decisions_total",
			Help: "Moderation decisions emitted by the engine",
		},
		[]string{"kind"},
	)

	EnforcementFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_enforcement_failures_total",
			Help: "Outbound enforcement calls that failed",
		},
		[]string{"action"},
	)

	QueueDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_queue_dropped_total",
			Help: "Tasks rejected because a worker pool was closed or its shard was full",
		},
	)

	TrackedGuilds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_tracked_guilds",
			Help: "Guilds with in-memory window state",
		},
	)

	FeatureCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_feature_cache_total",
			Help: "Feature gate cache lookups by result",
		},
		[]string{"result"},
	)
)

func RecordEvent(kind string) {
	EventsTotal.WithLabelValues(kind).Inc()
}

func RecordScore(score int) {
	MessageScore.Observe(float64(score))
}

func RecordDecision(kind string) {
	DecisionsTotal.WithLabelValues(kind).Inc()
}

func RecordEnforcementFailure(action string) {
	EnforcementFailuresTotal.WithLabelValues(action).Inc()
}
