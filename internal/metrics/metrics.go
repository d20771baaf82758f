package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RateLimitDecisions counts limiter outcomes per action type
	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alerto_rate_limit_decisions_total",
		Help: "Rate limiter decisions by action type and outcome.",
	}, []string{"action_type", "outcome"})

	// NotificationSends counts provider sends by kind and outcome
	NotificationSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alerto_notification_sends_total",
		Help: "Push notification sends by kind (topic, multicast) and outcome.",
	}, []string{"kind", "outcome"})

	// MulticastTokens counts per-token multicast results
	MulticastTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alerto_multicast_tokens_total",
		Help: "Per-token multicast delivery results.",
	}, []string{"outcome"})

	// JanitorDeletions counts rate counters removed by the cleanup sweep
	JanitorDeletions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerto_janitor_deleted_counters_total",
		Help: "Expired rate limit counters removed by the janitor.",
	})

	// JanitorRuns counts cleanup sweeps
	JanitorRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerto_janitor_runs_total",
		Help: "Janitor sweep executions.",
	})

	// EventsConsumed counts lifecycle events read from the broker
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alerto_events_consumed_total",
		Help: "Report lifecycle events consumed, by topic and outcome.",
	}, []string{"topic", "outcome"})
)

const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)
