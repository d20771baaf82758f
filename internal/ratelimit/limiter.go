package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"alerto-service/internal/metrics"
	"alerto-service/internal/util"
)

// Counter is the durable window state for one (user, actionType) pair
type Counter struct {
	Attempts    int
	WindowStart time.Time
	LastAttempt time.Time
}

// CounterStore is the durable key-value store backing the limiter.
// Get returns (nil, nil) when no counter exists for the pair.
type CounterStore interface {
	Get(ctx context.Context, userID, actionType string) (*Counter, error)
	Put(ctx context.Context, userID, actionType string, counter Counter) error
	Increment(ctx context.Context, userID, actionType string, at time.Time) (int, error)
}

// Decision is the limiter verdict for one call
type Decision struct {
	Allowed     bool  `json:"allowed"`
	Remaining   int   `json:"remaining"`
	Unlimited   bool  `json:"unlimited,omitempty"`
	ResetTimeMs int64 `json:"reset_time_ms,omitempty"`
	MaxAttempts int   `json:"max_attempts,omitempty"`
}

// Limiter throttles per-user actions against a static policy table.
//
// The check is a read-decide-write sequence, not a transaction: concurrent
// calls for the same pair can race between the read and the write and exceed
// MaxAttempts slightly under load. Last write wins on the counter.
type Limiter struct {
	store  CounterStore
	logger *zap.Logger
	now    func() time.Time
}

func NewLimiter(store CounterStore, logger *zap.Logger) *Limiter {
	return &Limiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Check records an attempt and decides whether the action is allowed.
// A denial never mutates the counter.
func (l *Limiter) Check(ctx context.Context, userID, actionType string) (*Decision, error) {
	policy, ok := PolicyFor(actionType)
	if !ok {
		return &Decision{Allowed: true, Unlimited: true}, nil
	}

	now := l.now()
	window := time.Duration(policy.WindowSeconds) * time.Second

	counter, err := l.store.Get(ctx, userID, actionType)
	if err != nil {
		metrics.RateLimitDecisions.WithLabelValues(actionType, metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("failed to read rate counter: %w", err)
	}

	// Absent or stale window: start a fresh one
	if counter == nil || now.Sub(counter.WindowStart) >= window {
		fresh := Counter{Attempts: 1, WindowStart: now, LastAttempt: now}
		if err := l.store.Put(ctx, userID, actionType, fresh); err != nil {
			metrics.RateLimitDecisions.WithLabelValues(actionType, metrics.OutcomeError).Inc()
			return nil, fmt.Errorf("failed to reset rate counter: %w", err)
		}
		metrics.RateLimitDecisions.WithLabelValues(actionType, metrics.OutcomeAllowed).Inc()
		return &Decision{
			Allowed:     true,
			Remaining:   policy.MaxAttempts - 1,
			MaxAttempts: policy.MaxAttempts,
		}, nil
	}

	if counter.Attempts >= policy.MaxAttempts {
		resetAt := counter.WindowStart.Add(window)
		resetMs := resetAt.Sub(now).Milliseconds()
		if resetMs < 0 {
			resetMs = 0
		}
		metrics.RateLimitDecisions.WithLabelValues(actionType, metrics.OutcomeDenied).Inc()
		l.logger.Debug("Rate limit exceeded",
			util.String("user_id", userID),
			util.String("action_type", actionType),
			util.Int("attempts", counter.Attempts),
			util.Int64("reset_time_ms", resetMs),
		)
		return &Decision{
			Allowed:     false,
			Remaining:   0,
			ResetTimeMs: resetMs,
			MaxAttempts: policy.MaxAttempts,
		}, nil
	}

	attempts, err := l.store.Increment(ctx, userID, actionType, now)
	if err != nil {
		metrics.RateLimitDecisions.WithLabelValues(actionType, metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("failed to increment rate counter: %w", err)
	}

	remaining := policy.MaxAttempts - attempts
	if remaining < 0 {
		remaining = 0
	}

	metrics.RateLimitDecisions.WithLabelValues(actionType, metrics.OutcomeAllowed).Inc()
	return &Decision{
		Allowed:     true,
		Remaining:   remaining,
		MaxAttempts: policy.MaxAttempts,
	}, nil
}
