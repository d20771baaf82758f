package janitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"alerto-service/internal/metrics"
	"alerto-service/internal/util"
)

// Record identifies one stored rate counter and its window start
type Record struct {
	Key         string
	WindowStart time.Time
}

// Store is the slice of the counter store the janitor needs
type Store interface {
	ListCounters(ctx context.Context) ([]Record, error)
	DeleteCounters(ctx context.Context, keys []string) (int, error)
}

// Janitor periodically deletes rate counters whose window started before the
// retention cutoff. Retention is storage hygiene only: it is coarser than any
// policy window, so counters still inside a live window are never touched.
type Janitor struct {
	store     Store
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func New(store Store, interval, retention time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		store:     store,
		interval:  interval,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Start runs the sweep loop until the context is cancelled
func (j *Janitor) Start(ctx context.Context) {
	if j.interval <= 0 {
		return
	}
	ticker := time.NewTicker(j.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				j.logger.Info("Janitor stopped")
				return
			case <-ticker.C:
				if _, err := j.SweepOnce(ctx); err != nil {
					j.logger.Error("Janitor sweep failed", util.ErrorField(err))
				}
			}
		}
	}()
	j.logger.Info("Janitor started",
		util.Duration("interval", j.interval),
		util.Duration("retention", j.retention),
	)
}

// SweepOnce deletes all counters older than the retention cutoff in one
// batched write and returns the number deleted
func (j *Janitor) SweepOnce(ctx context.Context) (int, error) {
	metrics.JanitorRuns.Inc()
	cutoff := j.now().Add(-j.retention)

	records, err := j.store.ListCounters(ctx)
	if err != nil {
		return 0, err
	}

	var expired []string
	for _, rec := range records {
		if rec.WindowStart.Before(cutoff) {
			expired = append(expired, rec.Key)
		}
	}

	if len(expired) == 0 {
		j.logger.Debug("Janitor sweep found nothing to delete",
			util.Int("counters_scanned", len(records)))
		return 0, nil
	}

	deleted, err := j.store.DeleteCounters(ctx, expired)
	if err != nil {
		return 0, err
	}

	metrics.JanitorDeletions.Add(float64(deleted))
	j.logger.Info("Cleaned up old rate limit entries",
		util.Int("deleted", deleted),
		util.Int("counters_scanned", len(records)),
	)
	return deleted, nil
}
