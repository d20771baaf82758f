package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"alerto-service/internal/client"
	"alerto-service/internal/janitor"
	"alerto-service/internal/ratelimit"
	"alerto-service/internal/util"
)

const (
	counterPrefix = "rate_counter:"
	scanBatchSize = 500

	fieldAttempts    = "attempts"
	fieldWindowStart = "window_start"
	fieldLastAttempt = "last_attempt"
)

// CounterStore persists rate counters as one Redis hash per
// (userID, actionType) pair. Counters carry no TTL: physical reclamation is
// the janitor's job.
type CounterStore struct {
	client *client.RedisClient
}

func NewCounterStore(client *client.RedisClient) *CounterStore {
	return &CounterStore{client: client}
}

func counterKey(userID, actionType string) string {
	return counterPrefix + userID + ":" + actionType
}

func (s *CounterStore) Get(ctx context.Context, userID, actionType string) (*ratelimit.Counter, error) {
	key := counterKey(userID, actionType)

	fields, err := s.client.HGetAll(ctx, key)
	if err != nil {
		util.Error("Failed to read rate counter",
			zap.String("key", key),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read rate counter: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil // no counter yet
	}

	counter, err := parseCounter(fields)
	if err != nil {
		util.Error("Invalid rate counter format",
			zap.String("key", key),
			zap.Error(err))
		return nil, fmt.Errorf("invalid rate counter format: %w", err)
	}
	return counter, nil
}

func (s *CounterStore) Put(ctx context.Context, userID, actionType string, counter ratelimit.Counter) error {
	key := counterKey(userID, actionType)

	err := s.client.HSet(ctx, key,
		fieldAttempts, counter.Attempts,
		fieldWindowStart, counter.WindowStart.Unix(),
		fieldLastAttempt, counter.LastAttempt.Unix(),
	)
	if err != nil {
		util.Error("Failed to write rate counter",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to write rate counter: %w", err)
	}

	util.Debug("Rate counter reset",
		zap.String("key", key),
		zap.Int("attempts", counter.Attempts))
	return nil
}

func (s *CounterStore) Increment(ctx context.Context, userID, actionType string, at time.Time) (int, error) {
	key := counterKey(userID, actionType)

	pipe := s.client.Pipeline()
	incr := pipe.HIncrBy(ctx, key, fieldAttempts, 1)
	pipe.HSet(ctx, key, fieldLastAttempt, at.Unix())

	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to increment rate counter",
			zap.String("key", key),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment rate counter: %w", err)
	}

	attempts := int(incr.Val())
	util.Debug("Rate counter incremented",
		zap.String("key", key),
		zap.Int("attempts", attempts))
	return attempts, nil
}

// ListCounters scans all stored counters for the janitor
func (s *CounterStore) ListCounters(ctx context.Context) ([]janitor.Record, error) {
	var keys []string
	cursor := uint64(0)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, counterPrefix+"*", scanBatchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rate counters: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	records := make([]janitor.Record, 0, len(keys))
	for start := 0; start < len(keys); start += scanBatchSize {
		end := start + scanBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		pipe := s.client.Pipeline()
		cmds := make([]*redis.StringCmd, 0, len(chunk))
		for _, key := range chunk {
			cmds = append(cmds, pipe.HGet(ctx, key, fieldWindowStart))
		}
		if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
			return nil, fmt.Errorf("failed to read counter windows: %w", err)
		}

		for i, cmd := range cmds {
			value, err := cmd.Result()
			if err != nil {
				// Key deleted or field missing since the scan; skip it
				continue
			}
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				util.Warn("Skipping rate counter with invalid window start",
					zap.String("key", chunk[i]),
					zap.String("window_start", value))
				continue
			}
			records = append(records, janitor.Record{
				Key:         chunk[i],
				WindowStart: time.Unix(unix, 0),
			})
		}
	}

	return records, nil
}

// DeleteCounters removes counters in a single batched write
func (s *CounterStore) DeleteCounters(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.client.Del(ctx, keys...); err != nil {
		util.Error("Failed to delete rate counters",
			zap.Int("key_count", len(keys)),
			zap.Error(err))
		return 0, fmt.Errorf("failed to delete rate counters: %w", err)
	}
	return len(keys), nil
}

func parseCounter(fields map[string]string) (*ratelimit.Counter, error) {
	attempts, err := strconv.Atoi(fields[fieldAttempts])
	if err != nil {
		return nil, fmt.Errorf("invalid attempts %q: %w", fields[fieldAttempts], err)
	}
	windowStart, err := strconv.ParseInt(fields[fieldWindowStart], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid window_start %q: %w", fields[fieldWindowStart], err)
	}
	lastAttempt, err := strconv.ParseInt(fields[fieldLastAttempt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid last_attempt %q: %w", fields[fieldLastAttempt], err)
	}
	return &ratelimit.Counter{
		Attempts:    attempts,
		WindowStart: time.Unix(windowStart, 0),
		LastAttempt: time.Unix(lastAttempt, 0),
	}, nil
}
