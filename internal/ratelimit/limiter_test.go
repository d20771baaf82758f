package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryStore struct {
	counters map[string]Counter
	getErr   error
	putErr   error
	incErr   error

	putCalls int
	incCalls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{counters: make(map[string]Counter)}
}

func storeKey(userID, actionType string) string {
	return userID + ":" + actionType
}

func (m *memoryStore) Get(_ context.Context, userID, actionType string) (*Counter, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.counters[storeKey(userID, actionType)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memoryStore) Put(_ context.Context, userID, actionType string, counter Counter) error {
	m.putCalls++
	if m.putErr != nil {
		return m.putErr
	}
	m.counters[storeKey(userID, actionType)] = counter
	return nil
}

func (m *memoryStore) Increment(_ context.Context, userID, actionType string, at time.Time) (int, error) {
	m.incCalls++
	if m.incErr != nil {
		return 0, m.incErr
	}
	c := m.counters[storeKey(userID, actionType)]
	c.Attempts++
	c.LastAttempt = at
	m.counters[storeKey(userID, actionType)] = c
	return c.Attempts, nil
}

func newTestLimiter(store CounterStore, at time.Time) *Limiter {
	l := NewLimiter(store, zap.NewNop())
	l.now = func() time.Time { return at }
	return l
}

func TestCheckUnknownActionIsUnlimited(t *testing.T) {
	store := newMemoryStore()
	limiter := newTestLimiter(store, time.Now())

	decision, err := limiter.Check(context.Background(), "user-1", "unknown_action")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.Unlimited)
	assert.Empty(t, store.counters)
}

func TestCheckFirstAttemptStartsWindow(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	limiter := newTestLimiter(store, now)

	decision, err := limiter.Check(context.Background(), "user-1", ActionReportSubmission)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 9, decision.Remaining)
	assert.Equal(t, 10, decision.MaxAttempts)

	stored := store.counters[storeKey("user-1", ActionReportSubmission)]
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, now, stored.WindowStart)
}

func TestCheckDeniesAtCapWithoutMutating(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	store.counters[storeKey("user-1", ActionReportSubmission)] = Counter{
		Attempts:    10,
		WindowStart: now.Add(-10 * time.Minute),
		LastAttempt: now.Add(-time.Minute),
	}
	limiter := newTestLimiter(store, now)

	decision, err := limiter.Check(context.Background(), "user-1", ActionReportSubmission)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)
	assert.Equal(t, (50 * time.Minute).Milliseconds(), decision.ResetTimeMs)
	assert.Equal(t, 10, decision.MaxAttempts)

	// A denial must leave the counter untouched
	assert.Equal(t, 0, store.putCalls)
	assert.Equal(t, 0, store.incCalls)
	assert.Equal(t, 10, store.counters[storeKey("user-1", ActionReportSubmission)].Attempts)
}

func TestCheckExpiredWindowResets(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	store.counters[storeKey("user-1", ActionReportSubmission)] = Counter{
		Attempts:    10,
		WindowStart: now.Add(-2 * time.Hour),
	}
	limiter := newTestLimiter(store, now)

	decision, err := limiter.Check(context.Background(), "user-1", ActionReportSubmission)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 9, decision.Remaining)

	stored := store.counters[storeKey("user-1", ActionReportSubmission)]
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, now, stored.WindowStart)
}

func TestCheckCommentExhaustion(t *testing.T) {
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	limiter := newTestLimiter(store, start)

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		decision, err := limiter.Check(ctx, "user-1", ActionComment)
		require.NoError(t, err)
		require.True(t, decision.Allowed, "attempt %d", i+1)
		assert.Equal(t, 50-(i+1), decision.Remaining)
	}

	// The 51st call inside the window is denied with the remaining window time
	limiter.now = func() time.Time { return start.Add(10 * time.Minute) }
	decision, err := limiter.Check(ctx, "user-1", ActionComment)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, (50 * time.Minute).Milliseconds(), decision.ResetTimeMs)
}

func TestCheckStoreErrors(t *testing.T) {
	storeErr := errors.New("connection refused")

	store := newMemoryStore()
	store.getErr = storeErr
	limiter := newTestLimiter(store, time.Now())
	_, err := limiter.Check(context.Background(), "user-1", ActionAPICall)
	require.ErrorIs(t, err, storeErr)

	store = newMemoryStore()
	store.putErr = storeErr
	limiter = newTestLimiter(store, time.Now())
	_, err = limiter.Check(context.Background(), "user-1", ActionAPICall)
	require.ErrorIs(t, err, storeErr)

	now := time.Now()
	store = newMemoryStore()
	store.counters[storeKey("user-1", ActionAPICall)] = Counter{Attempts: 5, WindowStart: now}
	store.incErr = storeErr
	limiter = newTestLimiter(store, now)
	_, err = limiter.Check(context.Background(), "user-1", ActionAPICall)
	require.ErrorIs(t, err, storeErr)
}

func TestPolicyTable(t *testing.T) {
	tests := []struct {
		action  string
		max     int
		seconds int
	}{
		{ActionReportSubmission, 10, 3600},
		{ActionReportUpdate, 20, 3600},
		{ActionImageUpload, 30, 3600},
		{ActionComment, 50, 3600},
		{ActionAPICall, 100, 60},
	}
	for _, tt := range tests {
		policy, ok := PolicyFor(tt.action)
		require.True(t, ok, tt.action)
		assert.Equal(t, tt.max, policy.MaxAttempts, tt.action)
		assert.Equal(t, tt.seconds, policy.WindowSeconds, tt.action)
	}
	assert.False(t, KnownAction("profile_edit"))
}
