package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alerto-service/internal/model"
	"alerto-service/internal/ratelimit"
	"alerto-service/internal/service"
)

type stubCounterStore struct {
	counters map[string]ratelimit.Counter
}

func (s *stubCounterStore) Get(_ context.Context, userID, actionType string) (*ratelimit.Counter, error) {
	c, ok := s.counters[userID+":"+actionType]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *stubCounterStore) Put(_ context.Context, userID, actionType string, counter ratelimit.Counter) error {
	s.counters[userID+":"+actionType] = counter
	return nil
}

func (s *stubCounterStore) Increment(_ context.Context, userID, actionType string, at time.Time) (int, error) {
	c := s.counters[userID+":"+actionType]
	c.Attempts++
	s.counters[userID+":"+actionType] = c
	return c.Attempts, nil
}

type stubSubscriptionStore struct{}

func (stubSubscriptionStore) Upsert(context.Context, model.Subscription) error { return nil }
func (stubSubscriptionStore) Delete(context.Context, string, string) error     { return nil }

type stubProfileStore struct {
	profiles map[string]*model.UserProfile
}

func (s *stubProfileStore) GetProfile(_ context.Context, userID string) (*model.UserProfile, error) {
	return s.profiles[userID], nil
}

type stubReportStore struct {
	reports map[string]*model.Report
}

func (s *stubReportStore) Create(_ context.Context, report *model.Report) error {
	s.reports[report.ID] = report
	return nil
}

func (s *stubReportStore) Get(_ context.Context, reportID string) (*model.Report, error) {
	return s.reports[reportID], nil
}

func (s *stubReportStore) UpdateVerification(_ context.Context, reportID string, status model.VerificationStatus) error {
	if r, ok := s.reports[reportID]; ok {
		r.VerificationStatus = status
	}
	return nil
}

type stubPublisher struct{}

func (stubPublisher) PublishReportCreated(context.Context, model.ReportCreatedEvent) error { return nil }
func (stubPublisher) PublishVerificationChanged(context.Context, model.VerificationChangedEvent) error {
	return nil
}

type stubTopicManager struct{}

func (stubTopicManager) SubscribeToTopic(context.Context, []string, string) error { return nil }
func (stubTopicManager) UnsubscribeFromTopic(context.Context, []string, string) error {
	return nil
}

type stubBroadcaster struct{}

func (stubBroadcaster) SendBroadcast(context.Context, string, string, string) (string, error) {
	return "mid-1", nil
}

func newTestRouter(store *stubCounterStore, profiles map[string]*model.UserProfile) http.Handler {
	logger := zap.NewNop()
	limiter := ratelimit.NewLimiter(store, logger)
	gateway := service.NewGatewayService(
		limiter,
		stubSubscriptionStore{},
		&stubProfileStore{profiles: profiles},
		&stubReportStore{reports: make(map[string]*model.Report)},
		stubPublisher{},
		stubTopicManager{},
		stubBroadcaster{},
		logger,
	)
	return NewRouter(NewGatewayHandler(gateway, logger), logger)
}

func doRequest(t *testing.T, router http.Handler, method, path, userID, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec, resp
}

func TestCheckLimitEndpoint(t *testing.T) {
	store := &stubCounterStore{counters: make(map[string]ratelimit.Counter)}
	router := newTestRouter(store, nil)

	rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/limits/check", "u-1",
		`{"action_type":"comment"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["allowed"])
	assert.Equal(t, float64(49), data["remaining"])
}

func TestCheckLimitEndpointRejectsUnknownAction(t *testing.T) {
	store := &stubCounterStore{counters: make(map[string]ratelimit.Counter)}
	router := newTestRouter(store, nil)

	rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/limits/check", "u-1",
		`{"action_type":"profile_edit"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
}

func TestEndpointsRequireIdentity(t *testing.T) {
	store := &stubCounterStore{counters: make(map[string]ratelimit.Counter)}
	router := newTestRouter(store, nil)

	rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/reports", "",
		`{"disaster_type":"flood","severity":"high"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)
}

func TestSubmitReportEndpoint(t *testing.T) {
	store := &stubCounterStore{counters: make(map[string]ratelimit.Counter)}
	router := newTestRouter(store, nil)

	rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/reports", "u-1",
		`{"municipality":"Daet","disaster_type":"flood","severity":"high"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.NotEmpty(t, data["report_id"])
	assert.Equal(t, float64(9), data["remaining"])
}

func TestSubmitReportEndpointRateLimited(t *testing.T) {
	store := &stubCounterStore{counters: map[string]ratelimit.Counter{
		"u-1:report_submission": {Attempts: 10, WindowStart: time.Now()},
	}}
	router := newTestRouter(store, nil)

	rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/reports", "u-1",
		`{"disaster_type":"flood","severity":"high"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, false, data["allowed"])
	assert.Equal(t, float64(10), data["max_attempts"])
	assert.Greater(t, data["reset_time_ms"].(float64), float64(0))
}

func TestUpdateVerificationEndpointForbiddenForCitizens(t *testing.T) {
	store := &stubCounterStore{counters: make(map[string]ratelimit.Counter)}
	router := newTestRouter(store, map[string]*model.UserProfile{
		"u-1": {UserID: "u-1", Role: model.RoleCitizen},
	})

	rec, resp := doRequest(t, router, http.MethodPatch, "/api/v1/reports/r-1/verification", "u-1",
		`{"status":"verified"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, resp.Success)
}

func TestSubscriptionEndpoints(t *testing.T) {
	store := &stubCounterStore{counters: make(map[string]ratelimit.Counter)}
	router := newTestRouter(store, nil)

	rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/notifications/subscriptions", "u-1",
		`{"token":"tok-1","topic":"municipality_daet"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, resp = doRequest(t, router, http.MethodDelete, "/api/v1/notifications/subscriptions", "u-1",
		`{"token":"tok-1","topic":"municipality_daet"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, resp = doRequest(t, router, http.MethodPost, "/api/v1/notifications/subscriptions", "u-1",
		`{"token":"","topic":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
}

func TestBroadcastEndpoint(t *testing.T) {
	store := &stubCounterStore{counters: make(map[string]ratelimit.Counter)}
	router := newTestRouter(store, map[string]*model.UserProfile{
		"admin-1": {UserID: "admin-1", Role: model.RoleProvincialAdmin},
	})

	rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/notifications/broadcast", "admin-1",
		`{"title":"Evacuation Notice","body":"Move to higher ground."}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "mid-1", data["message_id"])
}
