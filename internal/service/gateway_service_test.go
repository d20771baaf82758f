package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alerto-service/internal/model"
	"alerto-service/internal/ratelimit"
)

type memoryCounterStore struct {
	counters map[string]ratelimit.Counter
	getErr   error
}

func newMemoryCounterStore() *memoryCounterStore {
	return &memoryCounterStore{counters: make(map[string]ratelimit.Counter)}
}

func (m *memoryCounterStore) Get(_ context.Context, userID, actionType string) (*ratelimit.Counter, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.counters[userID+":"+actionType]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memoryCounterStore) Put(_ context.Context, userID, actionType string, counter ratelimit.Counter) error {
	m.counters[userID+":"+actionType] = counter
	return nil
}

func (m *memoryCounterStore) Increment(_ context.Context, userID, actionType string, at time.Time) (int, error) {
	c := m.counters[userID+":"+actionType]
	c.Attempts++
	c.LastAttempt = at
	m.counters[userID+":"+actionType] = c
	return c.Attempts, nil
}

type fakeSubscriptionStore struct {
	upserts []model.Subscription
	deletes []string
	err     error
}

func (f *fakeSubscriptionStore) Upsert(_ context.Context, sub model.Subscription) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, sub)
	return nil
}

func (f *fakeSubscriptionStore) Delete(_ context.Context, userID, topic string) error {
	if f.err != nil {
		return f.err
	}
	f.deletes = append(f.deletes, userID+":"+topic)
	return nil
}

type fakeProfileStore struct {
	profiles map[string]*model.UserProfile
	err      error
}

func (f *fakeProfileStore) GetProfile(_ context.Context, userID string) (*model.UserProfile, error) {
	return f.profiles[userID], f.err
}

type fakeReportStore struct {
	reports   map[string]*model.Report
	created   []*model.Report
	updated   map[string]model.VerificationStatus
	createErr error
}

func newFakeReportStore() *fakeReportStore {
	return &fakeReportStore{
		reports: make(map[string]*model.Report),
		updated: make(map[string]model.VerificationStatus),
	}
}

func (f *fakeReportStore) Create(_ context.Context, report *model.Report) error {
	if f.createErr != nil {
		return f.createErr
	}
	if report.VerificationStatus == "" {
		report.VerificationStatus = model.StatusPending
	}
	f.created = append(f.created, report)
	f.reports[report.ID] = report
	return nil
}

func (f *fakeReportStore) Get(_ context.Context, reportID string) (*model.Report, error) {
	return f.reports[reportID], nil
}

func (f *fakeReportStore) UpdateVerification(_ context.Context, reportID string, status model.VerificationStatus) error {
	f.updated[reportID] = status
	return nil
}

type fakePublisher struct {
	created      []model.ReportCreatedEvent
	verification []model.VerificationChangedEvent
	err          error
}

func (f *fakePublisher) PublishReportCreated(_ context.Context, ev model.ReportCreatedEvent) error {
	f.created = append(f.created, ev)
	return f.err
}

func (f *fakePublisher) PublishVerificationChanged(_ context.Context, ev model.VerificationChangedEvent) error {
	f.verification = append(f.verification, ev)
	return f.err
}

type fakeTopicManager struct {
	subscribes   []string
	unsubscribes []string
	err          error
}

func (f *fakeTopicManager) SubscribeToTopic(_ context.Context, _ []string, topic string) error {
	if f.err != nil {
		return f.err
	}
	f.subscribes = append(f.subscribes, topic)
	return nil
}

func (f *fakeTopicManager) UnsubscribeFromTopic(_ context.Context, _ []string, topic string) error {
	if f.err != nil {
		return f.err
	}
	f.unsubscribes = append(f.unsubscribes, topic)
	return nil
}

type fakeBroadcaster struct {
	calls     int
	messageID string
	err       error
}

func (f *fakeBroadcaster) SendBroadcast(_ context.Context, _, _, _ string) (string, error) {
	f.calls++
	return f.messageID, f.err
}

type gatewayFixture struct {
	store       *memoryCounterStore
	subs        *fakeSubscriptionStore
	profiles    *fakeProfileStore
	reports     *fakeReportStore
	publisher   *fakePublisher
	topics      *fakeTopicManager
	broadcaster *fakeBroadcaster
	service     *GatewayService
}

func newGatewayFixture() *gatewayFixture {
	f := &gatewayFixture{
		store:       newMemoryCounterStore(),
		subs:        &fakeSubscriptionStore{},
		profiles:    &fakeProfileStore{profiles: make(map[string]*model.UserProfile)},
		reports:     newFakeReportStore(),
		publisher:   &fakePublisher{},
		topics:      &fakeTopicManager{},
		broadcaster: &fakeBroadcaster{messageID: "mid-1"},
	}
	limiter := ratelimit.NewLimiter(f.store, zap.NewNop())
	f.service = NewGatewayService(limiter, f.subs, f.profiles, f.reports,
		f.publisher, f.topics, f.broadcaster, zap.NewNop())
	return f
}

var citizen = model.Identity{UserID: "u-1"}

func TestCheckLimit(t *testing.T) {
	f := newGatewayFixture()
	ctx := context.Background()

	_, err := f.service.CheckLimit(ctx, model.Identity{}, ratelimit.ActionComment)
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.service.CheckLimit(ctx, citizen, "profile_edit")
	require.ErrorIs(t, err, ErrInvalidArgument)

	decision, err := f.service.CheckLimit(ctx, citizen, ratelimit.ActionComment)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 49, decision.Remaining)
}

func TestSubmitReport(t *testing.T) {
	f := newGatewayFixture()
	ctx := context.Background()

	result, err := f.service.SubmitReport(ctx, citizen, &SubmitReportRequest{
		Municipality: "Daet",
		DisasterType: "flood",
		Severity:     "high",
		Description:  "Water rising",
	})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 9, result.Remaining)
	assert.NotEmpty(t, result.ReportID)

	require.Len(t, f.reports.created, 1)
	assert.Equal(t, "u-1", f.reports.created[0].ReporterID)
	assert.Equal(t, model.StatusPending, f.reports.created[0].VerificationStatus)

	require.Len(t, f.publisher.created, 1)
	assert.Equal(t, result.ReportID, f.publisher.created[0].ReportID)
}

func TestSubmitReportValidation(t *testing.T) {
	f := newGatewayFixture()
	ctx := context.Background()

	_, err := f.service.SubmitReport(ctx, model.Identity{}, &SubmitReportRequest{DisasterType: "flood", Severity: "high"})
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.service.SubmitReport(ctx, citizen, &SubmitReportRequest{Severity: "high"})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.service.SubmitReport(ctx, citizen, &SubmitReportRequest{DisasterType: "flood"})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSubmitReportRateLimited(t *testing.T) {
	f := newGatewayFixture()
	ctx := context.Background()

	f.store.counters["u-1:"+ratelimit.ActionReportSubmission] = ratelimit.Counter{
		Attempts:    10,
		WindowStart: time.Now(),
	}

	_, err := f.service.SubmitReport(ctx, citizen, &SubmitReportRequest{
		DisasterType: "flood",
		Severity:     "high",
	})
	require.ErrorIs(t, err, ErrRateLimited)

	var limitErr *RateLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 10, limitErr.MaxAttempts)
	assert.Greater(t, limitErr.ResetTimeMs, int64(0))

	assert.Empty(t, f.reports.created)
	assert.Empty(t, f.publisher.created)
}

func TestSubmitReportFailsClosedOnLimiterError(t *testing.T) {
	f := newGatewayFixture()
	f.store.getErr = errors.New("connection refused")

	_, err := f.service.SubmitReport(context.Background(), citizen, &SubmitReportRequest{
		DisasterType: "flood",
		Severity:     "high",
	})
	require.ErrorIs(t, err, ErrInternal)
	assert.Empty(t, f.reports.created)
}

func TestSubmitReportSurvivesPublishFailure(t *testing.T) {
	f := newGatewayFixture()
	f.publisher.err = errors.New("broker unavailable")

	result, err := f.service.SubmitReport(context.Background(), citizen, &SubmitReportRequest{
		DisasterType: "flood",
		Severity:     "high",
	})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	require.Len(t, f.reports.created, 1)
}

func TestUpdateVerification(t *testing.T) {
	f := newGatewayFixture()
	ctx := context.Background()
	moderator := model.Identity{UserID: "mod-1"}
	f.profiles.profiles["mod-1"] = &model.UserProfile{UserID: "mod-1", Role: model.RoleMunicipalAdmin}
	f.reports.reports["r-1"] = &model.Report{
		ID:                 "r-1",
		ReporterID:         "u-1",
		VerificationStatus: model.StatusPending,
	}

	result, err := f.service.UpdateVerification(ctx, moderator, "r-1", "verified")
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, model.StatusVerified, result.Status)
	assert.Equal(t, model.StatusVerified, f.reports.updated["r-1"])

	require.Len(t, f.publisher.verification, 1)
	ev := f.publisher.verification[0]
	assert.Equal(t, "u-1", ev.ReporterID)
	assert.Equal(t, model.StatusPending, ev.OldStatus)
	assert.Equal(t, model.StatusVerified, ev.NewStatus)
}

func TestUpdateVerificationUnchangedIsNoOp(t *testing.T) {
	f := newGatewayFixture()
	moderator := model.Identity{UserID: "mod-1"}
	f.profiles.profiles["mod-1"] = &model.UserProfile{UserID: "mod-1", Role: model.RoleResponder}
	f.reports.reports["r-1"] = &model.Report{ID: "r-1", VerificationStatus: model.StatusVerified}

	result, err := f.service.UpdateVerification(context.Background(), moderator, "r-1", "verified")
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, f.reports.updated)
	assert.Empty(t, f.publisher.verification)
}

func TestUpdateVerificationAuthorization(t *testing.T) {
	f := newGatewayFixture()
	ctx := context.Background()
	f.profiles.profiles["u-1"] = &model.UserProfile{UserID: "u-1", Role: model.RoleCitizen}
	f.reports.reports["r-1"] = &model.Report{ID: "r-1"}

	_, err := f.service.UpdateVerification(ctx, citizen, "r-1", "verified")
	require.ErrorIs(t, err, ErrPermissionDenied)

	// Unknown caller profile is denied, not treated as an error
	_, err = f.service.UpdateVerification(ctx, model.Identity{UserID: "ghost"}, "r-1", "verified")
	require.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.service.UpdateVerification(ctx, citizen, "r-1", "bogus")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUpdateVerificationNotFound(t *testing.T) {
	f := newGatewayFixture()
	moderator := model.Identity{UserID: "mod-1"}
	f.profiles.profiles["mod-1"] = &model.UserProfile{UserID: "mod-1", Role: model.RoleProvincialAdmin}

	_, err := f.service.UpdateVerification(context.Background(), moderator, "missing", "verified")
	require.ErrorIs(t, err, ErrReportNotFound)
}

func TestSubscribe(t *testing.T) {
	f := newGatewayFixture()
	ctx := context.Background()

	result, err := f.service.Subscribe(ctx, citizen, "tok-1", "municipality_daet")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"municipality_daet"}, f.topics.subscribes)
	require.Len(t, f.subs.upserts, 1)
	assert.Equal(t, "u-1", f.subs.upserts[0].UserID)

	_, err = f.service.Subscribe(ctx, citizen, "", "municipality_daet")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSubscribeProviderFailureSkipsRegistry(t *testing.T) {
	f := newGatewayFixture()
	f.topics.err = errors.New("invalid token")

	_, err := f.service.Subscribe(context.Background(), citizen, "tok-1", "municipality_daet")
	require.ErrorIs(t, err, ErrInternal)
	assert.Empty(t, f.subs.upserts)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	f := newGatewayFixture()
	ctx := context.Background()

	// Never subscribed: both layers treat removal as a no-op success
	result, err := f.service.Unsubscribe(ctx, citizen, "tok-1", "municipality_daet")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"municipality_daet"}, f.topics.unsubscribes)
	assert.Equal(t, []string{"u-1:municipality_daet"}, f.subs.deletes)
}

func TestSendBroadcast(t *testing.T) {
	f := newGatewayFixture()
	ctx := context.Background()
	admin := model.Identity{UserID: "admin-1"}
	f.profiles.profiles["admin-1"] = &model.UserProfile{UserID: "admin-1", Role: model.RoleProvincialAdmin}

	result, err := f.service.SendBroadcast(ctx, admin, "Evacuation Notice", "Move to higher ground.", "Daet")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "mid-1", result.MessageID)
	assert.Equal(t, 1, f.broadcaster.calls)
}

func TestSendBroadcastAuthorization(t *testing.T) {
	f := newGatewayFixture()
	ctx := context.Background()
	f.profiles.profiles["u-1"] = &model.UserProfile{UserID: "u-1", Role: model.RoleCitizen}
	f.profiles.profiles["resp-1"] = &model.UserProfile{UserID: "resp-1", Role: model.RoleResponder}

	_, err := f.service.SendBroadcast(ctx, citizen, "t", "b", "")
	require.ErrorIs(t, err, ErrPermissionDenied)

	// Responders moderate but do not broadcast
	_, err = f.service.SendBroadcast(ctx, model.Identity{UserID: "resp-1"}, "t", "b", "")
	require.ErrorIs(t, err, ErrPermissionDenied)

	assert.Equal(t, 0, f.broadcaster.calls)
}

func TestSendBroadcastValidation(t *testing.T) {
	f := newGatewayFixture()
	ctx := context.Background()
	admin := model.Identity{UserID: "admin-1"}
	f.profiles.profiles["admin-1"] = &model.UserProfile{UserID: "admin-1", Role: model.RoleMunicipalAdmin}

	_, err := f.service.SendBroadcast(ctx, admin, "", "body", "")
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.service.SendBroadcast(ctx, admin, "title", "   ", "")
	require.ErrorIs(t, err, ErrInvalidArgument)
}
