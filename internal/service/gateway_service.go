package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alerto-service/internal/model"
	"alerto-service/internal/ratelimit"
	"alerto-service/internal/util"
)

var (
	ErrUnauthenticated  = errors.New("authentication required")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrPermissionDenied = errors.New("admin access required")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrReportNotFound   = errors.New("report not found")
	ErrInternal         = errors.New("internal error")
)

// RateLimitError carries the retry hint a denied caller needs to render a
// countdown
type RateLimitError struct {
	ResetTimeMs int64
	MaxAttempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, resets in %dms", e.ResetTimeMs)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// SubscriptionStore is the durable (user, topic) -> token registry
type SubscriptionStore interface {
	Upsert(ctx context.Context, sub model.Subscription) error
	Delete(ctx context.Context, userID, topic string) error
}

// ProfileStore reads platform-owned user profiles
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*model.UserProfile, error)
}

// ReportStore persists the gateway-owned report slice
type ReportStore interface {
	Create(ctx context.Context, report *model.Report) error
	Get(ctx context.Context, reportID string) (*model.Report, error)
	UpdateVerification(ctx context.Context, reportID string, status model.VerificationStatus) error
}

// EventPublisher emits lifecycle events after effects commit
type EventPublisher interface {
	PublishReportCreated(ctx context.Context, ev model.ReportCreatedEvent) error
	PublishVerificationChanged(ctx context.Context, ev model.VerificationChangedEvent) error
}

// TopicManager is the provider-side subscribe/unsubscribe surface
type TopicManager interface {
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) error
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) error
}

// Broadcaster is the interactive alert path
type Broadcaster interface {
	SendBroadcast(ctx context.Context, title, body, municipality string) (string, error)
}

// GatewayService implements the authenticated entry points: limit checks,
// rate-limited report submission, subscription management and admin alerts.
type GatewayService struct {
	limiter     *ratelimit.Limiter
	subs        SubscriptionStore
	profiles    ProfileStore
	reports     ReportStore
	events      EventPublisher
	topics      TopicManager
	broadcaster Broadcaster
	logger      *zap.Logger
}

func NewGatewayService(
	limiter *ratelimit.Limiter,
	subs SubscriptionStore,
	profiles ProfileStore,
	reports ReportStore,
	events EventPublisher,
	topics TopicManager,
	broadcaster Broadcaster,
	logger *zap.Logger,
) *GatewayService {
	return &GatewayService{
		limiter:     limiter,
		subs:        subs,
		profiles:    profiles,
		reports:     reports,
		events:      events,
		topics:      topics,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// CheckLimit is the informational limiter probe. Unknown action types are
// rejected at this surface even though the limiter itself treats them as
// unthrottled.
func (s *GatewayService) CheckLimit(ctx context.Context, id model.Identity, actionType string) (*ratelimit.Decision, error) {
	if !id.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if actionType == "" || !ratelimit.KnownAction(actionType) {
		return nil, fmt.Errorf("%w: unknown action type %q", ErrInvalidArgument, actionType)
	}

	decision, err := s.limiter.Check(ctx, id.UserID, actionType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return decision, nil
}

// SubmitReportRequest is the validated submission payload
type SubmitReportRequest struct {
	Municipality string `json:"municipality"`
	DisasterType string `json:"disaster_type"`
	Severity     string `json:"severity"`
	Description  string `json:"description"`
	Anonymous    bool   `json:"anonymous"`
}

// SubmitReportResult mirrors the limiter outcome back to the caller
type SubmitReportResult struct {
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	ReportID  string `json:"report_id"`
}

// SubmitReport checks the submission limit, persists the report and emits
// the created event. Limiter store failures deny the action: submission is
// a safety-critical path, so an indeterminate limiter result fails closed.
func (s *GatewayService) SubmitReport(ctx context.Context, id model.Identity, req *SubmitReportRequest) (*SubmitReportResult, error) {
	if !id.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if req == nil || strings.TrimSpace(req.DisasterType) == "" || strings.TrimSpace(req.Severity) == "" {
		return nil, fmt.Errorf("%w: disaster type and severity are required", ErrInvalidArgument)
	}

	decision, err := s.limiter.Check(ctx, id.UserID, ratelimit.ActionReportSubmission)
	if err != nil {
		s.logger.Error("Limiter unavailable, denying submission",
			util.String("user_id", id.UserID),
			util.ErrorField(err))
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !decision.Allowed {
		return nil, &RateLimitError{
			ResetTimeMs: decision.ResetTimeMs,
			MaxAttempts: decision.MaxAttempts,
		}
	}

	report := &model.Report{
		ID:           uuid.NewString(),
		ReporterID:   id.UserID,
		Anonymous:    id.Anonymous || req.Anonymous,
		Municipality: strings.TrimSpace(req.Municipality),
		DisasterType: strings.TrimSpace(req.DisasterType),
		Severity:     strings.TrimSpace(req.Severity),
		Description:  strings.TrimSpace(req.Description),
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	// Fire and forget: a publish failure must not fail the submission
	ev := model.ReportCreatedEvent{
		ReportID:     report.ID,
		Municipality: report.Municipality,
		DisasterType: report.DisasterType,
		Severity:     report.Severity,
		Description:  report.Description,
	}
	if err := s.events.PublishReportCreated(ctx, ev); err != nil {
		s.logger.Error("Failed to publish report created event",
			util.String("report_id", report.ID),
			util.ErrorField(err))
	}

	return &SubmitReportResult{
		Allowed:   true,
		Remaining: decision.Remaining,
		ReportID:  report.ID,
	}, nil
}

// UpdateVerificationResult reports the applied transition
type UpdateVerificationResult struct {
	ReportID string                   `json:"report_id"`
	Status   model.VerificationStatus `json:"status"`
	Changed  bool                     `json:"changed"`
}

// UpdateVerification transitions a report's verification status. Requires a
// moderator role. An unchanged status is an idempotent no-op; only real
// transitions publish an event.
func (s *GatewayService) UpdateVerification(ctx context.Context, id model.Identity, reportID, statusStr string) (*UpdateVerificationResult, error) {
	if !id.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if reportID == "" {
		return nil, fmt.Errorf("%w: report id is required", ErrInvalidArgument)
	}
	status, ok := model.ParseVerificationStatus(statusStr)
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized verification status %q", ErrInvalidArgument, statusStr)
	}

	if err := s.requireModerator(ctx, id); err != nil {
		return nil, err
	}

	report, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if report == nil {
		return nil, ErrReportNotFound
	}

	if report.VerificationStatus == status {
		return &UpdateVerificationResult{ReportID: reportID, Status: status, Changed: false}, nil
	}

	if err := s.reports.UpdateVerification(ctx, reportID, status); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	ev := model.VerificationChangedEvent{
		ReportID:   reportID,
		ReporterID: report.ReporterID,
		Anonymous:  report.Anonymous,
		OldStatus:  report.VerificationStatus,
		NewStatus:  status,
	}
	if err := s.events.PublishVerificationChanged(ctx, ev); err != nil {
		s.logger.Error("Failed to publish verification changed event",
			util.String("report_id", reportID),
			util.ErrorField(err))
	}

	return &UpdateVerificationResult{ReportID: reportID, Status: status, Changed: true}, nil
}

// SubscriptionResult echoes the affected topic
type SubscriptionResult struct {
	Success bool   `json:"success"`
	Topic   string `json:"topic"`
}

// Subscribe registers the token with the provider first and records the
// mapping only on provider success, so the registry never holds a
// subscription the provider does not.
func (s *GatewayService) Subscribe(ctx context.Context, id model.Identity, token, topic string) (*SubscriptionResult, error) {
	if !id.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if token == "" || topic == "" {
		return nil, fmt.Errorf("%w: token and topic are required", ErrInvalidArgument)
	}

	if err := s.topics.SubscribeToTopic(ctx, []string{token}, topic); err != nil {
		s.logger.Error("Provider subscribe failed",
			util.String("user_id", id.UserID),
			util.String("topic", topic),
			util.ErrorField(err))
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	sub := model.Subscription{
		UserID:       id.UserID,
		Topic:        topic,
		Token:        token,
		SubscribedAt: time.Now().UTC(),
	}
	if err := s.subs.Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	return &SubscriptionResult{Success: true, Topic: topic}, nil
}

// Unsubscribe removes the token at the provider, then drops the mapping.
// Unsubscribing a pair that was never subscribed completes without error.
func (s *GatewayService) Unsubscribe(ctx context.Context, id model.Identity, token, topic string) (*SubscriptionResult, error) {
	if !id.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if token == "" || topic == "" {
		return nil, fmt.Errorf("%w: token and topic are required", ErrInvalidArgument)
	}

	if err := s.topics.UnsubscribeFromTopic(ctx, []string{token}, topic); err != nil {
		s.logger.Error("Provider unsubscribe failed",
			util.String("user_id", id.UserID),
			util.String("topic", topic),
			util.ErrorField(err))
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if err := s.subs.Delete(ctx, id.UserID, topic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	return &SubscriptionResult{Success: true, Topic: topic}, nil
}

// BroadcastResult carries the provider message ID back to the admin
type BroadcastResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
}

// SendBroadcast sends an alert to a municipality topic, or to all users
// when no municipality is given. Requires a broadcasting role, resolved
// from the caller's stored profile.
func (s *GatewayService) SendBroadcast(ctx context.Context, id model.Identity, title, body, municipality string) (*BroadcastResult, error) {
	if !id.Authenticated() {
		return nil, ErrUnauthenticated
	}

	profile, err := s.profiles.GetProfile(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if profile == nil || !profile.Role.CanBroadcast() {
		return nil, ErrPermissionDenied
	}

	if strings.TrimSpace(title) == "" || strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: title and body are required", ErrInvalidArgument)
	}

	messageID, err := s.broadcaster.SendBroadcast(ctx, title, body, municipality)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	s.logger.Info("Admin broadcast sent",
		util.String("user_id", id.UserID),
		util.String("role", profile.Role.String()),
		util.String("message_id", messageID))

	return &BroadcastResult{Success: true, MessageID: messageID}, nil
}

func (s *GatewayService) requireModerator(ctx context.Context, id model.Identity) error {
	profile, err := s.profiles.GetProfile(ctx, id.UserID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if profile == nil || !profile.Role.CanModerate() {
		return ErrPermissionDenied
	}
	return nil
}
