package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"alerto-service/internal/metrics"
	"alerto-service/internal/model"
	"alerto-service/internal/util"
)

// Provider limit on messages per SendEach batch
const multicastBatchSize = 500

const multicastConcurrency = 4

// Messenger is the push provider surface the dispatcher needs
type Messenger interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
	SendEach(ctx context.Context, msgs []*messaging.Message) (*messaging.BatchResponse, error)
}

// TokenResolver resolves a user's registered delivery tokens
type TokenResolver interface {
	TokensForUser(ctx context.Context, userID string) ([]string, error)
}

// DeliveryRecorder receives one aggregate audit record per dispatch
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, rec model.DeliveryRecord) error
}

// Dispatcher turns report lifecycle events into topic broadcasts and
// targeted multicasts. Event-triggered sends never fail the state
// transition that produced them; only the interactive broadcast surfaces
// errors to its caller.
type Dispatcher struct {
	messenger Messenger
	tokens    TokenResolver
	audit     DeliveryRecorder // optional
	sendLimit *rate.Limiter
	logger    *zap.Logger
}

func NewDispatcher(messenger Messenger, tokens TokenResolver, audit DeliveryRecorder, sendsPerSecond int, logger *zap.Logger) *Dispatcher {
	limit := rate.Inf
	burst := 1
	if sendsPerSecond > 0 {
		limit = rate.Limit(sendsPerSecond)
		burst = sendsPerSecond
	}
	return &Dispatcher{
		messenger: messenger,
		tokens:    tokens,
		audit:     audit,
		sendLimit: rate.NewLimiter(limit, burst),
		logger:    logger,
	}
}

// HandleReportCreated broadcasts a fresh report to its municipality topic.
// Reports without a resolved municipality are skipped silently.
func (d *Dispatcher) HandleReportCreated(ctx context.Context, ev model.ReportCreatedEvent) error {
	if ev.Municipality == "" {
		d.logger.Info("Report missing municipality, skipping notification",
			util.String("report_id", ev.ReportID))
		metrics.NotificationSends.WithLabelValues("topic", metrics.OutcomeSkipped).Inc()
		return nil
	}

	topic := MunicipalityTopic(ev.Municipality)
	msg := newReportMessage(ev, topic)

	if err := d.sendLimit.Wait(ctx); err != nil {
		return fmt.Errorf("send throttle interrupted: %w", err)
	}

	messageID, err := d.messenger.Send(ctx, msg)
	if err != nil {
		metrics.NotificationSends.WithLabelValues("topic", metrics.OutcomeFailure).Inc()
		return fmt.Errorf("failed to broadcast report %s to %s: %w", ev.ReportID, topic, err)
	}

	metrics.NotificationSends.WithLabelValues("topic", metrics.OutcomeSuccess).Inc()
	d.logger.Info("Report notification sent",
		util.String("report_id", ev.ReportID),
		util.String("topic", topic),
		util.String("message_id", messageID))

	d.recordDelivery(ctx, model.DeliveryRecord{
		EventType: "new_report",
		Topic:     topic,
		ReportID:  ev.ReportID,
		MessageID: messageID,
		SentAt:    time.Now().UTC(),
	})
	return nil
}

// HandleVerificationChanged notifies the original reporter about a
// verification status change. Unchanged or unrecognized statuses, anonymous
// reporters and reporters without tokens are silent no-ops.
func (d *Dispatcher) HandleVerificationChanged(ctx context.Context, ev model.VerificationChangedEvent) error {
	if ev.OldStatus == ev.NewStatus || !ev.NewStatus.Notifiable() {
		return nil
	}
	if ev.ReporterID == "" || ev.Anonymous {
		return nil
	}
	title, body := verificationContent(ev.NewStatus)

	tokens, err := d.tokens.TokensForUser(ctx, ev.ReporterID)
	if err != nil {
		return fmt.Errorf("failed to resolve reporter tokens: %w", err)
	}
	if len(tokens) == 0 {
		d.logger.Debug("Reporter has no delivery tokens",
			util.String("report_id", ev.ReportID),
			util.String("reporter_id", ev.ReporterID))
		return nil
	}

	msgs := make([]*messaging.Message, 0, len(tokens))
	for _, token := range tokens {
		msgs = append(msgs, newVerificationMessage(ev, title, body, token))
	}

	succeeded, failed := d.multicast(ctx, msgs)

	outcome := metrics.OutcomeSuccess
	if succeeded == 0 {
		outcome = metrics.OutcomeFailure
	}
	metrics.NotificationSends.WithLabelValues("multicast", outcome).Inc()

	d.logger.Info("Verification notification dispatched",
		util.String("report_id", ev.ReportID),
		util.String("reporter_id", ev.ReporterID),
		util.String("status", string(ev.NewStatus)),
		util.Int("recipients", len(tokens)),
		util.Int("succeeded", succeeded),
		util.Int("failed", failed))

	d.recordDelivery(ctx, model.DeliveryRecord{
		EventType:  "verification_update",
		ReportID:   ev.ReportID,
		Recipients: len(tokens),
		Succeeded:  succeeded,
		Failed:     failed,
		SentAt:     time.Now().UTC(),
	})
	return nil
}

// SendBroadcast is the interactive admin path: errors are surfaced to the
// caller along with the provider message ID on success
func (d *Dispatcher) SendBroadcast(ctx context.Context, title, body, municipality string) (string, error) {
	topic := BroadcastTopic(municipality)
	msg := newAlertMessage(title, body, topic)

	if err := d.sendLimit.Wait(ctx); err != nil {
		return "", fmt.Errorf("send throttle interrupted: %w", err)
	}

	messageID, err := d.messenger.Send(ctx, msg)
	if err != nil {
		metrics.NotificationSends.WithLabelValues("topic", metrics.OutcomeFailure).Inc()
		return "", fmt.Errorf("failed to send alert to %s: %w", topic, err)
	}

	metrics.NotificationSends.WithLabelValues("topic", metrics.OutcomeSuccess).Inc()
	d.logger.Info("Admin alert sent",
		util.String("topic", topic),
		util.String("message_id", messageID))

	d.recordDelivery(ctx, model.DeliveryRecord{
		EventType: "admin_alert",
		Topic:     topic,
		MessageID: messageID,
		SentAt:    time.Now().UTC(),
	})
	return messageID, nil
}

// multicast fans the messages out in provider-sized batches. Failures are
// isolated per token: a stale token never aborts delivery to the rest.
func (d *Dispatcher) multicast(ctx context.Context, msgs []*messaging.Message) (succeeded, failed int) {
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(multicastConcurrency)

	for start := 0; start < len(msgs); start += multicastBatchSize {
		end := start + multicastBatchSize
		if end > len(msgs) {
			end = len(msgs)
		}
		batch := msgs[start:end]

		g.Go(func() error {
			if err := d.sendLimit.WaitN(gctx, len(batch)); err != nil {
				mu.Lock()
				failed += len(batch)
				mu.Unlock()
				return nil
			}

			resp, err := d.messenger.SendEach(gctx, batch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Whole batch rejected; count every token as failed
				failed += len(batch)
				metrics.MulticastTokens.WithLabelValues(metrics.OutcomeFailure).Add(float64(len(batch)))
				d.logger.Warn("Multicast batch failed", util.ErrorField(err))
				return nil
			}
			succeeded += resp.SuccessCount
			failed += resp.FailureCount
			metrics.MulticastTokens.WithLabelValues(metrics.OutcomeSuccess).Add(float64(resp.SuccessCount))
			metrics.MulticastTokens.WithLabelValues(metrics.OutcomeFailure).Add(float64(resp.FailureCount))
			for i, sr := range resp.Responses {
				if !sr.Success && sr.Error != nil {
					d.logger.Debug("Token delivery failed",
						util.Int("batch_index", i),
						util.ErrorField(sr.Error))
				}
			}
			return nil
		})
	}

	_ = g.Wait()
	return succeeded, failed
}

func (d *Dispatcher) recordDelivery(ctx context.Context, rec model.DeliveryRecord) {
	if d.audit == nil {
		return
	}
	if err := d.audit.RecordDelivery(ctx, rec); err != nil {
		d.logger.Warn("Failed to write delivery audit record",
			util.String("event_type", rec.EventType),
			util.ErrorField(err))
	}
}
