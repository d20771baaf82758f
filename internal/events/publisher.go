package events

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"alerto-service/internal/client"
	"alerto-service/internal/model"
	"alerto-service/internal/util"
)

const headerEventType = "event_type"

const (
	eventTypeReportCreated       = "report_created"
	eventTypeVerificationChanged = "verification_changed"
)

// Publisher writes report lifecycle events to the broker after the owning
// effect has committed. Dispatch failures downstream can never reach the
// mutation path through this boundary.
type Publisher struct {
	producer          *client.KafkaProducer
	createdTopic      string
	verificationTopic string
	logger            *zap.Logger
}

func NewPublisher(producer *client.KafkaProducer, createdTopic, verificationTopic string, logger *zap.Logger) *Publisher {
	return &Publisher{
		producer:          producer,
		createdTopic:      createdTopic,
		verificationTopic: verificationTopic,
		logger:            logger,
	}
}

func (p *Publisher) PublishReportCreated(ctx context.Context, ev model.ReportCreatedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode report created event: %w", err)
	}

	err = p.producer.ProduceMessage(ctx, p.createdTopic, []byte(ev.ReportID), payload,
		map[string]string{headerEventType: eventTypeReportCreated})
	if err != nil {
		return fmt.Errorf("failed to publish report created event: %w", err)
	}

	p.logger.Debug("Report created event published",
		util.String("report_id", ev.ReportID),
		util.String("municipality", ev.Municipality))
	return nil
}

func (p *Publisher) PublishVerificationChanged(ctx context.Context, ev model.VerificationChangedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode verification changed event: %w", err)
	}

	err = p.producer.ProduceMessage(ctx, p.verificationTopic, []byte(ev.ReportID), payload,
		map[string]string{headerEventType: eventTypeVerificationChanged})
	if err != nil {
		return fmt.Errorf("failed to publish verification changed event: %w", err)
	}

	p.logger.Debug("Verification changed event published",
		util.String("report_id", ev.ReportID),
		util.String("status", string(ev.NewStatus)))
	return nil
}
