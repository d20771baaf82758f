package events

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"alerto-service/internal/client"
	"alerto-service/internal/metrics"
	"alerto-service/internal/model"
	"alerto-service/internal/util"
)

// Handler consumes report lifecycle events. Errors it returns are logged
// and suppressed; a failed notification never propagates back to the
// publisher.
type Handler interface {
	HandleReportCreated(ctx context.Context, ev model.ReportCreatedEvent) error
	HandleVerificationChanged(ctx context.Context, ev model.VerificationChangedEvent) error
}

// Consumer runs one read loop per lifecycle topic and forwards decoded
// events to the handler
type Consumer struct {
	created      *client.KafkaConsumer
	verification *client.KafkaConsumer
	handler      Handler
	logger       *zap.Logger
}

func NewConsumer(created, verification *client.KafkaConsumer, handler Handler, logger *zap.Logger) *Consumer {
	return &Consumer{
		created:      created,
		verification: verification,
		handler:      handler,
		logger:       logger,
	}
}

// Start launches the consume loops; they run until the context is cancelled
func (c *Consumer) Start(ctx context.Context) {
	go c.consumeCreated(ctx)
	go c.consumeVerification(ctx)
	c.logger.Info("Event consumer started")
}

func (c *Consumer) consumeCreated(ctx context.Context) {
	for {
		msg, err := c.created.ConsumeMessage(ctx)
		if err != nil {
			if stopped(ctx, err) {
				return
			}
			c.logger.Error("Failed to read report created event", util.ErrorField(err))
			continue
		}

		var ev model.ReportCreatedEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			metrics.EventsConsumed.WithLabelValues(msg.Topic, metrics.OutcomeError).Inc()
			c.logger.Error("Failed to decode report created event",
				util.ErrorField(err),
				util.String("key", string(msg.Key)))
			continue
		}

		if err := c.handler.HandleReportCreated(ctx, ev); err != nil {
			// Fire and forget: log and move on, never fail the loop
			metrics.EventsConsumed.WithLabelValues(msg.Topic, metrics.OutcomeError).Inc()
			c.logger.Error("Failed to send notification",
				util.ErrorField(err),
				util.String("report_id", ev.ReportID))
			continue
		}
		metrics.EventsConsumed.WithLabelValues(msg.Topic, metrics.OutcomeSuccess).Inc()
	}
}

func (c *Consumer) consumeVerification(ctx context.Context) {
	for {
		msg, err := c.verification.ConsumeMessage(ctx)
		if err != nil {
			if stopped(ctx, err) {
				return
			}
			c.logger.Error("Failed to read verification changed event", util.ErrorField(err))
			continue
		}

		var ev model.VerificationChangedEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			metrics.EventsConsumed.WithLabelValues(msg.Topic, metrics.OutcomeError).Inc()
			c.logger.Error("Failed to decode verification changed event",
				util.ErrorField(err),
				util.String("key", string(msg.Key)))
			continue
		}

		if err := c.handler.HandleVerificationChanged(ctx, ev); err != nil {
			metrics.EventsConsumed.WithLabelValues(msg.Topic, metrics.OutcomeError).Inc()
			c.logger.Error("Failed to send verification notification",
				util.ErrorField(err),
				util.String("report_id", ev.ReportID))
			continue
		}
		metrics.EventsConsumed.WithLabelValues(msg.Topic, metrics.OutcomeSuccess).Inc()
	}
}

func stopped(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
