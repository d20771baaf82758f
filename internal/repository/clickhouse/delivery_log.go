package clickhouse

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"alerto-service/internal/client"
	"alerto-service/internal/model"
	"alerto-service/internal/util"
)

const insertDelivery = `
    INSERT INTO notification_deliveries (
        event_type, topic, report_id, recipients, succeeded, failed,
        message_id, sent_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// DeliveryLog writes one audit row per dispatch. It is strictly
// observability: callers treat failures as non-fatal.
type DeliveryLog struct {
	client *client.ClickHouseClient
}

func NewDeliveryLog(client *client.ClickHouseClient) *DeliveryLog {
	return &DeliveryLog{client: client}
}

func (l *DeliveryLog) RecordDelivery(ctx context.Context, rec model.DeliveryRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now().UTC()
	}

	err := l.client.Exec(ctx, insertDelivery,
		rec.EventType, rec.Topic, rec.ReportID,
		uint32(rec.Recipients), uint32(rec.Succeeded), uint32(rec.Failed),
		rec.MessageID, rec.SentAt,
	)
	if err != nil {
		util.Error("Failed to record notification delivery",
			zap.String("event_type", rec.EventType),
			zap.String("topic", rec.Topic),
			zap.Error(err))
		return fmt.Errorf("failed to record notification delivery: %w", err)
	}

	return nil
}
