package consumer

import (
	"context"
	"encoding/json"
	"presencegate/internal/events"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// AlertNotifier delivers a review/rejection alert to the security channel
// (pager, chat webhook, email). Implementations must be safe to call from
// a single consumer goroutine.
type AlertNotifier interface {
	Notify(ctx context.Context, alert events.AlertEvent) error
}

func ConsumePresenceAlerts(
	ctx context.Context,
	reader *kafkago.Reader,
	notifier AlertNotifier,
	logger *zap.Logger,
) {
	log := logger.Named("kafka.consumer.presence_alert")
	log.Info("presence alert consumer started")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("presence alert consumer stopped")
				return
			}
			log.Error("fetch presence alert message failed", zap.Error(err))
			continue
		}

		var alert events.AlertEvent
		if err := json.Unmarshal(msg.Value, &alert); err != nil {
			log.Error("decode presence alert failed", zap.Error(err))
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		if err := notifier.Notify(ctx, alert); err != nil {
			log.Error("deliver presence alert failed",
				zap.String("event_type", alert.EventType),
				zap.String("user_id", alert.UserID),
				zap.Error(err),
			)
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit presence alert message failed", zap.Error(err))
			continue
		}

		log.Info("presence alert delivered",
			zap.String("event_type", alert.EventType),
			zap.String("user_id", alert.UserID),
			zap.String("decision", alert.Decision),
		)
	}
}

// LogNotifier is the default notifier when no external channel is
// configured. It writes the alert to the service log at warn level.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n *LogNotifier) Notify(_ context.Context, alert events.AlertEvent) error {
	n.Logger.Warn("presence alert",
		zap.String("event_type", alert.EventType),
		zap.String("user_id", alert.UserID),
		zap.String("device_id", alert.DeviceID),
		zap.String("office_id", alert.OfficeID),
		zap.String("decision", alert.Decision),
		zap.String("rationale", alert.Rationale),
		zap.Time("occurred_at", alert.OccurredAt),
	)
	return nil
}
