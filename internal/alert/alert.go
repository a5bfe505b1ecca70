package alert

import (
	"context"
	"database/sql"
	"encoding/json"
	"presencegate/internal/events"
	"presencegate/internal/messaging/kafka"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher raises security alerts for submissions that were flagged for
// review or rejected. Dispatching is best-effort: failures are logged and
// never propagated to the admission flow.
type Dispatcher interface {
	OnReview(ctx context.Context, tx *sql.Tx, alert events.AlertEvent)
	OnRejection(ctx context.Context, tx *sql.Tx, alert events.AlertEvent)
}

// OutboxDispatcher stages alerts in the transactional outbox on the
// presence.alerts.v1 topic. The alert consumer picks them up and forwards
// them to the configured notifier.
type OutboxDispatcher struct {
	outboxRepo kafka.OutboxRepository
	logger     *zap.Logger
	nowFn      func() time.Time
}

func NewOutboxDispatcher(outboxRepo kafka.OutboxRepository, logger *zap.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		outboxRepo: outboxRepo,
		logger:     logger.Named("alert"),
		nowFn:      time.Now,
	}
}

func (d *OutboxDispatcher) OnReview(ctx context.Context, tx *sql.Tx, alert events.AlertEvent) {
	alert.EventType = events.AlertTypeReview
	d.stage(ctx, tx, alert)
}

func (d *OutboxDispatcher) OnRejection(ctx context.Context, tx *sql.Tx, alert events.AlertEvent) {
	alert.EventType = events.AlertTypeRejection
	d.stage(ctx, tx, alert)
}

func (d *OutboxDispatcher) stage(ctx context.Context, tx *sql.Tx, alert events.AlertEvent) {
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = d.nowFn().UTC()
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		d.logger.Error("marshal alert failed",
			zap.String("event_type", alert.EventType),
			zap.Error(err),
		)
		return
	}

	repo := d.outboxRepo
	if tx != nil {
		repo = repo.WithTx(tx)
	}

	err = repo.Create(ctx, kafka.OutboxEvent{
		ID:          uuid.NewString(),
		AggregateID: alert.UserID,
		EventType:   alert.EventType,
		Topic:       events.PresenceAlertTopic,
		Payload:     payload,
		Status:      kafka.OutboxStatusPending,
	})
	if err != nil {
		d.logger.Error("stage alert failed",
			zap.String("event_type", alert.EventType),
			zap.String("user_id", alert.UserID),
			zap.Error(err),
		)
	}
}

// NopDispatcher discards alerts. Used in tests.
type NopDispatcher struct{}

func (NopDispatcher) OnReview(context.Context, *sql.Tx, events.AlertEvent)    {}
func (NopDispatcher) OnRejection(context.Context, *sql.Tx, events.AlertEvent) {}
