package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"presencegate/internal/events"
	"presencegate/internal/messaging/kafka"
	"presencegate/internal/shared/contextutil"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Logger records admission audit events. Recording is best-effort: a
// failure to stage an event must never fail the admission request, so
// implementations log the error and return normally.
type Logger interface {
	Record(ctx context.Context, tx *sql.Tx, event events.AuditEvent)
}

// OutboxLogger stages audit events in the transactional outbox so they are
// committed atomically with the attendance record and shipped to Kafka by
// the producer worker.
type OutboxLogger struct {
	outboxRepo kafka.OutboxRepository
	logger     *zap.Logger
	nowFn      func() time.Time
}

func NewOutboxLogger(outboxRepo kafka.OutboxRepository, logger *zap.Logger) *OutboxLogger {
	return &OutboxLogger{
		outboxRepo: outboxRepo,
		logger:     logger.Named("audit"),
		nowFn:      time.Now,
	}
}

func (l *OutboxLogger) Record(ctx context.Context, tx *sql.Tx, event events.AuditEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = l.nowFn().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = contextutil.GetRequestID(ctx)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		l.logger.Error("marshal audit event failed",
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
		return
	}

	repo := l.outboxRepo
	if tx != nil {
		repo = repo.WithTx(tx)
	}

	err = repo.Create(ctx, kafka.OutboxEvent{
		ID:          uuid.NewString(),
		RequestID:   event.RequestID,
		AggregateID: event.UserID,
		EventType:   event.EventType,
		Topic:       events.PresenceAuditTopic,
		Payload:     payload,
		Status:      kafka.OutboxStatusPending,
	})
	if err != nil {
		l.logger.Error("stage audit event failed",
			zap.String("event_type", event.EventType),
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
	}
}

// ZapLogger writes audit events straight to the service log. Used in
// development and in tests where no outbox is wired.
type ZapLogger struct {
	Logger *zap.Logger
}

func (l *ZapLogger) Record(ctx context.Context, _ *sql.Tx, event events.AuditEvent) {
	log := contextutil.GetLogger(ctx, l.Logger)
	log.Info("audit",
		zap.String("event_type", event.EventType),
		zap.String("user_id", event.UserID),
		zap.String("device_id", event.DeviceID),
		zap.String("office_id", event.OfficeID),
		zap.String("decision", event.Decision),
		zap.String("message", event.Message),
	)
}
