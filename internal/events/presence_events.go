package events

import "time"

const (
	PresenceAuditTopic = "presence.audit.v1"
	PresenceAlertTopic = "presence.alerts.v1"

	AlertTypeReview    = "presence.review"
	AlertTypeRejection = "presence.rejected"
)

type AuditEvent struct {
	EventType  string         `json:"event_type"`
	RequestID  string         `json:"request_id,omitempty"`
	UserID     string         `json:"user_id"`
	DeviceID   string         `json:"device_id,omitempty"`
	OfficeID   string         `json:"office_id,omitempty"`
	Decision   string         `json:"decision,omitempty"`
	Message    string         `json:"message"`
	Meta       map[string]any `json:"meta,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type AlertEvent struct {
	EventType  string    `json:"event_type"`
	UserID     string    `json:"user_id"`
	DeviceID   string    `json:"device_id,omitempty"`
	OfficeID   string    `json:"office_id,omitempty"`
	Decision   string    `json:"decision"`
	Rationale  string    `json:"rationale"`
	OccurredAt time.Time `json:"occurred_at"`
}
