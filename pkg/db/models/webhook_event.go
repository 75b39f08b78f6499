package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is an audit record of every verified Stripe delivery, kept so
// operators can replay or inspect what the provider actually sent.
type WebhookEvent struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StripeEventID string          `gorm:"column:stripe_event_id;not null;uniqueIndex:ux_webhook_events_stripe_event_id"`
	EventType     string          `gorm:"column:event_type;not null"`
	Payload       json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	Outcome       *string         `gorm:"column:outcome"`
	ReceivedAt    time.Time       `gorm:"column:received_at;autoCreateTime"`
	ProcessedAt   *time.Time      `gorm:"column:processed_at"`
}
