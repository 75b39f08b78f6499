package stripewebhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/commercebridge/ideal-gateway/pkg/db"
	"github.com/commercebridge/ideal-gateway/pkg/db/models"
)

// EventStore persists the audit trail of verified Stripe deliveries.
type EventStore interface {
	RecordEvent(ctx context.Context, event *models.WebhookEvent) error
	MarkProcessed(ctx context.Context, id uuid.UUID, outcome string) error
}

type eventStore struct {
	db *gorm.DB
}

// NewEventStore builds a webhook event store bound to the provided DB.
func NewEventStore(gdb *gorm.DB) EventStore {
	return &eventStore{db: gdb}
}

// RecordEvent inserts the delivery. A redelivered event id is not an error;
// the existing row is loaded so the caller keeps its id.
func (s *eventStore) RecordEvent(ctx context.Context, event *models.WebhookEvent) error {
	err := s.db.WithContext(ctx).Create(event).Error
	if err == nil {
		return nil
	}
	if db.IsUniqueViolation(err, "ux_webhook_events_stripe_event_id") {
		var existing models.WebhookEvent
		if findErr := s.db.WithContext(ctx).
			Where("stripe_event_id = ?", event.StripeEventID).
			First(&existing).Error; findErr == nil {
			*event = existing
			return nil
		}
	}
	return err
}

func (s *eventStore) MarkProcessed(ctx context.Context, id uuid.UUID, outcome string) error {
	return s.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"outcome":      outcome,
			"processed_at": time.Now().UTC(),
		}).Error
}
