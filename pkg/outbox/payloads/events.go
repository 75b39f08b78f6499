package payloads

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEvent is the notification body for payment.succeeded/failed/
// refunded/voided outbox events.
type PaymentEvent struct {
	PaymentID     uuid.UUID  `json:"payment_id"`
	OrderID       uuid.UUID  `json:"order_id"`
	IntentID      string     `json:"intent_id,omitempty"`
	State         string     `json:"state"`
	AmountCents   int64      `json:"amount_cents"`
	RefundedCents int64      `json:"refunded_cents,omitempty"`
	Currency      string     `json:"currency"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}
