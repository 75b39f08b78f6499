package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/commercebridge/ideal-gateway/pkg/enums"
)

// Order mirrors the merchant platform's order aggregate, reduced to the
// fields the gateway reads and the intent bookkeeping it owns.
//
// IntentID/IntentSecret are auxiliary data, not part of the payment state
// machine: they record which Stripe intent is currently associated with the
// order and the client secret that scopes lookups to this order's session.
type Order struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber    int64           `gorm:"column:order_number;not null"`
	StoreID        uuid.UUID       `gorm:"column:store_id;type:uuid;not null"`
	StoreName      string          `gorm:"column:store_name;not null"`
	Email          string          `gorm:"column:email;not null"`
	TotalCents     int64           `gorm:"column:total_cents;not null"`
	Currency       enums.Currency  `gorm:"column:currency;not null;default:'EUR'"`
	BillingProfile json.RawMessage `gorm:"column:billing_profile;type:jsonb"`

	IntentID        *string    `gorm:"column:stripe_ideal_intent_id;index"`
	IntentSecret    *string    `gorm:"column:stripe_ideal_intent_secret"`
	PaymentMethodID *uuid.UUID `gorm:"column:payment_method_id;type:uuid"`
	PaidAt          *time.Time `gorm:"column:paid_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// IsPaid reports whether the order has been settled in full.
func (o *Order) IsPaid() bool {
	return o.PaidAt != nil
}
