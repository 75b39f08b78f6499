package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/commercebridge/ideal-gateway/pkg/enums"
)

// Payment is the local side of a Stripe payment intent.
//
// RemoteID carries the intent id once the intent has been confirmed; together
// with the order's stored client secret it proves that an inbound reference
// (webhook or browser return) belongs to this payment.
type Payment struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	RemoteID        *string            `gorm:"column:remote_id;uniqueIndex:ux_payments_remote_id"`
	RemoteState     *string            `gorm:"column:remote_state"`
	State           enums.PaymentState `gorm:"column:state;not null;default:'new'"`
	AmountCents     int64              `gorm:"column:amount_cents;not null"`
	RefundedCents   int64              `gorm:"column:refunded_cents;not null;default:0"`
	Currency        enums.Currency     `gorm:"column:currency;not null;default:'EUR'"`
	PaymentMethodID *uuid.UUID         `gorm:"column:payment_method_id;type:uuid"`
	AuthorizedAt    *time.Time         `gorm:"column:authorized_at"`
	CompletedAt     *time.Time         `gorm:"column:completed_at"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// RemainingCents returns the refundable balance.
func (p *Payment) RemainingCents() int64 {
	return p.AmountCents - p.RefundedCents
}
