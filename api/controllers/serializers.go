package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/commercebridge/ideal-gateway/pkg/db/models"
	"github.com/commercebridge/ideal-gateway/pkg/types"
)

// PaymentResponse is the snapshot of a payment returned by the admin and
// checkout confirmation endpoints. Amounts are serialized both as integer
// cents and as a decimal string so callers do not have to convert.
type PaymentResponse struct {
	ID             uuid.UUID  `json:"id"`
	OrderID        uuid.UUID  `json:"order_id"`
	State          string     `json:"state"`
	RemoteID       *string    `json:"remote_id,omitempty"`
	RemoteState    *string    `json:"remote_state,omitempty"`
	AmountCents    int64      `json:"amount_cents"`
	Amount         string     `json:"amount"`
	RefundedCents  int64      `json:"refunded_cents"`
	RefundedAmount string     `json:"refunded_amount"`
	Currency       string     `json:"currency"`
	AuthorizedAt   *time.Time `json:"authorized_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func newPaymentResponse(payment *models.Payment) PaymentResponse {
	return PaymentResponse{
		ID:             payment.ID,
		OrderID:        payment.OrderID,
		State:          payment.State.String(),
		RemoteID:       payment.RemoteID,
		RemoteState:    payment.RemoteState,
		AmountCents:    payment.AmountCents,
		Amount:         types.FromMinorUnits(payment.AmountCents).StringFixed(2),
		RefundedCents:  payment.RefundedCents,
		RefundedAmount: types.FromMinorUnits(payment.RefundedCents).StringFixed(2),
		Currency:       payment.Currency.String(),
		AuthorizedAt:   payment.AuthorizedAt,
		CompletedAt:    payment.CompletedAt,
	}
}
