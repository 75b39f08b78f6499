package stripe

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/paymentmethod"
	"github.com/stripe/stripe-go/v84/refund"
)

// IntentCreateParams carries the gateway-side inputs for a new iDEAL intent.
type IntentCreateParams struct {
	AmountCents     int64
	Currency        string
	Description     string
	PaymentMethodID string
	Metadata        map[string]string
}

var errIntentIDRequired = errors.New("intent id is required")

// CreateIntent creates a payment intent restricted to the iDEAL method type.
func (c *Client) CreateIntent(ctx context.Context, params IntentCreateParams) (*stripe.PaymentIntent, error) {
	piParams := &stripe.PaymentIntentParams{
		Params:             stripe.Params{Context: ctx},
		Amount:             stripe.Int64(params.AmountCents),
		Currency:           stripe.String(params.Currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"ideal"}),
	}
	if params.PaymentMethodID != "" {
		piParams.PaymentMethod = stripe.String(params.PaymentMethodID)
	}
	if params.Description != "" {
		piParams.Description = stripe.String(params.Description)
	}
	for k, v := range params.Metadata {
		piParams.AddMetadata(k, v)
	}
	return paymentintent.New(piParams)
}

// RetrieveIntent fetches the current intent snapshot from Stripe.
func (c *Client) RetrieveIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	if id == "" {
		return nil, errIntentIDRequired
	}
	return paymentintent.Get(id, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
}

// ConfirmIntent confirms the intent, pointing Stripe's bank redirect back at
// the supplied return URL.
func (c *Client) ConfirmIntent(ctx context.Context, id, returnURL string) (*stripe.PaymentIntent, error) {
	if id == "" {
		return nil, errIntentIDRequired
	}
	return paymentintent.Confirm(id, &stripe.PaymentIntentConfirmParams{
		Params:    stripe.Params{Context: ctx},
		ReturnURL: stripe.String(returnURL),
	})
}

// CancelIntent cancels an intent that has not yet settled.
func (c *Client) CancelIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	if id == "" {
		return nil, errIntentIDRequired
	}
	return paymentintent.Cancel(id, &stripe.PaymentIntentCancelParams{
		Params: stripe.Params{Context: ctx},
	})
}

// CreateIdealPaymentMethod mints the single-use method token an iDEAL intent
// is confirmed with.
func (c *Client) CreateIdealPaymentMethod(ctx context.Context) (*stripe.PaymentMethod, error) {
	return paymentmethod.New(&stripe.PaymentMethodParams{
		Params: stripe.Params{Context: ctx},
		Type:   stripe.String("ideal"),
	})
}

// CreateRefund issues a refund against the intent. The idempotency key makes
// retried submissions safe on Stripe's side.
// https://stripe.com/docs/api/idempotent_requests
func (c *Client) CreateRefund(ctx context.Context, intentID string, amountCents int64, idempotencyKey string) (*stripe.Refund, error) {
	if intentID == "" {
		return nil, errIntentIDRequired
	}
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(amountCents),
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	return refund.New(params)
}
