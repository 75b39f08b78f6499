package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/commercebridge/ideal-gateway/api/responses"
	stripewebhook "github.com/commercebridge/ideal-gateway/internal/webhooks/stripe"
	pkgerrors "github.com/commercebridge/ideal-gateway/pkg/errors"
	"github.com/commercebridge/ideal-gateway/pkg/logger"
)

// Stripe recommends capping webhook bodies well below this.
const maxBodyBytes = int64(64 * 1024)

type eventHandler interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type StripeController struct {
	svc           eventHandler
	guard         *stripewebhook.IdempotencyGuard
	signingSecret string
	logg          *logger.Logger
}

func NewStripeController(svc eventHandler, guard *stripewebhook.IdempotencyGuard, signingSecret string, logg *logger.Logger) (*StripeController, error) {
	if svc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook service required")
	}
	if guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	if signingSecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "signing secret required")
	}
	return &StripeController{svc: svc, guard: guard, signingSecret: signingSecret, logg: logg}, nil
}

// Handle verifies the delivery signature, deduplicates the event id, and
// hands the event to the webhook service. Any non-2xx response makes Stripe
// redeliver, so the idempotency mark is released whenever handling fails.
func (c *StripeController) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		responses.WriteError(ctx, c.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		responses.WriteError(ctx, c.logg, w, pkgerrors.New(pkgerrors.CodeSignature, "missing Stripe-Signature header"))
		return
	}

	event, err := webhook.ConstructEvent(body, signature, c.signingSecret)
	if err != nil {
		responses.WriteError(ctx, c.logg, w, pkgerrors.Wrap(pkgerrors.CodeSignature, err, "verify webhook signature"))
		return
	}

	if c.logg != nil {
		ctx = c.logg.WithField(ctx, "stripe_event_id", event.ID)
	}

	alreadyProcessed, err := c.guard.CheckAndMark(ctx, event.ID)
	if err != nil {
		// Redis being down must not drop payment notifications; fall
		// through and rely on the reconciler's own idempotency.
		if c.logg != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "webhook idempotency check failed")
		}
	} else if alreadyProcessed {
		responses.WriteSuccess(w, nil)
		return
	}

	if err := c.svc.HandleEvent(ctx, &event); err != nil {
		if delErr := c.guard.Delete(ctx, event.ID); delErr != nil && c.logg != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", delErr.Error()), "failed to release idempotency mark")
		}
		responses.WriteError(ctx, c.logg, w, err)
		return
	}

	responses.WriteSuccess(w, nil)
}
