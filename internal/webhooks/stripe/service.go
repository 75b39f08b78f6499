package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	"github.com/commercebridge/ideal-gateway/internal/reconciler"
	"github.com/commercebridge/ideal-gateway/pkg/db/models"
	pkgerrors "github.com/commercebridge/ideal-gateway/pkg/errors"
	"github.com/commercebridge/ideal-gateway/pkg/logger"
	"github.com/commercebridge/ideal-gateway/pkg/metrics"
)

const (
	outcomeReconciled = "reconciled"
	outcomeAlready    = "already_reconciled"
	outcomeIgnored    = "ignored"
	outcomeNotFound   = "not_found"
	outcomeError      = "error"
)

// ServiceParams groups dependencies for the webhook service.
type ServiceParams struct {
	Reconciler reconciler.Service
	Events     EventStore
	Logger     *logger.Logger
	Metrics    *metrics.PaymentMetrics
}

// Service routes verified Stripe events into the reconciler.
//
// Error contract: a payment-lookup miss propagates so the endpoint can 400
// and Stripe redelivers; any other reconciliation failure is logged and
// swallowed so the delivery still acks. Redelivery is the only retry
// mechanism this service relies on.
type Service struct {
	reconciler reconciler.Service
	events     EventStore
	logg       *logger.Logger
	metrics    *metrics.PaymentMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event store required")
	}
	return &Service{
		reconciler: params.Reconciler,
		events:     params.Events,
		logg:       params.Logger,
		metrics:    params.Metrics,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:
	default:
		s.observe(event, outcomeIgnored)
		return nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	if !reconciler.IsIdealIntent(&intent) {
		s.observe(event, outcomeIgnored)
		return nil
	}

	ctx = s.logCtx(ctx, event, intent.ID)
	record := s.recordEvent(ctx, event)

	var result reconciler.Outcome
	var err error
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		result, err = s.reconciler.ReconcileSucceeded(ctx, &intent)
	default:
		result, err = s.reconciler.ReconcileFailed(ctx, &intent)
	}

	outcome := outcomeFromResult(result, err)
	s.observe(event, outcome)
	s.markProcessed(ctx, record, outcome)

	if err == nil {
		return nil
	}
	if pkgerrors.HasCode(err, pkgerrors.CodePaymentLookup) {
		// Surfaced as 400 so Stripe redelivers once the payment row exists.
		return err
	}

	// Documented trade-off: the delivery still acks, the failure is only
	// visible through logs and metrics.
	if s.logg != nil {
		s.logg.Error(ctx, "webhook reconciliation failed", err)
	}
	return nil
}

// recordEvent writes the audit row. Failures are logged, never fatal for the
// delivery.
func (s *Service) recordEvent(ctx context.Context, event *stripe.Event) *models.WebhookEvent {
	record := &models.WebhookEvent{
		StripeEventID: event.ID,
		EventType:     string(event.Type),
		Payload:       json.RawMessage(event.Data.Raw),
	}
	if err := s.events.RecordEvent(ctx, record); err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "webhook event could not be recorded")
		}
		return nil
	}
	return record
}

func (s *Service) markProcessed(ctx context.Context, record *models.WebhookEvent, outcome string) {
	if record == nil {
		return
	}
	if err := s.events.MarkProcessed(ctx, record.ID, outcome); err != nil && s.logg != nil {
		s.logg.Warn(ctx, "webhook event outcome could not be stored")
	}
}

func (s *Service) observe(event *stripe.Event, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveWebhook(string(event.Type), outcome)
	}
}

func (s *Service) logCtx(ctx context.Context, event *stripe.Event, intentID string) context.Context {
	if s.logg == nil {
		return ctx
	}
	ctx = s.logg.WithField(ctx, "stripe_event_id", event.ID)
	return s.logg.WithIntentID(ctx, intentID)
}

func outcomeFromResult(result reconciler.Outcome, err error) string {
	switch {
	case pkgerrors.HasCode(err, pkgerrors.CodePaymentLookup):
		return outcomeNotFound
	case err != nil:
		return outcomeError
	case result == reconciler.OutcomeAlreadyReconciled:
		return outcomeAlready
	case result == reconciler.OutcomeIgnored:
		return outcomeIgnored
	default:
		return outcomeReconciled
	}
}
