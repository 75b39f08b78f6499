package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/commercebridge/ideal-gateway/internal/paymentmethods"
	"github.com/commercebridge/ideal-gateway/internal/payments"
	"github.com/commercebridge/ideal-gateway/pkg/db/models"
	"github.com/commercebridge/ideal-gateway/pkg/enums"
	pkgerrors "github.com/commercebridge/ideal-gateway/pkg/errors"
	"github.com/commercebridge/ideal-gateway/pkg/logger"
	"github.com/commercebridge/ideal-gateway/pkg/metrics"
	"github.com/commercebridge/ideal-gateway/pkg/outbox"
	"github.com/commercebridge/ideal-gateway/pkg/outbox/payloads"
)

// Outcome reports what a reconciliation did. The entry points race (browser
// return, webhook, decoupled confirmation) so "already reconciled" is a
// success, not an error.
type Outcome string

const (
	OutcomeApplied           Outcome = "applied"
	OutcomeAlreadyReconciled Outcome = "already_reconciled"
	OutcomeIgnored           Outcome = "ignored"
)

// Service maps Stripe intent statuses onto the local payment state machine.
type Service interface {
	ReconcileSucceeded(ctx context.Context, intent *stripe.PaymentIntent) (Outcome, error)
	ReconcileFailed(ctx context.Context, intent *stripe.PaymentIntent) (Outcome, error)
	FindByIntent(ctx context.Context, intentID, clientSecret string) (*models.Payment, *models.Order, error)
}

// ServiceParams groups dependencies for the reconciler.
type ServiceParams struct {
	Repo              payments.Repository
	Methods           paymentmethods.Service
	Outbox            eventEmitter
	TransactionRunner txRunner
	Logger            *logger.Logger
	Metrics           *metrics.PaymentMetrics
	Now               func() time.Time
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo     payments.Repository
	methods  paymentmethods.Service
	outbox   eventEmitter
	txRunner txRunner
	logg     *logger.Logger
	metrics  *metrics.PaymentMetrics
	now      func() time.Time
}

// NewService constructs a reconciler.
func NewService(params ServiceParams) (*service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repo required")
	}
	if params.Methods == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment method service required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}

	return &service{
		repo:     params.Repo,
		methods:  params.Methods,
		outbox:   params.Outbox,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      params.Now,
	}, nil
}

// IsIdealIntent reports whether the intent advertises the iDEAL method type.
// Everything else passing through the account is not ours to reconcile.
func IsIdealIntent(intent *stripe.PaymentIntent) bool {
	if intent == nil {
		return false
	}
	for _, methodType := range intent.PaymentMethodTypes {
		if methodType == "ideal" {
			return true
		}
	}
	return false
}

// ReconcileSucceeded captures the payment a succeeded intent settles. The
// whole mutation runs inside one transaction with the payment row locked, so
// concurrent entry points serialize and the second caller observes the
// completed state.
func (s *service) ReconcileSucceeded(ctx context.Context, intent *stripe.PaymentIntent) (Outcome, error) {
	started := s.now()
	outcome, err := s.reconcileSucceeded(ctx, intent)
	s.observe("capture", string(outcome), started, err)
	return outcome, err
}

func (s *service) reconcileSucceeded(ctx context.Context, intent *stripe.PaymentIntent) (Outcome, error) {
	if !IsIdealIntent(intent) {
		return OutcomeIgnored, nil
	}
	ctx = s.logCtx(ctx, intent.ID)

	outcome := OutcomeApplied
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		payment, order, err := s.lockPayment(ctx, txRepo, intent)
		if err != nil {
			return err
		}

		switch payment.State {
		case enums.PaymentStateCompleted,
			enums.PaymentStatePartiallyRefunded,
			enums.PaymentStateRefunded:
			outcome = OutcomeAlreadyReconciled
			return nil
		}

		next, err := payments.ApplyTransition(payment.State, payments.TransitionCapture)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		updates := map[string]any{
			"state":        next,
			"remote_state": string(intent.Status),
			"completed_at": now,
		}
		if payment.AuthorizedAt == nil {
			updates["authorized_at"] = now
		}

		method, err := s.methods.EnsureForOrder(ctx, tx, order, intent)
		if err != nil {
			return err
		}
		orderUpdates := map[string]any{"paid_at": now}
		if method != nil {
			updates["payment_method_id"] = method.ID
			if order.PaymentMethodID == nil {
				orderUpdates["payment_method_id"] = method.ID
			}
		}

		if err := txRepo.UpdatePayment(ctx, payment.ID, updates); err != nil {
			return err
		}
		if err := txRepo.UpdateOrder(ctx, order.ID, orderUpdates); err != nil {
			return err
		}

		payment.State = next
		payment.CompletedAt = &now
		if payment.AuthorizedAt == nil {
			payment.AuthorizedAt = &now
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventPaymentSucceeded,
			AggregateType: enums.OutboxAggregatePayment,
			AggregateID:   payment.ID,
			Data:          eventPayload(payment, intent),
		})
	})
	if err != nil {
		return "", err
	}

	if s.logg != nil {
		if outcome == OutcomeApplied {
			s.logg.Info(ctx, "payment captured")
		} else {
			s.logg.Info(ctx, "intent already reconciled")
		}
	}
	return outcome, nil
}

// ReconcileFailed voids the authorization a failed or canceled intent leaves
// behind.
func (s *service) ReconcileFailed(ctx context.Context, intent *stripe.PaymentIntent) (Outcome, error) {
	started := s.now()
	outcome, err := s.reconcileFailed(ctx, intent)
	s.observe("void", string(outcome), started, err)
	return outcome, err
}

func (s *service) reconcileFailed(ctx context.Context, intent *stripe.PaymentIntent) (Outcome, error) {
	if !IsIdealIntent(intent) {
		return OutcomeIgnored, nil
	}
	ctx = s.logCtx(ctx, intent.ID)

	outcome := OutcomeApplied
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		payment, _, err := s.lockPayment(ctx, txRepo, intent)
		if err != nil {
			return err
		}

		if payment.State == enums.PaymentStateAuthorizationVoid {
			outcome = OutcomeAlreadyReconciled
			return nil
		}

		next, err := payments.ApplyTransition(payment.State, payments.TransitionVoid)
		if err != nil {
			return err
		}

		if err := txRepo.UpdatePayment(ctx, payment.ID, map[string]any{
			"state":        next,
			"remote_state": string(intent.Status),
		}); err != nil {
			return err
		}

		payment.State = next

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventPaymentFailed,
			AggregateType: enums.OutboxAggregatePayment,
			AggregateID:   payment.ID,
			Data:          eventPayload(payment, intent),
		})
	})
	if err != nil {
		return "", err
	}

	if s.logg != nil && outcome == OutcomeApplied {
		s.logg.Warn(ctx, "authorization voided after failed intent")
	}
	return outcome, nil
}

// FindByIntent resolves the payment an intent reference belongs to. The match
// requires both the stored remote id and the order's client secret, so a
// caller cannot attach someone else's intent to an order.
func (s *service) FindByIntent(ctx context.Context, intentID, clientSecret string) (*models.Payment, *models.Order, error) {
	if intentID == "" || clientSecret == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodePaymentLookup, "intent reference incomplete")
	}

	payment, err := s.repo.FindPaymentByRemoteID(ctx, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodePaymentLookup, "no payment for intent")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	order, err := s.repo.FindOrderByID(ctx, payment.OrderID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.IntentSecret == nil || *order.IntentSecret != clientSecret {
		return nil, nil, pkgerrors.New(pkgerrors.CodePaymentLookup, "client secret mismatch")
	}
	return payment, order, nil
}

func (s *service) lockPayment(ctx context.Context, txRepo payments.Repository, intent *stripe.PaymentIntent) (*models.Payment, *models.Order, error) {
	payment, err := txRepo.FindPaymentByRemoteIDForUpdate(ctx, intent.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodePaymentLookup, "no payment for intent")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	order, err := txRepo.FindOrderByID(ctx, payment.OrderID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.IntentSecret == nil || *order.IntentSecret != intent.ClientSecret {
		return nil, nil, pkgerrors.New(pkgerrors.CodePaymentLookup, "client secret mismatch")
	}
	return payment, order, nil
}

func (s *service) logCtx(ctx context.Context, intentID string) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithIntentID(ctx, intentID)
}

func (s *service) observe(operation, outcome string, started time.Time, err error) {
	if s.metrics == nil {
		return
	}
	result := outcome
	if err != nil {
		result = "error"
		if pkgerrors.HasCode(err, pkgerrors.CodePaymentLookup) {
			result = "not_found"
		}
	}
	s.metrics.ObserveReconciliation(result)
	s.metrics.ObserveReconcileDuration(operation, s.now().Sub(started))
}

func eventPayload(payment *models.Payment, intent *stripe.PaymentIntent) payloads.PaymentEvent {
	event := payloads.PaymentEvent{
		PaymentID:     payment.ID,
		OrderID:       payment.OrderID,
		IntentID:      intent.ID,
		State:         payment.State.String(),
		AmountCents:   payment.AmountCents,
		RefundedCents: payment.RefundedCents,
		Currency:      payment.Currency.String(),
	}
	if payment.CompletedAt != nil {
		completed := payment.CompletedAt.UTC()
		event.CompletedAt = &completed
	}
	return event
}
