package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/commercebridge/ideal-gateway/pkg/db/models"
	"github.com/commercebridge/ideal-gateway/pkg/enums"
	pkgerrors "github.com/commercebridge/ideal-gateway/pkg/errors"
	"github.com/commercebridge/ideal-gateway/pkg/logger"
	"github.com/commercebridge/ideal-gateway/pkg/outbox"
	"github.com/commercebridge/ideal-gateway/pkg/outbox/payloads"
)

// Service exposes the merchant-side payment operations.
type Service interface {
	Refund(ctx context.Context, paymentID uuid.UUID, input RefundInput) (*models.Payment, error)
	Void(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
}

// RefundInput carries the optional partial amount. A nil amount refunds the
// remaining balance.
type RefundInput struct {
	AmountCents *int64
}

// ServiceParams groups dependencies for the payments service.
type ServiceParams struct {
	Repo              Repository
	Gateway           gatewayClient
	Outbox            eventEmitter
	TransactionRunner txRunner
	Logger            *logger.Logger
}

type gatewayClient interface {
	RetrieveIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	CancelIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	CreateRefund(ctx context.Context, intentID string, amountCents int64, idempotencyKey string) (*stripe.Refund, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo     Repository
	gateway  gatewayClient
	outbox   eventEmitter
	txRunner txRunner
	logg     *logger.Logger
}

// intentCancelable lists the Stripe statuses an intent can still be canceled
// from. Anything past these has settled or is settling and must be refunded
// instead.
var intentCancelable = map[stripe.PaymentIntentStatus]bool{
	stripe.PaymentIntentStatusRequiresPaymentMethod: true,
	stripe.PaymentIntentStatusRequiresConfirmation:  true,
	stripe.PaymentIntentStatusRequiresAction:        true,
	stripe.PaymentIntentStatusRequiresCapture:       true,
}

// NewService constructs a payments service.
func NewService(params ServiceParams) (*service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repo required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway client required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}

	return &service{
		repo:     params.Repo,
		gateway:  params.Gateway,
		outbox:   params.Outbox,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
	}, nil
}

// Refund submits a refund to Stripe and, only after Stripe accepts it,
// records the new balance locally. The local row is never mutated when the
// remote call fails.
func (s *service) Refund(ctx context.Context, paymentID uuid.UUID, input RefundInput) (*models.Payment, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}

	payment, err := s.repo.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, paymentLoadError(err)
	}
	if err := validateRefundable(payment); err != nil {
		return nil, err
	}

	amount := payment.RemainingCents()
	if input.AmountCents != nil {
		amount = *input.AmountCents
	}
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if amount > payment.RemainingCents() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds remaining balance")
	}
	if payment.RemoteID == nil || *payment.RemoteID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "payment has no remote intent")
	}

	if s.logg != nil {
		ctx = s.logg.WithPaymentID(ctx, payment.ID.String())
		ctx = s.logg.WithIntentID(ctx, *payment.RemoteID)
	}

	if _, err := s.gateway.CreateRefund(ctx, *payment.RemoteID, amount, uuid.NewString()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "submit refund")
	}

	var updated *models.Payment
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		locked, err := txRepo.FindPaymentByIDForUpdate(ctx, payment.ID)
		if err != nil {
			return err
		}
		if err := validateRefundable(locked); err != nil {
			return err
		}

		refunded := locked.RefundedCents + amount
		if refunded > locked.AmountCents {
			refunded = locked.AmountCents
		}
		transition := TransitionRefundPartial
		if refunded == locked.AmountCents {
			transition = TransitionRefundFull
		}
		next, err := ApplyTransition(locked.State, transition)
		if err != nil {
			return err
		}

		if err := txRepo.UpdatePayment(ctx, locked.ID, map[string]any{
			"state":          next,
			"refunded_cents": refunded,
		}); err != nil {
			return err
		}

		locked.State = next
		locked.RefundedCents = refunded
		updated = locked

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventPaymentRefunded,
			AggregateType: enums.OutboxAggregatePayment,
			AggregateID:   locked.ID,
			Data:          paymentEventPayload(locked),
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist refund")
	}

	if s.logg != nil {
		s.logg.Info(ctx, "refund recorded")
	}
	return updated, nil
}

// Void cancels an authorized intent remotely and closes the payment locally.
func (s *service) Void(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}

	payment, err := s.repo.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, paymentLoadError(err)
	}
	if !CanTransition(payment.State, TransitionVoid) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "only authorized payments can be voided")
	}
	if payment.RemoteID == nil || *payment.RemoteID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "payment has no remote intent")
	}

	if s.logg != nil {
		ctx = s.logg.WithPaymentID(ctx, payment.ID.String())
		ctx = s.logg.WithIntentID(ctx, *payment.RemoteID)
	}

	intent, err := s.gateway.RetrieveIntent(ctx, *payment.RemoteID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "retrieve intent")
	}
	switch {
	case intent.Status == stripe.PaymentIntentStatusCanceled:
		// Already canceled remotely, only the local row needs closing.
	case intentCancelable[intent.Status]:
		if _, err := s.gateway.CancelIntent(ctx, *payment.RemoteID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "cancel intent")
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "intent has settled and can no longer be voided")
	}

	var updated *models.Payment
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		locked, err := txRepo.FindPaymentByIDForUpdate(ctx, payment.ID)
		if err != nil {
			return err
		}
		next, err := ApplyTransition(locked.State, TransitionVoid)
		if err != nil {
			return err
		}

		if err := txRepo.UpdatePayment(ctx, locked.ID, map[string]any{
			"state":        next,
			"remote_state": string(stripe.PaymentIntentStatusCanceled),
		}); err != nil {
			return err
		}

		locked.State = next
		updated = locked

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventPaymentVoided,
			AggregateType: enums.OutboxAggregatePayment,
			AggregateID:   locked.ID,
			Data:          paymentEventPayload(locked),
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist void")
	}

	if s.logg != nil {
		s.logg.Info(ctx, "authorization voided")
	}
	return updated, nil
}

func validateRefundable(payment *models.Payment) error {
	switch payment.State {
	case enums.PaymentStateCompleted, enums.PaymentStatePartiallyRefunded:
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeInvalidState, "only completed payments can be refunded")
	}
}

func paymentLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
}

func paymentEventPayload(payment *models.Payment) payloads.PaymentEvent {
	event := payloads.PaymentEvent{
		PaymentID:     payment.ID,
		OrderID:       payment.OrderID,
		State:         payment.State.String(),
		AmountCents:   payment.AmountCents,
		RefundedCents: payment.RefundedCents,
		Currency:      payment.Currency.String(),
	}
	if payment.RemoteID != nil {
		event.IntentID = *payment.RemoteID
	}
	if payment.CompletedAt != nil {
		completed := payment.CompletedAt.UTC().Truncate(time.Millisecond)
		event.CompletedAt = &completed
	}
	return event
}
