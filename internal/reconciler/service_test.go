package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/commercebridge/ideal-gateway/internal/payments"
	"github.com/commercebridge/ideal-gateway/pkg/db/models"
	"github.com/commercebridge/ideal-gateway/pkg/enums"
	pkgerrors "github.com/commercebridge/ideal-gateway/pkg/errors"
	"github.com/commercebridge/ideal-gateway/pkg/outbox"
)

var testClock = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

type fixture struct {
	repo    *stubRepo
	methods *stubMethods
	emitter *stubEmitter
	svc     Service
}

func newFixture(t *testing.T, payment *models.Payment, order *models.Order) *fixture {
	t.Helper()

	repo := &stubRepo{payment: payment, order: order}
	methods := &stubMethods{}
	emitter := &stubEmitter{}
	svc, err := NewService(ServiceParams{
		Repo:              repo,
		Methods:           methods,
		Outbox:            emitter,
		TransactionRunner: &stubTxRunner{},
		Now:               func() time.Time { return testClock },
	})
	if err != nil {
		t.Fatalf("setup error: %v", err)
	}
	return &fixture{repo: repo, methods: methods, emitter: emitter, svc: svc}
}

func authorizedPayment() (*models.Payment, *models.Order) {
	intentID := "pi_123"
	secret := "pi_123_secret_abc"
	order := &models.Order{
		ID:           uuid.New(),
		TotalCents:   2500,
		Currency:     enums.CurrencyEUR,
		IntentID:     &intentID,
		IntentSecret: &secret,
	}
	payment := &models.Payment{
		ID:          uuid.New(),
		OrderID:     order.ID,
		RemoteID:    &intentID,
		State:       enums.PaymentStateAuthorization,
		AmountCents: 2500,
		Currency:    enums.CurrencyEUR,
	}
	return payment, order
}

func idealIntent(status stripe.PaymentIntentStatus) *stripe.PaymentIntent {
	return &stripe.PaymentIntent{
		ID:                 "pi_123",
		ClientSecret:       "pi_123_secret_abc",
		Status:             status,
		PaymentMethodTypes: []string{"ideal"},
		PaymentMethod:      &stripe.PaymentMethod{ID: "pm_456"},
	}
}

func TestReconcileSucceededCapturesPayment(t *testing.T) {
	payment, order := authorizedPayment()
	f := newFixture(t, payment, order)

	outcome, err := f.svc.ReconcileSucceeded(context.Background(), idealIntent(stripe.PaymentIntentStatusSucceeded))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", outcome)
	}

	if len(f.repo.paymentUpdates) != 1 {
		t.Fatalf("expected one payment update, got %d", len(f.repo.paymentUpdates))
	}
	updates := f.repo.paymentUpdates[0]
	if updates["state"] != enums.PaymentStateCompleted {
		t.Fatalf("expected completed state, got %v", updates["state"])
	}
	if updates["completed_at"] != testClock {
		t.Fatalf("expected completion stamped with injected clock, got %v", updates["completed_at"])
	}
	if updates["authorized_at"] != testClock {
		t.Fatalf("expected authorization stamped, got %v", updates["authorized_at"])
	}

	if len(f.repo.orderUpdates) != 1 {
		t.Fatalf("expected one order update, got %d", len(f.repo.orderUpdates))
	}
	if f.repo.orderUpdates[0]["paid_at"] != testClock {
		t.Fatalf("expected order paid_at stamped, got %v", f.repo.orderUpdates[0]["paid_at"])
	}

	if f.methods.calls != 1 {
		t.Fatalf("expected payment method ensured once, got %d", f.methods.calls)
	}
	if len(f.emitter.events) != 1 || f.emitter.events[0].EventType != enums.OutboxEventPaymentSucceeded {
		t.Fatalf("expected payment.succeeded event, got %+v", f.emitter.events)
	}
}

func TestReconcileSucceededIgnoresNonIdeal(t *testing.T) {
	payment, order := authorizedPayment()
	f := newFixture(t, payment, order)

	intent := idealIntent(stripe.PaymentIntentStatusSucceeded)
	intent.PaymentMethodTypes = []string{"card"}

	outcome, err := f.svc.ReconcileSucceeded(context.Background(), intent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeIgnored {
		t.Fatalf("expected ignored, got %s", outcome)
	}
	if len(f.repo.paymentUpdates) != 0 || len(f.emitter.events) != 0 {
		t.Fatal("expected no side effects for a non-ideal intent")
	}
}

func TestReconcileSucceededUnknownIntent(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.svc.ReconcileSucceeded(context.Background(), idealIntent(stripe.PaymentIntentStatusSucceeded))
	if !pkgerrors.HasCode(err, pkgerrors.CodePaymentLookup) {
		t.Fatalf("expected payment lookup error, got %v", err)
	}
}

func TestReconcileSucceededSecretMismatch(t *testing.T) {
	payment, order := authorizedPayment()
	wrong := "pi_123_secret_other"
	order.IntentSecret = &wrong
	f := newFixture(t, payment, order)

	_, err := f.svc.ReconcileSucceeded(context.Background(), idealIntent(stripe.PaymentIntentStatusSucceeded))
	if !pkgerrors.HasCode(err, pkgerrors.CodePaymentLookup) {
		t.Fatalf("expected payment lookup error, got %v", err)
	}
	if len(f.repo.paymentUpdates) != 0 {
		t.Fatal("expected no mutation on a secret mismatch")
	}
}

func TestReconcileSucceededAlreadyCompleted(t *testing.T) {
	payment, order := authorizedPayment()
	payment.State = enums.PaymentStateCompleted
	f := newFixture(t, payment, order)

	outcome, err := f.svc.ReconcileSucceeded(context.Background(), idealIntent(stripe.PaymentIntentStatusSucceeded))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeAlreadyReconciled {
		t.Fatalf("expected already reconciled, got %s", outcome)
	}
	if len(f.repo.paymentUpdates) != 0 || len(f.emitter.events) != 0 {
		t.Fatal("expected no side effects for a repeat reconciliation")
	}
}

func TestReconcileFailedVoidsAuthorization(t *testing.T) {
	payment, order := authorizedPayment()
	f := newFixture(t, payment, order)

	outcome, err := f.svc.ReconcileFailed(context.Background(), idealIntent(stripe.PaymentIntentStatusCanceled))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", outcome)
	}
	if len(f.repo.paymentUpdates) != 1 {
		t.Fatalf("expected one payment update, got %d", len(f.repo.paymentUpdates))
	}
	if f.repo.paymentUpdates[0]["state"] != enums.PaymentStateAuthorizationVoid {
		t.Fatalf("expected authorization_voided, got %v", f.repo.paymentUpdates[0]["state"])
	}
	if len(f.emitter.events) != 1 || f.emitter.events[0].EventType != enums.OutboxEventPaymentFailed {
		t.Fatalf("expected payment.failed event, got %+v", f.emitter.events)
	}
}

func TestReconcileFailedAlreadyVoided(t *testing.T) {
	payment, order := authorizedPayment()
	payment.State = enums.PaymentStateAuthorizationVoid
	f := newFixture(t, payment, order)

	outcome, err := f.svc.ReconcileFailed(context.Background(), idealIntent(stripe.PaymentIntentStatusCanceled))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeAlreadyReconciled {
		t.Fatalf("expected already reconciled, got %s", outcome)
	}
	if len(f.repo.paymentUpdates) != 0 || len(f.emitter.events) != 0 {
		t.Fatal("expected no side effects for a repeat void")
	}
}

func TestFindByIntent(t *testing.T) {
	payment, order := authorizedPayment()
	f := newFixture(t, payment, order)

	found, foundOrder, err := f.svc.FindByIntent(context.Background(), "pi_123", "pi_123_secret_abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.ID != payment.ID || foundOrder.ID != order.ID {
		t.Fatal("expected the stored payment and order")
	}

	_, _, err = f.svc.FindByIntent(context.Background(), "pi_123", "pi_123_secret_wrong")
	if !pkgerrors.HasCode(err, pkgerrors.CodePaymentLookup) {
		t.Fatalf("expected payment lookup error, got %v", err)
	}

	_, _, err = f.svc.FindByIntent(context.Background(), "", "")
	if !pkgerrors.HasCode(err, pkgerrors.CodePaymentLookup) {
		t.Fatalf("expected payment lookup error, got %v", err)
	}
}

type stubRepo struct {
	payment        *models.Payment
	order          *models.Order
	paymentUpdates []map[string]any
	orderUpdates   []map[string]any
	methods        []*models.PaymentMethod
}

func (s *stubRepo) WithTx(tx *gorm.DB) payments.Repository {
	return s
}

func (s *stubRepo) CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	s.payment = payment
	return payment, nil
}

func (s *stubRepo) FindPaymentByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	if s.payment == nil || s.payment.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.payment, nil
}

func (s *stubRepo) FindPaymentByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return s.FindPaymentByID(ctx, id)
}

func (s *stubRepo) FindPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	if s.payment == nil || s.payment.OrderID != orderID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.payment, nil
}

func (s *stubRepo) FindPaymentByRemoteID(ctx context.Context, remoteID string) (*models.Payment, error) {
	if s.payment == nil || s.payment.RemoteID == nil || *s.payment.RemoteID != remoteID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.payment, nil
}

func (s *stubRepo) FindPaymentByRemoteIDForUpdate(ctx context.Context, remoteID string) (*models.Payment, error) {
	return s.FindPaymentByRemoteID(ctx, remoteID)
}

func (s *stubRepo) UpdatePayment(ctx context.Context, paymentID uuid.UUID, updates map[string]any) error {
	s.paymentUpdates = append(s.paymentUpdates, updates)
	return nil
}

func (s *stubRepo) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.order, nil
}

func (s *stubRepo) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	s.orderUpdates = append(s.orderUpdates, updates)
	return nil
}

func (s *stubRepo) CreatePaymentMethod(ctx context.Context, method *models.PaymentMethod) (*models.PaymentMethod, error) {
	s.methods = append(s.methods, method)
	return method, nil
}

func (s *stubRepo) FindPaymentMethodByRemoteID(ctx context.Context, remoteID string) (*models.PaymentMethod, error) {
	for _, method := range s.methods {
		if method.RemoteID == remoteID {
			return method, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type stubMethods struct {
	calls  int
	method *models.PaymentMethod
	err    error
}

func (s *stubMethods) EnsureForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, intent *stripe.PaymentIntent) (*models.PaymentMethod, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.method == nil && intent.PaymentMethod != nil {
		s.method = &models.PaymentMethod{
			ID:       uuid.New(),
			OrderID:  order.ID,
			RemoteID: intent.PaymentMethod.ID,
			Type:     enums.PaymentMethodTypeIdeal,
		}
	}
	return s.method, nil
}

type stubEmitter struct {
	events []outbox.DomainEvent
}

func (s *stubEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
