package paymentmethods

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/commercebridge/ideal-gateway/internal/payments"
	"github.com/commercebridge/ideal-gateway/pkg/db/models"
	"github.com/commercebridge/ideal-gateway/pkg/enums"
)

func TestServiceEnsureForOrderCreatesMethod(t *testing.T) {
	repo := &stubRepo{}
	svc, err := NewService(ServiceParams{Repo: repo})
	if err != nil {
		t.Fatalf("setup error: %v", err)
	}

	order := &models.Order{ID: uuid.New(), BillingProfile: []byte(`{"name":"Jan Jansen"}`)}
	intent := &stripe.PaymentIntent{
		ID:            "pi_123",
		PaymentMethod: &stripe.PaymentMethod{ID: "pm_123"},
	}

	method, err := svc.EnsureForOrder(context.Background(), nil, order, intent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method == nil {
		t.Fatal("expected a method")
	}
	if method.RemoteID != "pm_123" {
		t.Fatalf("expected remote id pm_123, got %s", method.RemoteID)
	}
	if method.Reusable {
		t.Fatal("iDEAL methods must not be marked reusable")
	}
	if method.Type != enums.PaymentMethodTypeIdeal {
		t.Fatalf("expected stripe_ideal type, got %s", method.Type)
	}
	if string(method.BillingProfile) != `{"name":"Jan Jansen"}` {
		t.Fatalf("expected billing profile copied, got %s", method.BillingProfile)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one created method, got %d", len(repo.created))
	}
}

func TestServiceEnsureForOrderReturnsExisting(t *testing.T) {
	existing := &models.PaymentMethod{
		ID:       uuid.New(),
		RemoteID: "pm_existing",
		Type:     enums.PaymentMethodTypeIdeal,
	}
	repo := &stubRepo{existing: existing}
	svc, _ := NewService(ServiceParams{Repo: repo})

	intent := &stripe.PaymentIntent{
		ID:            "pi_123",
		PaymentMethod: &stripe.PaymentMethod{ID: "pm_existing"},
	}
	method, err := svc.EnsureForOrder(context.Background(), nil, &models.Order{ID: uuid.New()}, intent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method.ID != existing.ID {
		t.Fatal("expected the existing method to be returned")
	}
	if len(repo.created) != 0 {
		t.Fatal("expected no new method created")
	}
}

func TestServiceEnsureForOrderNoMethodOnIntent(t *testing.T) {
	repo := &stubRepo{}
	svc, _ := NewService(ServiceParams{Repo: repo})

	method, err := svc.EnsureForOrder(context.Background(), nil, &models.Order{ID: uuid.New()}, &stripe.PaymentIntent{ID: "pi_123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != nil {
		t.Fatal("expected nil when the intent has no method reference")
	}
}

type stubRepo struct {
	existing *models.PaymentMethod
	created  []*models.PaymentMethod
}

func (s *stubRepo) WithTx(tx *gorm.DB) payments.Repository {
	return s
}

func (s *stubRepo) CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	return payment, nil
}

func (s *stubRepo) FindPaymentByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) FindPaymentByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) FindPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) FindPaymentByRemoteID(ctx context.Context, remoteID string) (*models.Payment, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) FindPaymentByRemoteIDForUpdate(ctx context.Context, remoteID string) (*models.Payment, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) UpdatePayment(ctx context.Context, paymentID uuid.UUID, updates map[string]any) error {
	return nil
}

func (s *stubRepo) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return nil
}

func (s *stubRepo) CreatePaymentMethod(ctx context.Context, method *models.PaymentMethod) (*models.PaymentMethod, error) {
	s.created = append(s.created, method)
	return method, nil
}

func (s *stubRepo) FindPaymentMethodByRemoteID(ctx context.Context, remoteID string) (*models.PaymentMethod, error) {
	if s.existing != nil && s.existing.RemoteID == remoteID {
		return s.existing, nil
	}
	for _, method := range s.created {
		if method.RemoteID == remoteID {
			return method, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}
