package paymentmethods

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/commercebridge/ideal-gateway/internal/payments"
	"github.com/commercebridge/ideal-gateway/pkg/db"
	"github.com/commercebridge/ideal-gateway/pkg/db/models"
	"github.com/commercebridge/ideal-gateway/pkg/enums"
	pkgerrors "github.com/commercebridge/ideal-gateway/pkg/errors"
)

// Service persists the single-use iDEAL method a succeeded intent was
// confirmed with.
type Service interface {
	EnsureForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, intent *stripe.PaymentIntent) (*models.PaymentMethod, error)
}

// ServiceParams groups dependencies for the payment method service.
type ServiceParams struct {
	Repo payments.Repository
}

type service struct {
	repo payments.Repository
}

// NewService constructs a payment method service.
func NewService(params ServiceParams) (*service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repo required")
	}
	return &service{repo: params.Repo}, nil
}

// EnsureForOrder records the intent's payment method locally if it is not
// already known. iDEAL methods are single use, so the row is bookkeeping for
// the order rather than a reusable token. Returns nil when the intent carries
// no method reference.
func (s *service) EnsureForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, intent *stripe.PaymentIntent) (*models.PaymentMethod, error) {
	if order == nil || intent == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order and intent required")
	}
	if intent.PaymentMethod == nil || intent.PaymentMethod.ID == "" {
		return nil, nil
	}
	remoteID := intent.PaymentMethod.ID

	repo := s.repo.WithTx(tx)

	existing, err := repo.FindPaymentMethodByRemoteID(ctx, remoteID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	method := &models.PaymentMethod{
		ID:             uuid.New(),
		OrderID:        order.ID,
		RemoteID:       remoteID,
		Type:           enums.PaymentMethodTypeIdeal,
		Reusable:       false,
		BillingProfile: order.BillingProfile,
	}
	created, err := repo.CreatePaymentMethod(ctx, method)
	if err != nil {
		// A concurrent entry point may have inserted the same method.
		if db.IsUniqueViolation(err, "ux_payment_methods_remote_id") {
			return repo.FindPaymentMethodByRemoteID(ctx, remoteID)
		}
		return nil, err
	}
	return created, nil
}
