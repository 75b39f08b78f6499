package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/commercebridge/ideal-gateway/pkg/db/models"
)

// Repository defines persistence operations for the payment tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	FindPaymentByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindPaymentByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindPaymentByRemoteID(ctx context.Context, remoteID string) (*models.Payment, error)
	FindPaymentByRemoteIDForUpdate(ctx context.Context, remoteID string) (*models.Payment, error)
	UpdatePayment(ctx context.Context, paymentID uuid.UUID, updates map[string]any) error

	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error

	CreatePaymentMethod(ctx context.Context, method *models.PaymentMethod) (*models.PaymentMethod, error)
	FindPaymentMethodByRemoteID(ctx context.Context, remoteID string) (*models.PaymentMethod, error)
}
