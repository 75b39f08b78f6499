package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/commercebridge/ideal-gateway/pkg/enums"
)

// PaymentMethod records the single-use iDEAL method captured by a succeeded
// intent. iDEAL tokens cannot be charged again, so Reusable stays false.
type PaymentMethod struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	RemoteID       string                  `gorm:"column:remote_id;not null;uniqueIndex:ux_payment_methods_remote_id"`
	Type           enums.PaymentMethodType `gorm:"column:type;not null;default:'stripe_ideal'"`
	Reusable       bool                    `gorm:"column:reusable;not null;default:false"`
	BillingProfile json.RawMessage         `gorm:"column:billing_profile;type:jsonb"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
