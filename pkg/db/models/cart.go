package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/medlinkhq/medsupply-backend/pkg/enums"
)

// Cart is the mutable pre-order working set. At most one active cart per
// pharmacy; conversion to an order is irreversible.
type Cart struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	PharmacyID        uuid.UUID        `gorm:"column:pharmacy_id;type:uuid;not null;index"`
	Status            enums.CartStatus `gorm:"column:status;not null;default:'active'"`
	DiscountCode      *string          `gorm:"column:discount_code"`
	ShippingAddressID *uuid.UUID       `gorm:"column:shipping_address_id;type:uuid"`
	BillingAddressID  *uuid.UUID       `gorm:"column:billing_address_id;type:uuid"`
	OrderID           *uuid.UUID       `gorm:"column:order_id;type:uuid"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`

	Items []CartItem `gorm:"foreignKey:CartID"`
}
