package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medlinkhq/medsupply-backend/pkg/enums"
)

// OrderItem is an immutable line-item snapshot copied from the product at
// order-creation time. Fulfillment guards re-entrant stock release/reduction.
type OrderItem struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID         uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	SKU               string                `gorm:"column:sku;not null"`
	ProductName       string                `gorm:"column:product_name;not null"`
	Manufacturer      string                `gorm:"column:manufacturer"`
	Quantity          int                   `gorm:"column:quantity;not null"`
	FulfilledQuantity int                   `gorm:"column:fulfilled_quantity;not null;default:0"`
	UnitPrice         decimal.Decimal       `gorm:"column:unit_price;type:numeric(12,2);not null"`
	LineTotal         decimal.Decimal       `gorm:"column:line_total;type:numeric(12,2);not null"`
	Fulfillment       enums.ItemFulfillment `gorm:"column:fulfillment;not null;default:'reserved'"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
