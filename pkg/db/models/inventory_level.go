package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryLevel tracks available/reserved counts per product.
// Invariant: AvailableQty and ReservedQty never go negative.
type InventoryLevel struct {
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	ReservedQty  int       `gorm:"column:reserved_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
