package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalog entry for a purchasable medicine.
type Product struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SKU          string          `gorm:"column:sku;not null;uniqueIndex"`
	Name         string          `gorm:"column:name;not null"`
	Description  string          `gorm:"column:description"`
	Manufacturer string          `gorm:"column:manufacturer"`
	Agency       string          `gorm:"column:agency"`
	Category     string          `gorm:"column:category"`
	BatchNumber  string          `gorm:"column:batch_number"`
	UnitPrice    decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	TaxRate      decimal.Decimal `gorm:"column:tax_rate;type:numeric(5,4);not null;default:0"`
	Active       bool            `gorm:"column:active;not null;default:true"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
