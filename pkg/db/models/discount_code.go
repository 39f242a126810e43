package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/medlinkhq/medsupply-backend/pkg/enums"
)

// DiscountCode is a redeemable promotion. Scope arrays narrow which cart
// items contribute to the discount base; empty arrays mean no restriction on
// that dimension.
type DiscountCode struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code              string             `gorm:"column:code;not null;uniqueIndex"`
	Type              enums.DiscountType `gorm:"column:type;not null"`
	Value             decimal.Decimal    `gorm:"column:value;type:numeric(12,2);not null"`
	MinOrderAmount    decimal.Decimal    `gorm:"column:min_order_amount;type:numeric(12,2);not null;default:0"`
	MaxDiscountAmount *decimal.Decimal   `gorm:"column:max_discount_amount;type:numeric(12,2)"`
	ProductScope      pq.StringArray     `gorm:"column:product_scope;type:text[]"`
	CategoryScope     pq.StringArray     `gorm:"column:category_scope;type:text[]"`
	ManufacturerScope pq.StringArray     `gorm:"column:manufacturer_scope;type:text[]"`
	AgencyScope       pq.StringArray     `gorm:"column:agency_scope;type:text[]"`
	BatchScope        pq.StringArray     `gorm:"column:batch_scope;type:text[]"`
	Active            bool               `gorm:"column:active;not null;default:true"`
	StartDate         *time.Time         `gorm:"column:start_date"`
	EndDate           *time.Time         `gorm:"column:end_date"`
	UsageLimit        *int               `gorm:"column:usage_limit"`
	UsedCount         int                `gorm:"column:used_count;not null;default:0"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
