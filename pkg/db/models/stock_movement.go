package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/medlinkhq/medsupply-backend/pkg/enums"
)

// StockMovement is an append-only ledger row for every stock mutation.
type StockMovement struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ProductID    uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	MovementType enums.StockMovementType `gorm:"column:movement_type;not null"`
	Quantity     int                     `gorm:"column:quantity;not null"`
	OrderNumber  string                  `gorm:"column:order_number;index"`
	SourceType   string                  `gorm:"column:source_type"`
	SourceID     *uuid.UUID              `gorm:"column:source_id;type:uuid"`
	Note         string                  `gorm:"column:note"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
}
