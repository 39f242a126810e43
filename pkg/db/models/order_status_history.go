package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/medlinkhq/medsupply-backend/pkg/enums"
)

// OrderStatusHistory is the append-only trail of status transitions.
type OrderStatusHistory struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	FromStatus *enums.OrderStatus `gorm:"column:from_status"`
	ToStatus   enums.OrderStatus  `gorm:"column:to_status;not null"`
	ActorID    *uuid.UUID         `gorm:"column:actor_id;type:uuid"`
	Notes      string             `gorm:"column:notes"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
}
