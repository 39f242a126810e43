package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/medlinkhq/medsupply-backend/pkg/enums"
)

// AuditLog records administrative actions for later review. Writes are
// best-effort and never block the operation they describe.
type AuditLog struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Action     enums.AuditAction `gorm:"column:action;not null;index"`
	ActorID    *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	EntityType string            `gorm:"column:entity_type;not null"`
	EntityID   uuid.UUID         `gorm:"column:entity_id;type:uuid;not null;index"`
	Metadata   json.RawMessage   `gorm:"column:metadata;type:jsonb"`
	IPAddress  string            `gorm:"column:ip_address"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
}
