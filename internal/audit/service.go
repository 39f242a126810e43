package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	"github.com/medlinkhq/medsupply-backend/pkg/enums"
	"github.com/medlinkhq/medsupply-backend/pkg/logger"
)

// Entry is one administrative action to record.
type Entry struct {
	Action     enums.AuditAction
	ActorID    *uuid.UUID
	EntityType string
	EntityID   uuid.UUID
	Metadata   map[string]any
	IPAddress  string
}

// Service writes audit rows. Writes are fire-and-forget: a failed audit
// insert is logged and never surfaces to the operation it describes.
type Service struct {
	db   *gorm.DB
	logg *logger.Logger
}

// NewService builds the audit service.
func NewService(db *gorm.DB, logg *logger.Logger) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle required")
	}
	return &Service{db: db, logg: logg}, nil
}

// Record persists the entry best-effort.
func (s *Service) Record(ctx context.Context, entry Entry) {
	var metadata json.RawMessage
	if entry.Metadata != nil {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			s.warn(ctx, "marshal audit metadata", err)
			return
		}
		metadata = raw
	}

	row := models.AuditLog{
		ID:         uuid.New(),
		Action:     entry.Action,
		ActorID:    entry.ActorID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   metadata,
		IPAddress:  entry.IPAddress,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.warn(ctx, "write audit log", err)
	}
}

// ListByEntity returns audit rows for one entity, newest first.
func (s *Service) ListByEntity(ctx context.Context, entityID uuid.UUID, limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.AuditLog
	err := s.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (s *Service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(ctx, msg, err)
}
