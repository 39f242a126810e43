package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	"github.com/medlinkhq/medsupply-backend/pkg/enums"
	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
)

// StockCheck is the read-only answer to "can I order qty of this product".
type StockCheck struct {
	Available    bool
	AvailableQty int
	Message      string
}

// Service is the inventory ledger. Mutating operations run inside the
// caller's transaction and write one stock movement row each. Callers are
// responsible for not releasing or reducing the same reservation twice; the
// per-item fulfillment state on order items is the guard for that.
type Service interface {
	CheckStock(ctx context.Context, productID uuid.UUID, qty int) (StockCheck, error)
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, orderNumber string) error
	ReduceReserved(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, sourceType string, sourceID *uuid.UUID, orderNumber string) error
	ReleaseReserved(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, orderNumber string) error
	Adjust(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int, note string) error
}

type service struct {
	db *gorm.DB
}

// NewService builds the inventory ledger service.
func NewService(db *gorm.DB) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle required")
	}
	return &service{db: db}, nil
}

func (s *service) CheckStock(ctx context.Context, productID uuid.UUID, qty int) (StockCheck, error) {
	if qty <= 0 {
		return StockCheck{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var level models.InventoryLevel
	err := s.db.WithContext(ctx).
		Where("product_id = ?", productID).
		First(&level).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StockCheck{Available: false, Message: "product has no stock record"}, nil
	}
	if err != nil {
		return StockCheck{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory level")
	}

	if level.AvailableQty < qty {
		return StockCheck{
			Available:    false,
			AvailableQty: level.AvailableQty,
			Message:      fmt.Sprintf("only %d units available", level.AvailableQty),
		}, nil
	}
	return StockCheck{Available: true, AvailableQty: level.AvailableQty}, nil
}

// Reserve moves qty from available to reserved. The guarded UPDATE closes the
// race where two orders both pass CheckStock for the last unit: the second
// writer finds available_qty below qty and fails.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, orderNumber string) error {
	if err := validateMutation(tx, qty); err != nil {
		return err
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_levels
		SET available_qty = available_qty - ?,
			reserved_qty = reserved_qty + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND available_qty >= ?
	`, qty, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve inventory")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeBusinessRule, "insufficient stock").
			WithDetails(map[string]any{"product_id": productID.String(), "requested": qty})
	}

	return s.recordMovement(ctx, tx, models.StockMovement{
		ProductID:    productID,
		MovementType: enums.StockMovementReservation,
		Quantity:     qty,
		OrderNumber:  orderNumber,
	})
}

// ReduceReserved converts a reservation into a permanent deduction when goods
// ship. Available stock is untouched; the units left it at reservation time.
func (s *service) ReduceReserved(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, sourceType string, sourceID *uuid.UUID, orderNumber string) error {
	if err := validateMutation(tx, qty); err != nil {
		return err
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_levels
		SET reserved_qty = reserved_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND reserved_qty >= ?
	`, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reduce reserved inventory")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "reserved quantity below requested reduction").
			WithDetails(map[string]any{"product_id": productID.String(), "requested": qty})
	}

	return s.recordMovement(ctx, tx, models.StockMovement{
		ProductID:    productID,
		MovementType: enums.StockMovementFulfillment,
		Quantity:     qty,
		OrderNumber:  orderNumber,
		SourceType:   sourceType,
		SourceID:     sourceID,
	})
}

// ReleaseReserved returns reserved units to the available pool on
// cancellation or failed payment before shipment.
func (s *service) ReleaseReserved(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, orderNumber string) error {
	if err := validateMutation(tx, qty); err != nil {
		return err
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_levels
		SET available_qty = available_qty + ?,
			reserved_qty = reserved_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND reserved_qty >= ?
	`, qty, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release reserved inventory")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "reserved quantity below requested release").
			WithDetails(map[string]any{"product_id": productID.String(), "requested": qty})
	}

	return s.recordMovement(ctx, tx, models.StockMovement{
		ProductID:    productID,
		MovementType: enums.StockMovementRelease,
		Quantity:     qty,
		OrderNumber:  orderNumber,
	})
}

// Adjust applies a manual correction to available stock. Negative deltas are
// guarded so available never goes below zero.
func (s *service) Adjust(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int, note string) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory mutation")
	}
	if delta == 0 {
		return nil
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_levels
		SET available_qty = available_qty + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND available_qty + ? >= 0
	`, delta, productID, delta)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "adjust inventory")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeBusinessRule, "adjustment would drive stock negative").
			WithDetails(map[string]any{"product_id": productID.String(), "delta": delta})
	}

	return s.recordMovement(ctx, tx, models.StockMovement{
		ProductID:    productID,
		MovementType: enums.StockMovementAdjustment,
		Quantity:     delta,
		Note:         note,
	})
}

func (s *service) recordMovement(ctx context.Context, tx *gorm.DB, movement models.StockMovement) error {
	movement.ID = uuid.New()
	if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stock movement")
	}
	return nil
}

func validateMutation(tx *gorm.DB, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory mutation")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return nil
}
