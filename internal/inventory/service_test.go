package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	"github.com/medlinkhq/medsupply-backend/pkg/enums"
	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
)

func TestReserveDecrementsAvailable(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productID := uuid.New()
	seedLevel(t, db, productID, 5)

	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(ctx, tx, productID, 3, "ORD2508150001")
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	level := loadLevel(t, db, productID)
	if level.AvailableQty != 2 || level.ReservedQty != 3 {
		t.Fatalf("unexpected level after reserve: %+v", level)
	}

	var movements []models.StockMovement
	if err := db.Where("product_id = ?", productID).Find(&movements).Error; err != nil {
		t.Fatalf("load movements: %v", err)
	}
	if len(movements) != 1 || movements[0].MovementType != enums.StockMovementReservation {
		t.Fatalf("expected one reservation movement, got %+v", movements)
	}
}

func TestReserveInsufficientStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productID := uuid.New()
	seedLevel(t, db, productID, 2)

	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(ctx, tx, productID, 3, "ORD2508150002")
	})
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeBusinessRule {
		t.Fatalf("expected business rule error, got %v", err)
	}

	level := loadLevel(t, db, productID)
	if level.AvailableQty != 2 || level.ReservedQty != 0 {
		t.Fatalf("stock mutated on failed reserve: %+v", level)
	}
}

func TestReserveThenReleaseNetsZero(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productID := uuid.New()
	seedLevel(t, db, productID, 10)

	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if terr := svc.Reserve(ctx, tx, productID, 4, "ORD2508150003"); terr != nil {
			return terr
		}
		return svc.ReleaseReserved(ctx, tx, productID, 4, "ORD2508150003")
	})
	if err != nil {
		t.Fatalf("reserve+release: %v", err)
	}

	level := loadLevel(t, db, productID)
	if level.AvailableQty != 10 || level.ReservedQty != 0 {
		t.Fatalf("reserve+release did not net to zero: %+v", level)
	}
}

func TestReduceReservedRemovesFromPhysical(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productID := uuid.New()
	seedLevel(t, db, productID, 6)

	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	orderID := uuid.New()
	err = db.Transaction(func(tx *gorm.DB) error {
		if terr := svc.Reserve(ctx, tx, productID, 4, "ORD2508150004"); terr != nil {
			return terr
		}
		return svc.ReduceReserved(ctx, tx, productID, 4, "order", &orderID, "ORD2508150004")
	})
	if err != nil {
		t.Fatalf("reserve+reduce: %v", err)
	}

	level := loadLevel(t, db, productID)
	if level.AvailableQty != 2 || level.ReservedQty != 0 {
		t.Fatalf("unexpected level after reduce: %+v", level)
	}
}

func TestReleaseBeyondReservedFails(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productID := uuid.New()
	seedLevel(t, db, productID, 5)

	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.ReleaseReserved(ctx, tx, productID, 1, "ORD2508150005")
	})
	if err == nil {
		t.Fatal("expected release to fail with nothing reserved")
	}
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestCheckStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productID := uuid.New()
	seedLevel(t, db, productID, 3)

	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	check, err := svc.CheckStock(ctx, productID, 3)
	if err != nil {
		t.Fatalf("check stock: %v", err)
	}
	if !check.Available {
		t.Fatalf("expected stock available, got %+v", check)
	}

	check, err = svc.CheckStock(ctx, productID, 4)
	if err != nil {
		t.Fatalf("check stock over: %v", err)
	}
	if check.Available || check.Message == "" {
		t.Fatalf("expected unavailable with message, got %+v", check)
	}

	check, err = svc.CheckStock(ctx, uuid.New(), 1)
	if err != nil {
		t.Fatalf("check stock missing: %v", err)
	}
	if check.Available {
		t.Fatal("expected unavailable for unknown product")
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.InventoryLevel{}, &models.StockMovement{}); err != nil {
		t.Fatalf("migrate inventory: %v", err)
	}
	return db
}

func seedLevel(t *testing.T, db *gorm.DB, productID uuid.UUID, available int) {
	t.Helper()
	level := models.InventoryLevel{ProductID: productID, AvailableQty: available}
	if err := db.Create(&level).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
}

func loadLevel(t *testing.T, db *gorm.DB, productID uuid.UUID) models.InventoryLevel {
	t.Helper()
	var level models.InventoryLevel
	if err := db.First(&level, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load inventory level: %v", err)
	}
	return level
}
