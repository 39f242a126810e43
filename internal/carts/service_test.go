package carts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
)

func TestGetOrCreateActiveIsStable(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	pharmacyID := uuid.New()

	first, err := svc.GetOrCreateActive(ctx, pharmacyID)
	if err != nil {
		t.Fatalf("create cart: %v", err)
	}
	second, err := svc.GetOrCreateActive(ctx, pharmacyID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same cart, got %s and %s", first.ID, second.ID)
	}
}

func TestAddItemSetsAbsoluteQuantityAndResnapshotsPrice(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	pharmacyID := uuid.New()
	product := seedProduct(t, db, "10.00", true)

	cart, err := svc.AddItem(ctx, pharmacyID, product.ID, 3)
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 3 {
		t.Fatalf("unexpected cart items: %+v", cart.Items)
	}

	// Catalog price changes between adds; the second call overwrites quantity
	// and takes the fresh price.
	if err := db.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("unit_price", decimal.RequireFromString("12.50")).Error; err != nil {
		t.Fatalf("update price: %v", err)
	}
	cart, err = svc.AddItem(ctx, pharmacyID, product.ID, 5)
	if err != nil {
		t.Fatalf("re-add item: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected single line, got %d", len(cart.Items))
	}
	if cart.Items[0].Quantity != 5 {
		t.Fatalf("expected quantity overwritten to 5, got %d", cart.Items[0].Quantity)
	}
	if !cart.Items[0].UnitPrice.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("expected re-snapshotted price, got %s", cart.Items[0].UnitPrice)
	}
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	product := seedProduct(t, db, "10.00", false)

	_, err := svc.AddItem(context.Background(), uuid.New(), product.ID, 1)
	if err == nil {
		t.Fatal("expected inactive product to be rejected")
	}
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAddItemRejectsNonPositiveQuantity(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.AddItem(context.Background(), uuid.New(), uuid.New(), 0)
	if err == nil {
		t.Fatal("expected quantity rejection")
	}
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRemoveItem(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	pharmacyID := uuid.New()
	product := seedProduct(t, db, "10.00", true)

	if _, err := svc.AddItem(ctx, pharmacyID, product.ID, 2); err != nil {
		t.Fatalf("add item: %v", err)
	}
	cart, err := svc.RemoveItem(ctx, pharmacyID, product.ID)
	if err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", cart.Items)
	}
}

func TestApplyAndClearDiscountCode(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	pharmacyID := uuid.New()

	if _, err := svc.GetOrCreateActive(ctx, pharmacyID); err != nil {
		t.Fatalf("create cart: %v", err)
	}
	if err := svc.ApplyDiscountCode(ctx, pharmacyID, "SAVE10"); err != nil {
		t.Fatalf("apply code: %v", err)
	}

	cart, err := svc.GetOrCreateActive(ctx, pharmacyID)
	if err != nil {
		t.Fatalf("reload cart: %v", err)
	}
	if cart.DiscountCode == nil || *cart.DiscountCode != "SAVE10" {
		t.Fatalf("expected discount code applied, got %+v", cart.DiscountCode)
	}

	if err := svc.ApplyDiscountCode(ctx, pharmacyID, ""); err != nil {
		t.Fatalf("clear code: %v", err)
	}
	cart, err = svc.GetOrCreateActive(ctx, pharmacyID)
	if err != nil {
		t.Fatalf("reload cart: %v", err)
	}
	if cart.DiscountCode != nil {
		t.Fatalf("expected discount code cleared, got %q", *cart.DiscountCode)
	}
}

func TestMarkConvertedOnlyOnce(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	pharmacyID := uuid.New()

	cart, err := svc.GetOrCreateActive(ctx, pharmacyID)
	if err != nil {
		t.Fatalf("create cart: %v", err)
	}

	orderID := uuid.New()
	err = db.Transaction(func(tx *gorm.DB) error {
		ok, convErr := svc.MarkConverted(ctx, tx, cart.ID, orderID)
		if convErr != nil {
			return convErr
		}
		if !ok {
			t.Fatal("first conversion must succeed")
		}
		ok, convErr = svc.MarkConverted(ctx, tx, cart.ID, uuid.New())
		if convErr != nil {
			return convErr
		}
		if ok {
			t.Fatal("second conversion must be rejected")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	// A new active cart can be opened after conversion.
	fresh, err := svc.GetOrCreateActive(ctx, pharmacyID)
	if err != nil {
		t.Fatalf("new cart: %v", err)
	}
	if fresh.ID == cart.ID {
		t.Fatal("expected a fresh cart after conversion")
	}
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db))
	if err != nil {
		t.Fatalf("new carts service: %v", err)
	}
	return svc
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:carts_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.Cart{}, &models.CartItem{}); err != nil {
		t.Fatalf("migrate carts: %v", err)
	}
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, price string, active bool) models.Product {
	t.Helper()
	product := models.Product{
		ID:        uuid.New(),
		SKU:       "SKU-" + uuid.NewString()[:8],
		Name:      "Test product",
		UnitPrice: decimal.RequireFromString(price),
		Active:    active,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}
