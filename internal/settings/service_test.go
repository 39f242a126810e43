package settings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
)

func TestGetCachesUntilTTLExpires(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	now := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	svc, err := NewService(db, time.Minute, clock)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	seed(t, db, KeyShippingFee, "100.00")

	value, found, err := svc.Get(ctx, KeyShippingFee)
	if err != nil || !found || value != "100.00" {
		t.Fatalf("unexpected first read: %q %v %v", value, found, err)
	}

	// The table changes underneath; the cached value survives inside the TTL.
	seed(t, db, KeyShippingFee, "175.00")
	value, _, err = svc.Get(ctx, KeyShippingFee)
	if err != nil || value != "100.00" {
		t.Fatalf("expected cached value, got %q %v", value, err)
	}

	now = now.Add(2 * time.Minute)
	value, _, err = svc.Get(ctx, KeyShippingFee)
	if err != nil || value != "175.00" {
		t.Fatalf("expected refreshed value after TTL, got %q %v", value, err)
	}
}

func TestSetInvalidatesCache(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, err := NewService(db, time.Hour, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	if err := svc.Set(ctx, KeyShippingFee, "50.00"); err != nil {
		t.Fatalf("set: %v", err)
	}
	fee, err := svc.ShippingFee(ctx)
	if err != nil || !fee.Equal(decimal.RequireFromString("50.00")) {
		t.Fatalf("unexpected fee: %s %v", fee, err)
	}

	if err := svc.Set(ctx, KeyShippingFee, "75.00"); err != nil {
		t.Fatalf("update: %v", err)
	}
	fee, err = svc.ShippingFee(ctx)
	if err != nil || !fee.Equal(decimal.RequireFromString("75.00")) {
		t.Fatalf("expected updated fee despite long TTL, got %s %v", fee, err)
	}
}

func TestShippingFeeDefaultsToZero(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, err := NewService(db, time.Minute, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	fee, err := svc.ShippingFee(context.Background())
	if err != nil {
		t.Fatalf("shipping fee: %v", err)
	}
	if !fee.IsZero() {
		t.Fatalf("expected zero fee when unset, got %s", fee)
	}
}

func TestMissingKeyIsCachedAsMiss(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	now := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc, err := NewService(db, time.Minute, clock)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	_, found, err := svc.Get(ctx, KeyAdminAlertEmail)
	if err != nil || found {
		t.Fatalf("expected miss, got found=%v err=%v", found, err)
	}

	seed(t, db, KeyAdminAlertEmail, "ops@medlink.example")
	_, found, err = svc.Get(ctx, KeyAdminAlertEmail)
	if err != nil || found {
		t.Fatalf("expected cached miss inside TTL, got found=%v err=%v", found, err)
	}

	now = now.Add(2 * time.Minute)
	value, found, err := svc.Get(ctx, KeyAdminAlertEmail)
	if err != nil || !found || value != "ops@medlink.example" {
		t.Fatalf("expected fresh value after TTL, got %q found=%v err=%v", value, found, err)
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:settings_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Setting{}); err != nil {
		t.Fatalf("migrate settings: %v", err)
	}
	return db
}

func seed(t *testing.T, db *gorm.DB, key, value string) {
	t.Helper()
	err := db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = ?, updated_at = CURRENT_TIMESTAMP
	`, key, value, value).Error
	if err != nil {
		t.Fatalf("seed setting: %v", err)
	}
}
