package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
)

// Well-known setting keys.
const (
	KeyShippingFee     = "shipping_fee"
	KeyAdminAlertEmail = "admin_alert_email"
)

type cachedValue struct {
	value     string
	found     bool
	expiresAt time.Time
}

// Service reads runtime-tunable settings with a small TTL cache in front of
// the settings table.
type Service struct {
	db    *gorm.DB
	ttl   time.Duration
	clock func() time.Time

	mtx   sync.RWMutex
	cache map[string]cachedValue
}

// NewService builds a settings service. The clock is injectable for tests;
// pass nil for time.Now.
func NewService(db *gorm.DB, ttl time.Duration, clock func() time.Time) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:    db,
		ttl:   ttl,
		clock: clock,
		cache: map[string]cachedValue{},
	}, nil
}

// Get returns the raw value for key. Missing keys return ("", false, nil) so
// callers can apply defaults.
func (s *Service) Get(ctx context.Context, key string) (string, bool, error) {
	now := s.clock()

	s.mtx.RLock()
	entry, ok := s.cache[key]
	s.mtx.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.value, entry.found, nil
	}

	var row models.Setting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	found := true
	if errors.Is(err, gorm.ErrRecordNotFound) {
		found = false
		err = nil
	}
	if err != nil {
		return "", false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load setting")
	}

	s.mtx.Lock()
	s.cache[key] = cachedValue{value: row.Value, found: found, expiresAt: now.Add(s.ttl)}
	s.mtx.Unlock()

	return row.Value, found, nil
}

// ShippingFee returns the flat shipping fee, zero when unset.
func (s *Service) ShippingFee(ctx context.Context) (decimal.Decimal, error) {
	raw, found, err := s.Get(ctx, KeyShippingFee)
	if err != nil {
		return decimal.Zero, err
	}
	if !found || raw == "" {
		return decimal.Zero, nil
	}
	fee, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse shipping fee setting")
	}
	return fee, nil
}

// Set upserts a setting and drops it from the cache.
func (s *Service) Set(ctx context.Context, key, value string) error {
	err := s.db.WithContext(ctx).Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = ?, updated_at = CURRENT_TIMESTAMP
	`, key, value, value).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save setting")
	}
	s.Invalidate(key)
	return nil
}

// Invalidate removes a key from the cache so the next read hits the table.
func (s *Service) Invalidate(key string) {
	s.mtx.Lock()
	delete(s.cache, key)
	s.mtx.Unlock()
}
