package carts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	"github.com/medlinkhq/medsupply-backend/pkg/enums"
)

// Repository defines persistence operations for carts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActive(ctx context.Context, pharmacyID uuid.UUID) (*models.Cart, error)
	CreateCart(ctx context.Context, cart *models.Cart) error
	UpsertItem(ctx context.Context, item *models.CartItem) error
	DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error
	FindItem(ctx context.Context, cartID, productID uuid.UUID) (*models.CartItem, error)
	UpdateCart(ctx context.Context, cartID uuid.UUID, updates map[string]any) error
	MarkConverted(ctx context.Context, cartID, orderID uuid.UUID) (bool, error)
	MarkAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a carts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindActive(ctx context.Context, pharmacyID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("pharmacy_id = ? AND status = ?", pharmacyID, enums.CartStatusActive).
		First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *repository) CreateCart(ctx context.Context, cart *models.Cart) error {
	return r.db.WithContext(ctx).Create(cart).Error
}

func (r *repository) UpsertItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *repository) DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&models.CartItem{}).Error
}

func (r *repository) FindItem(ctx context.Context, cartID, productID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) UpdateCart(ctx context.Context, cartID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(updates).Error
}

// MarkConverted flips an active cart to converted exactly once. The status
// guard enforces at-most-one order per cart under concurrent submits.
func (r *repository) MarkConverted(ctx context.Context, cartID, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND status = ?", cartID, enums.CartStatusActive).
		Updates(map[string]any{
			"status":   enums.CartStatusConverted,
			"order_id": orderID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkAbandonedBefore retires active carts untouched since the cutoff.
func (r *repository) MarkAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("status = ? AND updated_at < ?", enums.CartStatusActive, cutoff).
		Update("status", enums.CartStatusAbandoned)
	return res.RowsAffected, res.Error
}

func (r *repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Where("id = ?", productID).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}
