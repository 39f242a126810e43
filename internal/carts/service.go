package carts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	"github.com/medlinkhq/medsupply-backend/pkg/enums"
	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
)

// Service maintains each pharmacy's single active cart.
type Service interface {
	GetOrCreateActive(ctx context.Context, pharmacyID uuid.UUID) (*models.Cart, error)
	AddItem(ctx context.Context, pharmacyID, productID uuid.UUID, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, pharmacyID, productID uuid.UUID) (*models.Cart, error)
	ApplyDiscountCode(ctx context.Context, pharmacyID uuid.UUID, code string) error
	SetAddresses(ctx context.Context, pharmacyID uuid.UUID, shippingID, billingID *uuid.UUID) error

	// FindActiveWithItems and MarkConverted run inside the order
	// orchestrator's transaction.
	FindActiveWithItems(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID) (*models.Cart, error)
	MarkConverted(ctx context.Context, tx *gorm.DB, cartID, orderID uuid.UUID) (bool, error)
}

type service struct {
	repo Repository
}

// NewService builds the cart service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("carts repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetOrCreateActive(ctx context.Context, pharmacyID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindActive(ctx, pharmacyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active cart")
	}
	if cart != nil {
		return cart, nil
	}

	cart = &models.Cart{
		ID:         uuid.New(),
		PharmacyID: pharmacyID,
		Status:     enums.CartStatusActive,
	}
	if err := s.repo.CreateCart(ctx, cart); err != nil {
		// The partial unique index on active carts means a concurrent
		// create won; reload theirs.
		existing, findErr := s.repo.FindActive(ctx, pharmacyID)
		if findErr == nil && existing != nil {
			return existing, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return cart, nil
}

func (s *service) AddItem(ctx context.Context, pharmacyID, productID uuid.UUID, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	product, err := s.repo.FindProduct(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product == nil || !product.Active {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	cart, err := s.GetOrCreateActive(ctx, pharmacyID)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.FindItem(ctx, cart.ID, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	if item == nil {
		item = &models.CartItem{
			ID:        uuid.New(),
			CartID:    cart.ID,
			ProductID: productID,
			Quantity:  quantity,
			UnitPrice: product.UnitPrice,
		}
	} else {
		item.Quantity = quantity
		// Re-snapshot the price; the cart always reflects current catalog
		// pricing until the order freezes it.
		item.UnitPrice = product.UnitPrice
	}
	if err := s.repo.UpsertItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart item")
	}

	return s.reload(ctx, pharmacyID)
}

func (s *service) RemoveItem(ctx context.Context, pharmacyID, productID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindActive(ctx, pharmacyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active cart")
	}
	if cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active cart")
	}
	if err := s.repo.DeleteItem(ctx, cart.ID, productID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	return s.reload(ctx, pharmacyID)
}

func (s *service) ApplyDiscountCode(ctx context.Context, pharmacyID uuid.UUID, code string) error {
	cart, err := s.repo.FindActive(ctx, pharmacyID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active cart")
	}
	if cart == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no active cart")
	}

	updates := map[string]any{"discount_code": nil}
	if code != "" {
		updates["discount_code"] = code
	}
	if err := s.repo.UpdateCart(ctx, cart.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply discount code")
	}
	return nil
}

func (s *service) SetAddresses(ctx context.Context, pharmacyID uuid.UUID, shippingID, billingID *uuid.UUID) error {
	cart, err := s.repo.FindActive(ctx, pharmacyID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active cart")
	}
	if cart == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no active cart")
	}

	updates := map[string]any{}
	if shippingID != nil {
		updates["shipping_address_id"] = *shippingID
	}
	if billingID != nil {
		updates["billing_address_id"] = *billingID
	}
	if len(updates) == 0 {
		return nil
	}
	if err := s.repo.UpdateCart(ctx, cart.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set cart addresses")
	}
	return nil
}

func (s *service) FindActiveWithItems(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.WithTx(tx).FindActive(ctx, pharmacyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active cart")
	}
	return cart, nil
}

func (s *service) MarkConverted(ctx context.Context, tx *gorm.DB, cartID, orderID uuid.UUID) (bool, error) {
	ok, err := s.repo.WithTx(tx).MarkConverted(ctx, cartID, orderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "convert cart")
	}
	return ok, nil
}

func (s *service) reload(ctx context.Context, pharmacyID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindActive(ctx, pharmacyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
	}
	return cart, nil
}
