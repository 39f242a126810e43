package orders

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/internal/carts"
	"github.com/medlinkhq/medsupply-backend/internal/inventory"
	"github.com/medlinkhq/medsupply-backend/internal/pricing"
	"github.com/medlinkhq/medsupply-backend/internal/settings"
	"github.com/medlinkhq/medsupply-backend/pkg/config"
	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	"github.com/medlinkhq/medsupply-backend/pkg/enums"
	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
	"github.com/medlinkhq/medsupply-backend/pkg/outbox"
)

var testNow = time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db         *gorm.DB
	svc        Service
	pharmacyID uuid.UUID
	addressID  uuid.UUID
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func TestCreateOrderFromCart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	product := f.seedProduct(t, "AMOX-500", "100.00", "0.1000", 20)
	f.seedCart(t, []cartLine{{product: product, qty: 3}}, nil)

	result, err := f.svc.Create(ctx, CreateOrderInput{
		PharmacyID:    f.pharmacyID,
		PaymentMethod: enums.PaymentMethodBankTransfer,
	})
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^ORD\d{6}\d{4}$`), result.OrderNumber)

	order, err := f.svc.Get(ctx, result.OrderID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, order.Status)
	require.True(t, order.Subtotal.Equal(decimal.RequireFromString("300.00")))
	require.True(t, order.Tax.Equal(decimal.RequireFromString("30.00")))
	require.True(t, order.Shipping.Equal(decimal.RequireFromString("250.00")))
	require.True(t, order.Total.Equal(order.Subtotal.Add(order.Tax).Sub(order.Discount).Add(order.Shipping)))
	require.True(t, order.Due.Equal(order.Total))
	require.True(t, order.Paid.IsZero())
	require.Len(t, order.Items, 1)
	require.Equal(t, "AMOX-500", order.Items[0].SKU)
	require.Equal(t, enums.ItemFulfillmentReserved, order.Items[0].Fulfillment)

	level := f.loadLevel(t, product.ID)
	require.Equal(t, 17, level.AvailableQty)
	require.Equal(t, 3, level.ReservedQty)

	var cart models.Cart
	require.NoError(t, f.db.First(&cart, "pharmacy_id = ?", f.pharmacyID).Error)
	require.Equal(t, enums.CartStatusConverted, cart.Status)
	require.Equal(t, order.ID, *cart.OrderID)

	history, err := f.svc.History(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, enums.OrderStatusPending, history[0].ToStatus)
	require.Nil(t, history[0].FromStatus)

	var events []models.OutboxEvent
	require.NoError(t, f.db.Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventOrderCreated, events[0].EventType)
	require.Nil(t, events[0].PublishedAt)
}

func TestCreateOrderAppliesDiscountCode(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	product := f.seedProduct(t, "PARA-650", "50.00", "0", 100)
	code := "SAVE10"
	f.seedDiscount(t, code, enums.DiscountTypePercentage, "10.00")
	f.seedCart(t, []cartLine{{product: product, qty: 10}}, &code)

	result, err := f.svc.Create(ctx, CreateOrderInput{
		PharmacyID:    f.pharmacyID,
		PaymentMethod: enums.PaymentMethodCash,
	})
	require.NoError(t, err)

	order, err := f.svc.Get(ctx, result.OrderID)
	require.NoError(t, err)
	require.True(t, order.Discount.Equal(decimal.RequireFromString("50.00")))
	require.True(t, order.Total.Equal(decimal.RequireFromString("700.00")), "500 - 50 + 250 shipping")

	var discount models.DiscountCode
	require.NoError(t, f.db.First(&discount, "code = ?", code).Error)
	require.Equal(t, 1, discount.UsedCount)
}

func TestCreateOrderEmptyCart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateOrderInput{
		PharmacyID:    f.pharmacyID,
		PaymentMethod: enums.PaymentMethodCash,
	})
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	require.Equal(t, pkgerrors.CodeBusinessRule, coded.Code())
}

func TestCreateOrderInsufficientStockRollsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	scarce := f.seedProduct(t, "INS-001", "10.00", "0", 50)
	plenty := f.seedProduct(t, "INS-002", "10.00", "0", 50)
	f.seedCart(t, []cartLine{{product: plenty, qty: 5}, {product: scarce, qty: 51}}, nil)

	_, err := f.svc.Create(ctx, CreateOrderInput{
		PharmacyID:    f.pharmacyID,
		PaymentMethod: enums.PaymentMethodCash,
	})
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	require.Equal(t, pkgerrors.CodeBusinessRule, coded.Code())

	// Nothing may leak out of the aborted transaction.
	var orderCount, eventCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Count(&eventCount).Error)
	require.Zero(t, orderCount)
	require.Zero(t, eventCount)

	for _, p := range []models.Product{plenty, scarce} {
		level := f.loadLevel(t, p.ID)
		require.Equal(t, 50, level.AvailableQty)
		require.Zero(t, level.ReservedQty)
	}

	var cart models.Cart
	require.NoError(t, f.db.First(&cart, "pharmacy_id = ?", f.pharmacyID).Error)
	require.Equal(t, enums.CartStatusActive, cart.Status)
}

func TestCreateCreditOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	product := f.seedProduct(t, "CRD-001", "100.00", "0", 10)
	f.seedCart(t, []cartLine{{product: product, qty: 2}}, nil)
	doctor := f.seedDoctor(t, "1000.00", "0.00", 45)

	result, err := f.svc.Create(ctx, CreateOrderInput{
		PharmacyID:    f.pharmacyID,
		PaymentMethod: enums.PaymentMethodCredit,
	})
	require.NoError(t, err)

	order, err := f.svc.Get(ctx, result.OrderID)
	require.NoError(t, err)
	require.True(t, order.IsCredit)
	require.Equal(t, enums.OrderPaymentStatusCredit, order.PaymentStatus)
	require.Equal(t, doctor.ID, *order.DoctorProfileID)
	require.NotNil(t, order.CreditDueDate)
	require.WithinDuration(t, testNow.AddDate(0, 0, 45), *order.CreditDueDate, time.Second)

	var reloaded models.DoctorProfile
	require.NoError(t, f.db.First(&reloaded, "id = ?", doctor.ID).Error)
	require.True(t, reloaded.CurrentCredit.Equal(order.Total))
}

func TestCreateCreditOrderOverLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	product := f.seedProduct(t, "CRD-002", "400.00", "0", 10)
	f.seedCart(t, []cartLine{{product: product, qty: 2}}, nil)
	f.seedDoctor(t, "500.00", "0.00", 30)

	_, err := f.svc.Create(ctx, CreateOrderInput{
		PharmacyID:    f.pharmacyID,
		PaymentMethod: enums.PaymentMethodCredit,
	})
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	require.Equal(t, pkgerrors.CodeBusinessRule, coded.Code())
}

func TestTransitionLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	product := f.seedProduct(t, "LIF-001", "20.00", "0", 30)
	f.seedCart(t, []cartLine{{product: product, qty: 4}}, nil)
	result, err := f.svc.Create(ctx, CreateOrderInput{
		PharmacyID:    f.pharmacyID,
		PaymentMethod: enums.PaymentMethodCash,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Transition(ctx, TransitionInput{OrderID: result.OrderID, Target: enums.OrderStatusConfirmed}))
	require.NoError(t, f.svc.Transition(ctx, TransitionInput{OrderID: result.OrderID, Target: enums.OrderStatusProcessing}))

	eta := time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.svc.Transition(ctx, TransitionInput{
		OrderID:              result.OrderID,
		Target:               enums.OrderStatusShipped,
		TrackingNumber:       "PX-889-201",
		TrackingURL:          "https://courier.example/track/PX-889-201",
		ExpectedDeliveryDate: &eta,
	}))
	require.NoError(t, f.svc.Transition(ctx, TransitionInput{OrderID: result.OrderID, Target: enums.OrderStatusDelivered}))

	order, err := f.svc.Get(ctx, result.OrderID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDelivered, order.Status)
	require.NotNil(t, order.ConfirmedAt)
	require.NotNil(t, order.ShippedAt)
	require.NotNil(t, order.DeliveredAt)
	require.NotNil(t, order.TrackingNumber)
	require.Equal(t, "PX-889-201", *order.TrackingNumber)
	require.NotNil(t, order.ExpectedDeliveryDate)
	require.Equal(t, enums.ItemFulfillmentFulfilled, order.Items[0].Fulfillment)
	require.Equal(t, 4, order.Items[0].FulfilledQuantity)

	// Shipping converts the reservation into a physical deduction.
	level := f.loadLevel(t, product.ID)
	require.Equal(t, 26, level.AvailableQty)
	require.Zero(t, level.ReservedQty)

	history, err := f.svc.History(ctx, result.OrderID)
	require.NoError(t, err)
	require.Len(t, history, 5)
}

func TestTransitionDisallowed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	product := f.seedProduct(t, "BAD-001", "20.00", "0", 30)
	f.seedCart(t, []cartLine{{product: product, qty: 1}}, nil)
	result, err := f.svc.Create(ctx, CreateOrderInput{
		PharmacyID:    f.pharmacyID,
		PaymentMethod: enums.PaymentMethodCash,
	})
	require.NoError(t, err)

	err = f.svc.Transition(ctx, TransitionInput{OrderID: result.OrderID, Target: enums.OrderStatusShipped})
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	require.Equal(t, pkgerrors.CodeTransition, coded.Code())
}

func TestCancelReleasesStockExactlyOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	product := f.seedProduct(t, "CAN-001", "20.00", "0", 10)
	f.seedCart(t, []cartLine{{product: product, qty: 6}}, nil)
	result, err := f.svc.Create(ctx, CreateOrderInput{
		PharmacyID:    f.pharmacyID,
		PaymentMethod: enums.PaymentMethodCash,
	})
	require.NoError(t, err)

	level := f.loadLevel(t, product.ID)
	require.Equal(t, 4, level.AvailableQty)

	require.NoError(t, f.svc.Transition(ctx, TransitionInput{
		OrderID: result.OrderID,
		Target:  enums.OrderStatusCancelled,
		Reason:  "customer request",
	}))

	level = f.loadLevel(t, product.ID)
	require.Equal(t, 10, level.AvailableQty)
	require.Zero(t, level.ReservedQty)

	order, err := f.svc.Get(ctx, result.OrderID)
	require.NoError(t, err)
	require.Equal(t, "customer request", order.CancelReason)
	require.Equal(t, enums.ItemFulfillmentReleased, order.Items[0].Fulfillment)

	// Cancelled is terminal; a repeat must not touch stock again.
	err = f.svc.Transition(ctx, TransitionInput{OrderID: result.OrderID, Target: enums.OrderStatusCancelled})
	require.Error(t, err)
	level = f.loadLevel(t, product.ID)
	require.Equal(t, 10, level.AvailableQty)
}

func TestOrderNumbersAreSequentialPerDay(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	var first, second string
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		first, err = NextOrderNumber(ctx, tx, testNow)
		if err != nil {
			return err
		}
		second, err = NextOrderNumber(ctx, tx, testNow)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, "ORD2508150001", first)
	require.Equal(t, "ORD2508150002", second)

	var third string
	err = f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		third, err = NextOrderNumber(ctx, tx, testNow.AddDate(0, 0, 1))
		return err
	})
	require.NoError(t, err)
	require.Equal(t, "ORD2508160001", third)
}

type cartLine struct {
	product models.Product
	qty     int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.Product{},
		&models.InventoryLevel{},
		&models.StockMovement{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderStatusHistory{},
		&models.OrderSequence{},
		&models.Cart{},
		&models.CartItem{},
		&models.DiscountCode{},
		&models.DoctorProfile{},
		&models.AddressRecord{},
		&models.OutboxEvent{},
		&models.Setting{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	clock := func() time.Time { return testNow }

	invSvc, err := inventory.NewService(db)
	require.NoError(t, err)
	pricingSvc, err := pricing.NewService(pricing.NewRepository(db), config.PricingConfig{
		ZeroMatchZeroDiscount: true,
		DefaultPaymentTerms:   30,
	}, clock)
	require.NoError(t, err)
	cartSvc, err := carts.NewService(carts.NewRepository(db))
	require.NoError(t, err)
	settingsSvc, err := settings.NewService(db, time.Minute, clock)
	require.NoError(t, err)
	require.NoError(t, settingsSvc.Set(context.Background(), settings.KeyShippingFee, "250.00"))

	svc, err := NewService(Deps{
		Repo:      NewRepository(db),
		Tx:        gormTxRunner{db: db},
		Inventory: invSvc,
		Pricing:   pricingSvc,
		Carts:     cartSvc,
		Settings:  settingsSvc,
		Outbox:    outbox.NewService(outbox.NewRepository(db), nil),
		Clock:     clock,
	})
	require.NoError(t, err)

	f := &fixture{
		db:         db,
		svc:        svc,
		pharmacyID: uuid.New(),
	}
	f.addressID = f.seedAddress(t)
	return f
}

func (f *fixture) seedProduct(t *testing.T, sku, price, taxRate string, available int) models.Product {
	t.Helper()
	product := models.Product{
		ID:           uuid.New(),
		SKU:          sku,
		Name:         "Product " + sku,
		Manufacturer: "Acme Pharma",
		Category:     "general",
		UnitPrice:    decimal.RequireFromString(price),
		TaxRate:      decimal.RequireFromString(taxRate),
		Active:       true,
	}
	if err := f.db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	level := models.InventoryLevel{ProductID: product.ID, AvailableQty: available}
	if err := f.db.Create(&level).Error; err != nil {
		t.Fatalf("seed level: %v", err)
	}
	return product
}

func (f *fixture) seedAddress(t *testing.T) uuid.UUID {
	t.Helper()
	address := models.AddressRecord{
		ID:         uuid.New(),
		PharmacyID: f.pharmacyID,
		Label:      "Main branch",
		Line1:      "12 Hospital Rd",
		City:       "Colombo",
		PostalCode: "00300",
		Country:    "LK",
		Phone:      "+94 11 2345678",
	}
	if err := f.db.Create(&address).Error; err != nil {
		t.Fatalf("seed address: %v", err)
	}
	return address.ID
}

func (f *fixture) seedCart(t *testing.T, lines []cartLine, discountCode *string) {
	t.Helper()
	cart := models.Cart{
		ID:                uuid.New(),
		PharmacyID:        f.pharmacyID,
		Status:            enums.CartStatusActive,
		DiscountCode:      discountCode,
		ShippingAddressID: &f.addressID,
	}
	if err := f.db.Create(&cart).Error; err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	for _, line := range lines {
		item := models.CartItem{
			ID:        uuid.New(),
			CartID:    cart.ID,
			ProductID: line.product.ID,
			Quantity:  line.qty,
			UnitPrice: line.product.UnitPrice,
		}
		if err := f.db.Create(&item).Error; err != nil {
			t.Fatalf("seed cart item: %v", err)
		}
	}
}

func (f *fixture) seedDiscount(t *testing.T, code string, kind enums.DiscountType, value string) {
	t.Helper()
	discount := models.DiscountCode{
		ID:     uuid.New(),
		Code:   code,
		Type:   kind,
		Value:  decimal.RequireFromString(value),
		Active: true,
	}
	if err := f.db.Create(&discount).Error; err != nil {
		t.Fatalf("seed discount: %v", err)
	}
}

func (f *fixture) seedDoctor(t *testing.T, limit, current string, termsDays int) models.DoctorProfile {
	t.Helper()
	doctor := models.DoctorProfile{
		ID:               uuid.New(),
		PharmacyID:       f.pharmacyID,
		Name:             "Dr. Perera",
		Verified:         true,
		CreditLimit:      decimal.RequireFromString(limit),
		CurrentCredit:    decimal.RequireFromString(current),
		PaymentTermsDays: termsDays,
	}
	if err := f.db.Create(&doctor).Error; err != nil {
		t.Fatalf("seed doctor: %v", err)
	}
	return doctor
}

func (f *fixture) loadLevel(t *testing.T, productID uuid.UUID) models.InventoryLevel {
	t.Helper()
	var level models.InventoryLevel
	if err := f.db.First(&level, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load level: %v", err)
	}
	return level
}
