package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/internal/audit"
	"github.com/medlinkhq/medsupply-backend/internal/inventory"
	"github.com/medlinkhq/medsupply-backend/internal/pricing"
	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	"github.com/medlinkhq/medsupply-backend/pkg/enums"
	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
	"github.com/medlinkhq/medsupply-backend/pkg/logger"
	"github.com/medlinkhq/medsupply-backend/pkg/outbox"
	"github.com/medlinkhq/medsupply-backend/pkg/pagination"
	"github.com/medlinkhq/medsupply-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type inventoryLedger interface {
	CheckStock(ctx context.Context, productID uuid.UUID, qty int) (inventory.StockCheck, error)
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, orderNumber string) error
	ReduceReserved(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, sourceType string, sourceID *uuid.UUID, orderNumber string) error
	ReleaseReserved(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, orderNumber string) error
}

type pricingEvaluator interface {
	ValidateCode(ctx context.Context, code string, cartTotal decimal.Decimal, lines []pricing.CartLine) (pricing.DiscountResult, error)
	EvaluateCredit(ctx context.Context, pharmacyID uuid.UUID, cartTotal decimal.Decimal) (pricing.CreditEvaluation, error)
	RedeemCode(ctx context.Context, tx *gorm.DB, code string) error
	ChargeCredit(ctx context.Context, tx *gorm.DB, doctorID uuid.UUID, amount decimal.Decimal) error
}

type cartSource interface {
	FindActiveWithItems(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID) (*models.Cart, error)
	MarkConverted(ctx context.Context, tx *gorm.DB, cartID, orderID uuid.UUID) (bool, error)
}

type shippingFeeSource interface {
	ShippingFee(ctx context.Context) (decimal.Decimal, error)
}

// CheckoutPreparer builds the gateway redirect payload for orders paid via
// an external checkout page.
type CheckoutPreparer interface {
	PrepareCheckout(order *models.Order) (*CheckoutRedirect, error)
}

type auditRecorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Service is the order orchestrator and state machine.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	Transition(ctx context.Context, input TransitionInput) error
	TransitionTx(ctx context.Context, tx *gorm.DB, input TransitionInput) error
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetByNumber(ctx context.Context, number string) (*models.Order, error)
	List(ctx context.Context, pharmacyID uuid.UUID, params pagination.Params) (*OrderList, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	inventory inventoryLedger
	pricing   pricingEvaluator
	carts     cartSource
	settings  shippingFeeSource
	outbox    outboxPublisher
	checkout  CheckoutPreparer
	audit     auditRecorder
	logg      *logger.Logger
	clock     func() time.Time
}

// Deps bundles the orchestrator's collaborators. Checkout, audit and logger
// are optional; everything else is required.
type Deps struct {
	Repo      Repository
	Tx        txRunner
	Inventory inventoryLedger
	Pricing   pricingEvaluator
	Carts     cartSource
	Settings  shippingFeeSource
	Outbox    outboxPublisher
	Checkout  CheckoutPreparer
	Audit     auditRecorder
	Logger    *logger.Logger
	Clock     func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Inventory == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if deps.Pricing == nil {
		return nil, fmt.Errorf("pricing evaluator required")
	}
	if deps.Carts == nil {
		return nil, fmt.Errorf("cart source required")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings source required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:      deps.Repo,
		tx:        deps.Tx,
		inventory: deps.Inventory,
		pricing:   deps.Pricing,
		carts:     deps.Carts,
		settings:  deps.Settings,
		outbox:    deps.Outbox,
		checkout:  deps.Checkout,
		audit:     deps.Audit,
		logg:      deps.Logger,
		clock:     clock,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.createInTx(ctx, tx, input)
		if err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, audit.Entry{
		Action:     enums.AuditActionOrderCreated,
		ActorID:    input.ActorID,
		EntityType: "order",
		EntityID:   created.ID,
		IPAddress:  input.ActorIP,
		Metadata: map[string]any{
			"order_number": created.OrderNumber,
			"total":        created.Total.StringFixed(2),
		},
	})

	result := &CreateOrderResult{OrderID: created.ID, OrderNumber: created.OrderNumber}
	if input.PaymentMethod.RequiresRedirect() && s.checkout != nil {
		payload, err := s.checkout.PrepareCheckout(created)
		if err != nil {
			// The order is already committed; a broken redirect payload is
			// recoverable by retrying checkout, so log instead of failing.
			if s.logg != nil {
				s.logg.Error(s.logg.WithOrderNumber(ctx, created.OrderNumber), "prepare checkout redirect", err)
			}
		} else {
			result.Checkout = payload
		}
	}
	return result, nil
}

func (s *service) createInTx(ctx context.Context, tx *gorm.DB, input CreateOrderInput) (*models.Order, error) {
	repo := s.repo.WithTx(tx)
	now := s.clock()

	cart, err := s.carts.FindActiveWithItems(ctx, tx, input.PharmacyID)
	if err != nil {
		return nil, err
	}
	if cart == nil || len(cart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "active cart is empty")
	}

	shipping, billing, err := s.resolveAddresses(ctx, repo, cart, input)
	if err != nil {
		return nil, err
	}

	productIDs := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := repo.FindProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	subtotal := decimal.Zero
	tax := decimal.Zero
	lines := make([]pricing.CartLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok || !product.Active {
			return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "product is no longer available").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}

		check, err := s.inventory.CheckStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, err
		}
		if !check.Available {
			return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "insufficient stock").
				WithDetails(map[string]any{
					"product_id": item.ProductID.String(),
					"product":    product.Name,
					"message":    check.Message,
				})
		}

		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		tax = tax.Add(lineTotal.Mul(product.TaxRate).Round(2))
		lines = append(lines, pricing.CartLine{
			ProductID:    product.ID,
			Category:     product.Category,
			Manufacturer: product.Manufacturer,
			Agency:       product.Agency,
			BatchNumber:  product.BatchNumber,
			LineTotal:    lineTotal,
		})
	}

	discountAmount := decimal.Zero
	if cart.DiscountCode != nil && *cart.DiscountCode != "" {
		result, err := s.pricing.ValidateCode(ctx, *cart.DiscountCode, subtotal, lines)
		if err != nil {
			return nil, err
		}
		if !result.Valid {
			return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, result.Reason)
		}
		discountAmount = result.Amount
	}

	shippingFee, err := s.settings.ShippingFee(ctx)
	if err != nil {
		return nil, err
	}

	total := subtotal.Add(tax).Sub(discountAmount).Add(shippingFee)

	isCredit := input.UseCredit || input.PaymentMethod == enums.PaymentMethodCredit
	var doctorID *uuid.UUID
	var creditDue *time.Time
	if isCredit {
		eval, err := s.pricing.EvaluateCredit(ctx, input.PharmacyID, total)
		if err != nil {
			return nil, err
		}
		if !eval.Eligible {
			return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, eval.Reason)
		}
		doctorID = &eval.Doctor.ID
		due := eval.DueDate
		creditDue = &due
	}

	number, err := NextOrderNumber(ctx, tx, now)
	if err != nil {
		return nil, err
	}

	paymentStatus := enums.OrderPaymentStatusPending
	if isCredit {
		paymentStatus = enums.OrderPaymentStatusCredit
	}

	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     number,
		PharmacyID:      input.PharmacyID,
		DoctorProfileID: doctorID,
		Status:          enums.OrderStatusPending,
		PaymentStatus:   paymentStatus,
		PaymentMethod:   input.PaymentMethod,
		Subtotal:        subtotal,
		Tax:             tax,
		Discount:        discountAmount,
		Shipping:        shippingFee,
		Total:           total,
		Paid:            decimal.Zero,
		Due:             total,
		DiscountCode:    cart.DiscountCode,
		IsCredit:        isCredit,
		CreditDueDate:   creditDue,
		ShippingAddress: shipping,
		BillingAddress:  billing,
		Notes:           input.Notes,
	}
	if err := repo.CreateOrder(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	items := make([]models.OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		product := products[item.ProductID]
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		items = append(items, models.OrderItem{
			ID:           uuid.New(),
			OrderID:      order.ID,
			ProductID:    product.ID,
			SKU:          product.SKU,
			ProductName:  product.Name,
			Manufacturer: product.Manufacturer,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			LineTotal:    lineTotal,
			Fulfillment:  enums.ItemFulfillmentReserved,
		})
	}
	if err := repo.CreateOrderItems(ctx, items); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
	}
	order.Items = items

	for _, item := range items {
		if err := s.inventory.Reserve(ctx, tx, item.ProductID, item.Quantity, number); err != nil {
			return nil, err
		}
	}

	if isCredit {
		if err := s.pricing.ChargeCredit(ctx, tx, *doctorID, total); err != nil {
			return nil, err
		}
	}

	if cart.DiscountCode != nil && *cart.DiscountCode != "" {
		if err := s.pricing.RedeemCode(ctx, tx, *cart.DiscountCode); err != nil {
			return nil, err
		}
	}

	if err := repo.AppendStatusHistory(ctx, &models.OrderStatusHistory{
		OrderID:  order.ID,
		ToStatus: enums.OrderStatusPending,
		ActorID:  input.ActorID,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
	}

	converted, err := s.carts.MarkConverted(ctx, tx, cart.ID, order.ID)
	if err != nil {
		return nil, err
	}
	if !converted {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart was already converted")
	}

	event := OrderCreatedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		PharmacyID:  order.PharmacyID,
		Total:       order.Total,
		IsCredit:    order.IsCredit,
		Method:      order.PaymentMethod,
		ItemCount:   len(items),
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(input.ActorID),
		Data:          event,
	}); err != nil {
		return nil, err
	}

	return order, nil
}

func (s *service) resolveAddresses(ctx context.Context, repo Repository, cart *models.Cart, input CreateOrderInput) (types.Address, types.Address, error) {
	shipID := input.ShippingAddressID
	if shipID == nil {
		shipID = cart.ShippingAddressID
	}
	if shipID == nil {
		return types.Address{}, types.Address{}, pkgerrors.New(pkgerrors.CodeBusinessRule, "shipping address required")
	}

	shipRecord, err := repo.FindAddress(ctx, *shipID)
	if err != nil {
		return types.Address{}, types.Address{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipping address")
	}
	if shipRecord == nil {
		return types.Address{}, types.Address{}, pkgerrors.New(pkgerrors.CodeNotFound, "shipping address not found")
	}
	shipping := snapshotAddress(shipRecord)

	billID := input.BillingAddressID
	if billID == nil {
		billID = cart.BillingAddressID
	}
	if billID == nil || *billID == *shipID {
		return shipping, shipping, nil
	}

	billRecord, err := repo.FindAddress(ctx, *billID)
	if err != nil {
		return types.Address{}, types.Address{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load billing address")
	}
	if billRecord == nil {
		return types.Address{}, types.Address{}, pkgerrors.New(pkgerrors.CodeNotFound, "billing address not found")
	}
	return shipping, snapshotAddress(billRecord), nil
}

// Transition runs a status change in its own transaction.
func (s *service) Transition(ctx context.Context, input TransitionInput) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.TransitionTx(ctx, tx, input)
	})
	if err != nil {
		return err
	}

	action := enums.AuditActionOrderStatus
	if input.Target == enums.OrderStatusCancelled {
		action = enums.AuditActionOrderCancelled
	}
	s.recordAudit(ctx, audit.Entry{
		Action:     action,
		ActorID:    input.ActorID,
		EntityType: "order",
		EntityID:   input.OrderID,
		IPAddress:  input.ActorIP,
		Metadata: map[string]any{
			"target": input.Target.String(),
			"reason": input.Reason,
		},
	})
	return nil
}

// TransitionTx applies a status change inside the caller's transaction so
// payment flows can compose it with their own writes.
func (s *service) TransitionTx(ctx context.Context, tx *gorm.DB, input TransitionInput) error {
	if !input.Target.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}

	repo := s.repo.WithTx(tx)
	order, err := repo.FindByID(ctx, input.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	if !CanTransition(order.Status, input.Target) {
		return pkgerrors.New(pkgerrors.CodeTransition, "status transition disallowed").
			WithDetails(map[string]any{
				"from":    order.Status.String(),
				"to":      input.Target.String(),
				"allowed": AllowedTargets(order.Status),
			})
	}

	now := s.clock()
	updates := transitionUpdates(input, now)
	ok, err := repo.UpdateStatusGuarded(ctx, order.ID, order.Status, input.Target, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "order status changed concurrently")
	}

	if err := s.applySideEffects(ctx, tx, repo, order, input.Target); err != nil {
		return err
	}

	from := order.Status
	if err := repo.AppendStatusHistory(ctx, &models.OrderStatusHistory{
		OrderID:    order.ID,
		FromStatus: &from,
		ToStatus:   input.Target,
		ActorID:    input.ActorID,
		Notes:      input.Reason,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
	}

	eventType := enums.EventOrderStatusChanged
	if input.Target == enums.OrderStatusCancelled {
		eventType = enums.EventOrderCancelled
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(input.ActorID),
		Data: OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			PharmacyID:  order.PharmacyID,
			FromStatus:  order.Status,
			ToStatus:    input.Target,
			Reason:      input.Reason,
			OccurredAt:  now,
		},
	})
}

func (s *service) applySideEffects(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, target enums.OrderStatus) error {
	switch target {
	case enums.OrderStatusShipped:
		// Reservations become permanent deductions; the fulfillment flag
		// guard makes a repeated call a no-op instead of a double reduce.
		for _, item := range order.Items {
			flipped, err := repo.UpdateItemFulfillment(ctx, item.ID, enums.ItemFulfillmentReserved, enums.ItemFulfillmentFulfilled, nil)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark item fulfilled")
			}
			if !flipped {
				continue
			}
			if err := s.inventory.ReduceReserved(ctx, tx, item.ProductID, item.Quantity, "order", &order.ID, order.OrderNumber); err != nil {
				return err
			}
		}
	case enums.OrderStatusDelivered:
		for _, item := range order.Items {
			qty := item.Quantity
			if _, err := repo.UpdateItemFulfillment(ctx, item.ID, enums.ItemFulfillmentFulfilled, enums.ItemFulfillmentFulfilled, &qty); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record fulfilled quantity")
			}
		}
	case enums.OrderStatusCancelled:
		for _, item := range order.Items {
			flipped, err := repo.UpdateItemFulfillment(ctx, item.ID, enums.ItemFulfillmentReserved, enums.ItemFulfillmentReleased, nil)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark item released")
			}
			if !flipped {
				// Already fulfilled or released; nothing to return to stock.
				continue
			}
			if err := s.inventory.ReleaseReserved(ctx, tx, item.ProductID, item.Quantity, order.OrderNumber); err != nil {
				return err
			}
		}
	}
	return nil
}

func transitionUpdates(input TransitionInput, now time.Time) map[string]any {
	updates := map[string]any{}
	switch input.Target {
	case enums.OrderStatusConfirmed:
		updates["confirmed_at"] = now
	case enums.OrderStatusProcessing:
		updates["processed_at"] = now
	case enums.OrderStatusShipped, enums.OrderStatusOutForDelivery:
		if input.Target == enums.OrderStatusShipped {
			updates["shipped_at"] = now
		}
		if input.TrackingNumber != "" {
			updates["tracking_number"] = input.TrackingNumber
		}
		if input.TrackingURL != "" {
			updates["tracking_url"] = input.TrackingURL
		}
		if input.ExpectedDeliveryDate != nil {
			updates["expected_delivery_date"] = *input.ExpectedDeliveryDate
		}
	case enums.OrderStatusDelivered:
		updates["delivered_at"] = now
	case enums.OrderStatusCancelled:
		updates["cancelled_at"] = now
		updates["cancel_reason"] = input.Reason
		if input.ActorID != nil {
			updates["cancel_actor_id"] = *input.ActorID
		}
	}
	return updates
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	order, err := s.repo.FindByNumber(ctx, number)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, pharmacyID uuid.UUID, params pagination.Params) (*OrderList, error) {
	list, err := s.repo.ListByPharmacy(ctx, pharmacyID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

func (s *service) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	rows, err := s.repo.ListStatusHistory(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list status history")
	}
	return rows, nil
}

func (s *service) recordAudit(ctx context.Context, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, entry)
}

func snapshotAddress(record *models.AddressRecord) types.Address {
	return types.Address{
		Name:       record.Label,
		Line1:      record.Line1,
		Line2:      record.Line2,
		City:       record.City,
		State:      record.State,
		PostalCode: record.PostalCode,
		Country:    record.Country,
		Phone:      record.Phone,
	}
}

func actorRef(actorID *uuid.UUID) *outbox.ActorRef {
	if actorID == nil {
		return nil
	}
	return &outbox.ActorRef{ActorID: *actorID}
}
