package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medlinkhq/medsupply-backend/pkg/enums"
)

// CreateOrderInput carries everything the orchestrator needs to place an
// order from the pharmacy's active cart.
type CreateOrderInput struct {
	PharmacyID        uuid.UUID
	PaymentMethod     enums.PaymentMethod
	ShippingAddressID *uuid.UUID
	BillingAddressID  *uuid.UUID
	UseCredit         bool
	Notes             string
	ActorID           *uuid.UUID
	ActorIP           string
}

// CheckoutRedirect is the gateway handoff returned for redirect-based
// payment methods.
type CheckoutRedirect struct {
	URL    string            `json:"url"`
	Method string            `json:"method"`
	Fields map[string]string `json:"fields"`
}

// CreateOrderResult bundles the committed order with the optional checkout
// redirect payload.
type CreateOrderResult struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	Checkout    *CheckoutRedirect `json:"checkout,omitempty"`
}

// TransitionInput captures a requested status change. Tracking fields are
// only persisted on shipment-related targets.
type TransitionInput struct {
	OrderID              uuid.UUID
	Target               enums.OrderStatus
	ActorID              *uuid.UUID
	Reason               string
	ActorIP              string
	TrackingNumber       string
	TrackingURL          string
	ExpectedDeliveryDate *time.Time
}

// OrderCreatedEvent is the outbox payload for a freshly placed order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID           `json:"order_id"`
	OrderNumber string              `json:"order_number"`
	PharmacyID  uuid.UUID           `json:"pharmacy_id"`
	Total       decimal.Decimal     `json:"total"`
	IsCredit    bool                `json:"is_credit"`
	Method      enums.PaymentMethod `json:"payment_method"`
	ItemCount   int                 `json:"item_count"`
}

// OrderStatusChangedEvent is the outbox payload for a status transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	PharmacyID  uuid.UUID         `json:"pharmacy_id"`
	FromStatus  enums.OrderStatus `json:"from_status"`
	ToStatus    enums.OrderStatus `json:"to_status"`
	Reason      string            `json:"reason,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}
