package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/pkg/enums"
	"github.com/medlinkhq/medsupply-backend/pkg/types"
)

// Order is the durable commercial transaction created from a cart snapshot.
// Monetary invariants: Total = Subtotal + Tax - Discount + Shipping at
// creation, and Due = Total - Paid at all times.
type Order struct {
	ID                   uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber          string                   `gorm:"column:order_number;not null;uniqueIndex"`
	PharmacyID           uuid.UUID                `gorm:"column:pharmacy_id;type:uuid;not null;index"`
	DoctorProfileID      *uuid.UUID               `gorm:"column:doctor_profile_id;type:uuid"`
	Status               enums.OrderStatus        `gorm:"column:status;not null;default:'pending'"`
	PaymentStatus        enums.OrderPaymentStatus `gorm:"column:payment_status;not null;default:'pending'"`
	PaymentMethod        enums.PaymentMethod      `gorm:"column:payment_method;not null"`
	Subtotal             decimal.Decimal          `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax                  decimal.Decimal          `gorm:"column:tax;type:numeric(12,2);not null"`
	Discount             decimal.Decimal          `gorm:"column:discount;type:numeric(12,2);not null"`
	Shipping             decimal.Decimal          `gorm:"column:shipping;type:numeric(12,2);not null"`
	Total                decimal.Decimal          `gorm:"column:total;type:numeric(12,2);not null"`
	Paid                 decimal.Decimal          `gorm:"column:paid;type:numeric(12,2);not null"`
	Due                  decimal.Decimal          `gorm:"column:due;type:numeric(12,2);not null"`
	DiscountCode         *string                  `gorm:"column:discount_code"`
	IsCredit             bool                     `gorm:"column:is_credit;not null;default:false"`
	CreditDueDate        *time.Time               `gorm:"column:credit_due_date"`
	ShippingAddress      types.Address            `gorm:"column:shipping_address;type:jsonb"`
	BillingAddress       types.Address            `gorm:"column:billing_address;type:jsonb"`
	Notes                string                   `gorm:"column:notes"`
	CancelReason         string                   `gorm:"column:cancel_reason"`
	CancelActorID        *uuid.UUID               `gorm:"column:cancel_actor_id;type:uuid"`
	TrackingNumber       *string                  `gorm:"column:tracking_number"`
	TrackingURL          *string                  `gorm:"column:tracking_url"`
	ExpectedDeliveryDate *time.Time               `gorm:"column:expected_delivery_date"`
	ConfirmedAt          *time.Time               `gorm:"column:confirmed_at"`
	ProcessedAt          *time.Time               `gorm:"column:processed_at"`
	ShippedAt            *time.Time               `gorm:"column:shipped_at"`
	DeliveredAt          *time.Time               `gorm:"column:delivered_at"`
	CancelledAt          *time.Time               `gorm:"column:cancelled_at"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt            gorm.DeletedAt           `gorm:"column:deleted_at;index"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}
