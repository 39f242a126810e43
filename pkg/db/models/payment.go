package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medlinkhq/medsupply-backend/pkg/enums"
)

// Payment is one money movement on an order. Refunds are stored as
// negative-amount rows referencing the original payment. The unique index on
// transaction_id is the idempotence boundary for gateway webhook delivery.
type Payment struct {
	ID                uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID                `gorm:"column:order_id;type:uuid;not null;index"`
	Amount            decimal.Decimal          `gorm:"column:amount;type:numeric(12,2);not null"`
	Method            enums.PaymentMethod      `gorm:"column:method;not null"`
	Status            enums.PaymentEntryStatus `gorm:"column:status;not null;default:'pending'"`
	TransactionID     *string                  `gorm:"column:transaction_id;uniqueIndex"`
	RefundOfPaymentID *uuid.UUID               `gorm:"column:refund_of_payment_id;type:uuid"`
	RefundedAmount    decimal.Decimal          `gorm:"column:refunded_amount;type:numeric(12,2);not null;default:0"`
	GatewayStatusCode *int                     `gorm:"column:gateway_status_code"`
	GatewayPayload    json.RawMessage          `gorm:"column:gateway_payload;type:jsonb"`
	Notes             string                   `gorm:"column:notes"`
	CreatedAt         time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
