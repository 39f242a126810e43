package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/internal/audit"
	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	"github.com/medlinkhq/medsupply-backend/pkg/enums"
	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
	"github.com/medlinkhq/medsupply-backend/pkg/logger"
	"github.com/medlinkhq/medsupply-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type creditSettler interface {
	SettleCredit(ctx context.Context, tx *gorm.DB, doctorID uuid.UUID, amount decimal.Decimal) error
}

type auditRecorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// AddPaymentInput describes a payment to record against an order.
type AddPaymentInput struct {
	OrderID       uuid.UUID
	Amount        decimal.Decimal
	Method        enums.PaymentMethod
	TransactionID *string
	Notes         string
	ActorID       *uuid.UUID
	ActorIP       string

	// GatewayStatusCode and GatewayPayload are set when the payment comes
	// in through a gateway webhook rather than an operator.
	GatewayStatusCode *int
	GatewayPayload    []byte
}

// RefundInput describes a refund against a previously recorded payment.
type RefundInput struct {
	PaymentID uuid.UUID
	Amount    *decimal.Decimal
	Reason    string
	ActorID   *uuid.UUID
	ActorIP   string
}

// PaymentRecordedEvent is the outbox payload for a recorded payment.
type PaymentRecordedEvent struct {
	PaymentID   uuid.UUID           `json:"paymentId"`
	OrderID     uuid.UUID           `json:"orderId"`
	OrderNumber string              `json:"orderNumber"`
	Amount      decimal.Decimal     `json:"amount"`
	Method      enums.PaymentMethod `json:"method"`
	OrderPaid   bool                `json:"orderPaid"`
}

// PaymentRefundedEvent is the outbox payload for a processed refund.
type PaymentRefundedEvent struct {
	RefundID          uuid.UUID       `json:"refundId"`
	OriginalPaymentID uuid.UUID       `json:"originalPaymentId"`
	OrderID           uuid.UUID       `json:"orderId"`
	Amount            decimal.Decimal `json:"amount"`
	Reason            string          `json:"reason,omitempty"`
}

// Service records payments and refunds against orders, keeping the order's
// paid/due breakdown consistent with the payment rows.
type Service interface {
	AddPayment(ctx context.Context, input AddPaymentInput) (*models.Payment, error)
	AddPaymentTx(ctx context.Context, tx *gorm.DB, input AddPaymentInput) (*models.Payment, error)
	ProcessRefund(ctx context.Context, input RefundInput) (*models.Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
}

// Deps carries optional collaborators for NewService.
type Deps struct {
	Credit creditSettler
	Audit  auditRecorder
	Logger *logger.Logger
	Clock  func() time.Time
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	credit creditSettler
	audit  auditRecorder
	logg   *logger.Logger
	clock  func() time.Time
}

// NewService builds the payments service.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, deps Deps) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: publisher,
		credit: deps.Credit,
		audit:  deps.Audit,
		logg:   deps.Logger,
		clock:  clock,
	}, nil
}

func (s *service) AddPayment(ctx context.Context, input AddPaymentInput) (*models.Payment, error) {
	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		p, txErr := s.AddPaymentTx(ctx, tx, input)
		if txErr != nil {
			return txErr
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			Action:     enums.AuditActionPaymentAdded,
			ActorID:    input.ActorID,
			EntityType: "payment",
			EntityID:   payment.ID,
			Metadata: map[string]any{
				"order_id": input.OrderID.String(),
				"amount":   input.Amount.StringFixed(2),
				"method":   input.Method.String(),
			},
			IPAddress: input.ActorIP,
		})
	}
	return payment, nil
}

// AddPaymentTx records a completed payment inside the caller's transaction.
// The amount must be positive and must not exceed the order's outstanding
// due; the guarded order update enforces the ceiling even when two payments
// race on the same order.
func (s *service) AddPaymentTx(ctx context.Context, tx *gorm.DB, input AddPaymentInput) (*models.Payment, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", input.Method))
	}

	repo := s.repo.WithTx(tx)

	order, err := repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Status == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "cannot record payment on a cancelled order")
	}
	if input.Amount.GreaterThan(order.Due) {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "payment exceeds amount due").
			WithDetails(map[string]any{
				"due":    order.Due.StringFixed(2),
				"amount": input.Amount.StringFixed(2),
			})
	}

	payment := &models.Payment{
		ID:                uuid.New(),
		OrderID:           order.ID,
		Amount:            input.Amount,
		Method:            input.Method,
		Status:            enums.PaymentEntryStatusCompleted,
		TransactionID:     input.TransactionID,
		Notes:             input.Notes,
		GatewayStatusCode: input.GatewayStatusCode,
		GatewayPayload:    input.GatewayPayload,
	}
	if err := repo.CreatePayment(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}

	ok, err := repo.ApplyPaymentToOrder(ctx, order.ID, input.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply payment to order")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order balance changed concurrently")
	}

	if order.IsCredit && order.DoctorProfileID != nil && s.credit != nil {
		if err := s.credit.SettleCredit(ctx, tx, *order.DoctorProfileID, input.Amount); err != nil {
			return nil, err
		}
	}

	event := PaymentRecordedEvent{
		PaymentID:   payment.ID,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      input.Amount,
		Method:      input.Method,
		OrderPaid:   !input.Amount.LessThan(order.Due),
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentRecorded,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         actorRef(input.ActorID),
		Data:          event,
	}); err != nil {
		return nil, err
	}

	return payment, nil
}

// ProcessRefund creates a negative payment row tied to the original and
// walks the refunded amount back out of the order's paid total. Partial
// refunds may repeat until the original amount is exhausted.
func (s *service) ProcessRefund(ctx context.Context, input RefundInput) (*models.Payment, error) {
	var refund *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		original, err := repo.FindPayment(ctx, input.PaymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		if original == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		if original.Status != enums.PaymentEntryStatusCompleted &&
			original.Status != enums.PaymentEntryStatusPartialRefund {
			return pkgerrors.New(pkgerrors.CodeBusinessRule, "only completed payments can be refunded")
		}

		amount := original.Amount.Sub(original.RefundedAmount)
		if input.Amount != nil {
			amount = *input.Amount
		}
		if !amount.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
		}
		if amount.Add(original.RefundedAmount).GreaterThan(original.Amount) {
			return pkgerrors.New(pkgerrors.CodeBusinessRule, "refund exceeds original payment amount").
				WithDetails(map[string]any{
					"original":         original.Amount.StringFixed(2),
					"already_refunded": original.RefundedAmount.StringFixed(2),
					"requested":        amount.StringFixed(2),
				})
		}

		ok, err := repo.ApplyRefundToPayment(ctx, original.ID, amount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update refunded amount")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment was refunded concurrently")
		}

		ok, err = repo.ApplyRefundToOrder(ctx, original.OrderID, amount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply refund to order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order balance changed concurrently")
		}

		row := &models.Payment{
			ID:                uuid.New(),
			OrderID:           original.OrderID,
			Amount:            amount.Neg(),
			Method:            original.Method,
			Status:            enums.PaymentEntryStatusCompleted,
			RefundOfPaymentID: &original.ID,
			Notes:             input.Reason,
		}
		if err := repo.CreatePayment(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund entry")
		}
		refund = row

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRefunded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   original.ID,
			Actor:         actorRef(input.ActorID),
			Data: PaymentRefundedEvent{
				RefundID:          row.ID,
				OriginalPaymentID: original.ID,
				OrderID:           original.OrderID,
				Amount:            amount,
				Reason:            input.Reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			Action:     enums.AuditActionPaymentRefund,
			ActorID:    input.ActorID,
			EntityType: "payment",
			EntityID:   input.PaymentID,
			Metadata: map[string]any{
				"refund_id": refund.ID.String(),
				"amount":    refund.Amount.Neg().StringFixed(2),
				"reason":    input.Reason,
			},
			IPAddress: input.ActorIP,
		})
	}
	return refund, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return rows, nil
}

func actorRef(actorID *uuid.UUID) *outbox.ActorRef {
	if actorID == nil {
		return nil
	}
	return &outbox.ActorRef{ActorID: *actorID}
}
