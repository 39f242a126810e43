package payhere

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/internal/audit"
	"github.com/medlinkhq/medsupply-backend/internal/orders"
	"github.com/medlinkhq/medsupply-backend/internal/payments"
	"github.com/medlinkhq/medsupply-backend/pkg/config"
	"github.com/medlinkhq/medsupply-backend/pkg/db"
	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	"github.com/medlinkhq/medsupply-backend/pkg/enums"
	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
	"github.com/medlinkhq/medsupply-backend/pkg/logger"
	"github.com/medlinkhq/medsupply-backend/pkg/outbox"
)

// Gateway status codes carried in the notify payload.
const (
	StatusSuccess    = 2
	StatusPending    = 0
	StatusCancelled  = -1
	StatusFailed     = -2
	StatusChargeback = -3
)

// paymentTxnIndex is the unique index that makes notify replays harmless.
const paymentTxnIndex = "ux_payments_transaction_id"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderGateway interface {
	GetByNumber(ctx context.Context, number string) (*models.Order, error)
	TransitionTx(ctx context.Context, tx *gorm.DB, input orders.TransitionInput) error
}

type paymentGateway interface {
	AddPaymentTx(ctx context.Context, tx *gorm.DB, input payments.AddPaymentInput) (*models.Payment, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditRecorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Notification is the decoded server-to-server notify payload. Amount is kept
// as the raw echoed string because it participates in the signature.
type Notification struct {
	MerchantID    string
	OrderNumber   string
	PaymentID     string
	Amount        string
	Currency      string
	StatusCode    int
	MD5Sig        string
	Method        string
	StatusMessage string
	Raw           []byte
}

// ServiceParams carries the webhook service dependencies.
type ServiceParams struct {
	Config            config.PayHereConfig
	Orders            orderGateway
	Payments          paymentGateway
	PaymentsRepo      payments.Repository
	Outbox            outboxPublisher
	TransactionRunner txRunner
	Guard             *IdempotencyGuard
	Audit             auditRecorder
	Logger            *logger.Logger
}

// Service reconciles gateway notifications against orders. A notification is
// acknowledged once its outcome is durable; replays are absorbed by the
// transaction id unique index.
type Service struct {
	cfg      config.PayHereConfig
	orders   orderGateway
	payments paymentGateway
	repo     payments.Repository
	outbox   outboxPublisher
	tx       txRunner
	guard    *IdempotencyGuard
	audit    auditRecorder
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config.MerchantID == "" || params.Config.MerchantSecret == "" {
		return nil, fmt.Errorf("payhere merchant credentials required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders gateway required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments gateway required")
	}
	if params.PaymentsRepo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{
		cfg:      params.Config,
		orders:   params.Orders,
		payments: params.Payments,
		repo:     params.PaymentsRepo,
		outbox:   params.Outbox,
		tx:       params.TransactionRunner,
		guard:    params.Guard,
		audit:    params.Audit,
		logg:     params.Logger,
	}, nil
}

// HandleNotify verifies and applies one gateway notification.
//
// Verification failures surface as coded errors so the transport layer can
// refuse the delivery without acknowledging it. Once the payload is verified
// and the order resolved, processing failures are logged and swallowed: the
// gateway retries on anything but an ack, and a permanently broken payload
// must not retry forever.
func (s *Service) HandleNotify(ctx context.Context, n Notification) error {
	if n.MerchantID != s.cfg.MerchantID {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown merchant id")
	}
	statusCode := strconv.Itoa(n.StatusCode)
	if !VerifyMD5Sig(n.MerchantID, n.OrderNumber, n.Amount, n.Currency, statusCode, s.cfg.MerchantSecret, n.MD5Sig) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "notify signature mismatch")
	}

	if s.guard != nil && n.PaymentID != "" {
		seen, err := s.guard.CheckAndMark(ctx, guardID(n))
		if err == nil && seen {
			s.debug(ctx, n, "duplicate notify short-circuited")
			return nil
		}
		// A guard error falls through to the database path.
	}

	order, err := s.orders.GetByNumber(ctx, n.OrderNumber)
	if err != nil {
		s.unmark(ctx, n)
		return err
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			Action:     enums.AuditActionGatewayNotify,
			EntityType: "order",
			EntityID:   order.ID,
			Metadata: map[string]any{
				"order_number": n.OrderNumber,
				"payment_id":   n.PaymentID,
				"status_code":  n.StatusCode,
				"amount":       n.Amount,
			},
		})
	}

	switch n.StatusCode {
	case StatusSuccess:
		err = s.applySuccess(ctx, order, n)
	case StatusPending:
		err = s.repo.SetOrderPaymentStatus(ctx, order.ID, enums.OrderPaymentStatusPending)
	case StatusCancelled, StatusFailed, StatusChargeback:
		err = s.applyFailure(ctx, order, n)
	default:
		s.warn(ctx, n, fmt.Errorf("unknown status code %d", n.StatusCode))
		return nil
	}

	if err != nil {
		if db.IsUniqueViolation(err, paymentTxnIndex) {
			s.debug(ctx, n, "notify replay absorbed by transaction id index")
			return nil
		}
		s.unmark(ctx, n)
		s.warn(ctx, n, err)
	}
	return nil
}

func (s *Service) applySuccess(ctx context.Context, order *models.Order, n Notification) error {
	amount, err := decimal.NewFromString(n.Amount)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse notify amount")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txnID := n.PaymentID
		statusCode := n.StatusCode
		payment, err := s.payments.AddPaymentTx(ctx, tx, payments.AddPaymentInput{
			OrderID:           order.ID,
			Amount:            amount,
			Method:            enums.PaymentMethodPayHere,
			TransactionID:     &txnID,
			GatewayStatusCode: &statusCode,
			GatewayPayload:    n.Raw,
		})
		if err != nil {
			return err
		}

		// A fully settled pending order moves straight to confirmed.
		if order.Status == enums.OrderStatusPending && !amount.LessThan(order.Due) {
			if err := s.orders.TransitionTx(ctx, tx, orders.TransitionInput{
				OrderID: order.ID,
				Target:  enums.OrderStatusConfirmed,
				Reason:  "payment received",
			}); err != nil {
				return err
			}
		}
		_ = payment
		return nil
	})
}

func (s *Service) applyFailure(ctx context.Context, order *models.Order, n Notification) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.SetOrderPaymentStatus(ctx, order.ID, enums.OrderPaymentStatusFailed); err != nil {
			return err
		}

		if order.Status == enums.OrderStatusPending {
			if err := s.orders.TransitionTx(ctx, tx, orders.TransitionInput{
				OrderID: order.ID,
				Target:  enums.OrderStatusCancelled,
				Reason:  failureReason(n.StatusCode),
			}); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: map[string]any{
				"order_number": order.OrderNumber,
				"status_code":  n.StatusCode,
				"payment_id":   n.PaymentID,
			},
		})
	})
}

// guardID scopes the replay mark per lifecycle stage. The gateway reuses one
// payment_id across the pending, success and failure notifications of a
// single payment, so a pending mark must not swallow the later success.
func guardID(n Notification) string {
	return n.PaymentID + ":" + strconv.Itoa(n.StatusCode)
}

func failureReason(statusCode int) string {
	switch statusCode {
	case StatusCancelled:
		return "payment cancelled at gateway"
	case StatusChargeback:
		return "payment charged back"
	default:
		return "payment failed at gateway"
	}
}

// unmark releases the replay guard so the gateway's retry is not dropped.
func (s *Service) unmark(ctx context.Context, n Notification) {
	if s.guard == nil || n.PaymentID == "" {
		return
	}
	if err := s.guard.Delete(ctx, guardID(n)); err != nil && s.logg != nil {
		s.logg.Error(ctx, "release notify idempotency mark", err)
	}
}

func (s *Service) warn(ctx context.Context, n Notification, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_number": n.OrderNumber,
		"payment_id":   n.PaymentID,
		"status_code":  n.StatusCode,
	})
	s.logg.Error(logCtx, "process gateway notify", err)
}

func (s *Service) debug(ctx context.Context, n Notification, msg string) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_number": n.OrderNumber,
		"payment_id":   n.PaymentID,
	})
	s.logg.Info(logCtx, msg)
}
