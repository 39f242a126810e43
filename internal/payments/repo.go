package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	"github.com/medlinkhq/medsupply-backend/pkg/enums"
)

// Repository defines persistence operations for payments and the monetary
// fields they maintain on orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ApplyPaymentToOrder(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (bool, error)
	ApplyRefundToOrder(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (bool, error)
	ApplyRefundToPayment(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal) (bool, error)
	SetOrderPaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderPaymentStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ApplyPaymentToOrder moves paid/due by amount and recomputes the payment
// status in one guarded statement. The due >= amount guard keeps paid from
// ever exceeding total, even under concurrent duplicate payments.
func (r *repository) ApplyPaymentToOrder(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (bool, error) {
	amt := amount.StringFixed(2)
	res := r.db.WithContext(ctx).Exec(`
		UPDATE orders
		SET paid = paid + ?,
			due = due - ?,
			payment_status = CASE WHEN due - ? <= 0 THEN 'paid' ELSE 'partial' END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND due >= ?
	`, amt, amt, amt, orderID, amt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ApplyRefundToOrder reverses a payment's effect on the order totals. A credit
// order drained back to zero returns to 'credit', not 'pending'; its balance
// is still owed against the doctor's credit line.
func (r *repository) ApplyRefundToOrder(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (bool, error) {
	amt := amount.StringFixed(2)
	res := r.db.WithContext(ctx).Exec(`
		UPDATE orders
		SET paid = paid - ?,
			due = due + ?,
			payment_status = CASE
				WHEN paid - ? <= 0 THEN CASE WHEN is_credit THEN 'credit' ELSE 'pending' END
				WHEN due + ? > 0 THEN 'partial'
				ELSE 'paid'
			END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND paid >= ?
	`, amt, amt, amt, amt, orderID, amt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ApplyRefundToPayment accumulates refunded_amount on the original payment,
// rejecting any refund that would push the cumulative total past the
// original amount.
func (r *repository) ApplyRefundToPayment(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal) (bool, error) {
	amt := amount.StringFixed(2)
	res := r.db.WithContext(ctx).Exec(`
		UPDATE payments
		SET refunded_amount = refunded_amount + ?,
			status = CASE WHEN refunded_amount + ? >= amount THEN 'refunded' ELSE 'partial_refund' END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
			AND status IN ('completed', 'partial_refund')
			AND refunded_amount + ? <= amount
	`, amt, amt, paymentID, amt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetOrderPaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderPaymentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("payment_status", status).Error
}
