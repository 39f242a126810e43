package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/pkg/config"
	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	"github.com/medlinkhq/medsupply-backend/pkg/enums"
	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
)

// CartLine is the slice of a cart item the evaluator needs for scoping.
type CartLine struct {
	ProductID    uuid.UUID
	Category     string
	Manufacturer string
	Agency       string
	BatchNumber  string
	LineTotal    decimal.Decimal
}

// DiscountResult is the outcome of evaluating a code against a cart.
// Business failures come back as Valid=false with a Reason rather than an
// error; errors are reserved for lookup/infrastructure problems.
type DiscountResult struct {
	Valid  bool
	Amount decimal.Decimal
	Reason string
	CodeID uuid.UUID
}

// CreditEvaluation is the outcome of checking doctor-credit eligibility.
type CreditEvaluation struct {
	Eligible bool
	Reason   string
	DueDate  time.Time
	Doctor   *models.DoctorProfile
}

// Service evaluates discount codes and doctor-credit eligibility.
type Service interface {
	ValidateCode(ctx context.Context, code string, cartTotal decimal.Decimal, lines []CartLine) (DiscountResult, error)
	EvaluateCredit(ctx context.Context, pharmacyID uuid.UUID, cartTotal decimal.Decimal) (CreditEvaluation, error)
	RedeemCode(ctx context.Context, tx *gorm.DB, code string) error
	ChargeCredit(ctx context.Context, tx *gorm.DB, doctorID uuid.UUID, amount decimal.Decimal) error
	SettleCredit(ctx context.Context, tx *gorm.DB, doctorID uuid.UUID, amount decimal.Decimal) error
}

type service struct {
	repo  Repository
	cfg   config.PricingConfig
	clock func() time.Time
}

// NewService builds a pricing service. The clock is injectable for tests;
// pass nil for time.Now.
func NewService(repo Repository, cfg config.PricingConfig, clock func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("pricing repository required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &service{repo: repo, cfg: cfg, clock: clock}, nil
}

func (s *service) ValidateCode(ctx context.Context, code string, cartTotal decimal.Decimal, lines []CartLine) (DiscountResult, error) {
	discount, err := s.repo.FindDiscountByCode(ctx, code)
	if err != nil {
		return DiscountResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load discount code")
	}
	if discount == nil {
		return DiscountResult{Reason: "discount code not found"}, nil
	}

	now := s.clock()
	if !discount.Active {
		return DiscountResult{Reason: "discount code is inactive"}, nil
	}
	if discount.StartDate != nil && now.Before(*discount.StartDate) {
		return DiscountResult{Reason: "discount code is not yet active"}, nil
	}
	if discount.EndDate != nil && now.After(*discount.EndDate) {
		return DiscountResult{Reason: "discount code has expired"}, nil
	}
	if discount.UsageLimit != nil && discount.UsedCount >= *discount.UsageLimit {
		return DiscountResult{Reason: "discount code usage limit reached"}, nil
	}
	if cartTotal.LessThan(discount.MinOrderAmount) {
		return DiscountResult{
			Reason: fmt.Sprintf("order total below minimum of %s", discount.MinOrderAmount.StringFixed(2)),
		}, nil
	}

	base := discountBase(discount, lines)
	if base.IsZero() && isScoped(discount) {
		if s.cfg.ZeroMatchZeroDiscount {
			return DiscountResult{Valid: true, Amount: decimal.Zero, CodeID: discount.ID}, nil
		}
		return DiscountResult{Reason: "no cart items qualify for this code"}, nil
	}

	return DiscountResult{
		Valid:  true,
		Amount: computeAmount(discount, base),
		CodeID: discount.ID,
	}, nil
}

func (s *service) EvaluateCredit(ctx context.Context, pharmacyID uuid.UUID, cartTotal decimal.Decimal) (CreditEvaluation, error) {
	doctor, err := s.repo.FindDoctorProfileByPharmacy(ctx, pharmacyID)
	if err != nil {
		return CreditEvaluation{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load doctor profile")
	}
	if doctor == nil {
		return CreditEvaluation{Reason: "no doctor credit profile on file"}, nil
	}
	if !doctor.Verified {
		return CreditEvaluation{Reason: "doctor profile is not verified", Doctor: doctor}, nil
	}

	headroom := doctor.CreditLimit.Sub(doctor.CurrentCredit)
	if cartTotal.GreaterThan(headroom) {
		return CreditEvaluation{
			Reason: fmt.Sprintf("credit headroom %s below order total", headroom.StringFixed(2)),
			Doctor: doctor,
		}, nil
	}

	terms := doctor.PaymentTermsDays
	if terms <= 0 {
		terms = s.cfg.DefaultPaymentTerms
	}
	return CreditEvaluation{
		Eligible: true,
		DueDate:  s.clock().AddDate(0, 0, terms),
		Doctor:   doctor,
	}, nil
}

// RedeemCode bumps the code's usage counter inside the caller's transaction.
// Fails with a conflict when a concurrent redemption took the last slot.
func (s *service) RedeemCode(ctx context.Context, tx *gorm.DB, code string) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for code redemption")
	}
	ok, err := s.repo.WithTx(tx).IncrementUsage(ctx, code)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment discount usage")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "discount code usage limit reached")
	}
	return nil
}

// ChargeCredit raises the doctor's outstanding credit when a credit order is
// accepted. The guarded update keeps current_credit within the limit even
// when two credit orders land at once.
func (s *service) ChargeCredit(ctx context.Context, tx *gorm.DB, doctorID uuid.UUID, amount decimal.Decimal) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for credit charge")
	}
	if amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "credit amount cannot be negative")
	}
	ok, err := s.repo.WithTx(tx).AddDoctorCredit(ctx, doctorID, amount.StringFixed(2))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "charge doctor credit")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeBusinessRule, "doctor credit limit exceeded")
	}
	return nil
}

// SettleCredit lowers outstanding credit when a payment lands against a
// credit order.
func (s *service) SettleCredit(ctx context.Context, tx *gorm.DB, doctorID uuid.UUID, amount decimal.Decimal) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for credit settlement")
	}
	if amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "credit amount cannot be negative")
	}
	ok, err := s.repo.WithTx(tx).ReduceDoctorCredit(ctx, doctorID, amount.StringFixed(2))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle doctor credit")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "outstanding credit below settlement amount")
	}
	return nil
}

// discountBase sums the line totals of items that satisfy every non-empty
// scope dimension. An unscoped code uses the whole cart.
func discountBase(discount *models.DiscountCode, lines []CartLine) decimal.Decimal {
	base := decimal.Zero
	for _, line := range lines {
		if lineInScope(discount, line) {
			base = base.Add(line.LineTotal)
		}
	}
	return base
}

func lineInScope(discount *models.DiscountCode, line CartLine) bool {
	if len(discount.ProductScope) > 0 && !contains(discount.ProductScope, line.ProductID.String()) {
		return false
	}
	if len(discount.CategoryScope) > 0 && !contains(discount.CategoryScope, line.Category) {
		return false
	}
	if len(discount.ManufacturerScope) > 0 && !contains(discount.ManufacturerScope, line.Manufacturer) {
		return false
	}
	if len(discount.AgencyScope) > 0 && !contains(discount.AgencyScope, line.Agency) {
		return false
	}
	if len(discount.BatchScope) > 0 && !contains(discount.BatchScope, line.BatchNumber) {
		return false
	}
	return true
}

func isScoped(discount *models.DiscountCode) bool {
	return len(discount.ProductScope) > 0 ||
		len(discount.CategoryScope) > 0 ||
		len(discount.ManufacturerScope) > 0 ||
		len(discount.AgencyScope) > 0 ||
		len(discount.BatchScope) > 0
}

func computeAmount(discount *models.DiscountCode, base decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch discount.Type {
	case enums.DiscountTypePercentage:
		amount = base.Mul(discount.Value).Div(decimal.NewFromInt(100)).Round(2)
		if discount.MaxDiscountAmount != nil && amount.GreaterThan(*discount.MaxDiscountAmount) {
			amount = *discount.MaxDiscountAmount
		}
	default:
		amount = discount.Value
	}
	// A discount can never exceed what the qualifying items cost.
	if amount.GreaterThan(base) {
		amount = base
	}
	return amount
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
