package pricing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
)

// Repository defines persistence operations for discount codes and doctor
// credit profiles.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindDiscountByCode(ctx context.Context, code string) (*models.DiscountCode, error)
	FindDoctorProfile(ctx context.Context, doctorID uuid.UUID) (*models.DoctorProfile, error)
	FindDoctorProfileByPharmacy(ctx context.Context, pharmacyID uuid.UUID) (*models.DoctorProfile, error)
	IncrementUsage(ctx context.Context, code string) (bool, error)
	AddDoctorCredit(ctx context.Context, doctorID uuid.UUID, amount string) (bool, error)
	ReduceDoctorCredit(ctx context.Context, doctorID uuid.UUID, amount string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a pricing repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindDiscountByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	var discount models.DiscountCode
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&discount).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &discount, nil
}

func (r *repository) FindDoctorProfile(ctx context.Context, doctorID uuid.UUID) (*models.DoctorProfile, error) {
	var doctor models.DoctorProfile
	err := r.db.WithContext(ctx).Where("id = ?", doctorID).First(&doctor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doctor, nil
}

func (r *repository) FindDoctorProfileByPharmacy(ctx context.Context, pharmacyID uuid.UUID) (*models.DoctorProfile, error) {
	var doctor models.DoctorProfile
	err := r.db.WithContext(ctx).Where("pharmacy_id = ?", pharmacyID).First(&doctor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doctor, nil
}

// IncrementUsage bumps used_count only while the usage limit holds, so two
// concurrent redemptions cannot both take the last slot.
func (r *repository) IncrementUsage(ctx context.Context, code string) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE discount_codes
		SET used_count = used_count + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE code = ? AND (usage_limit IS NULL OR used_count < usage_limit)
	`, code)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AddDoctorCredit increments current_credit while keeping it under the limit.
func (r *repository) AddDoctorCredit(ctx context.Context, doctorID uuid.UUID, amount string) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE doctor_profiles
		SET current_credit = current_credit + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND current_credit + ? <= credit_limit
	`, amount, doctorID, amount)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReduceDoctorCredit decrements current_credit, never below zero.
func (r *repository) ReduceDoctorCredit(ctx context.Context, doctorID uuid.UUID, amount string) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE doctor_profiles
		SET current_credit = current_credit - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND current_credit >= ?
	`, amount, doctorID, amount)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
