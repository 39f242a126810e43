package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DoctorProfile tracks a prescriber's credit line.
// Invariant: CurrentCredit <= CreditLimit whenever a credit order is accepted.
type DoctorProfile struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	PharmacyID         uuid.UUID       `gorm:"column:pharmacy_id;type:uuid;not null;index"`
	Name               string          `gorm:"column:name;not null"`
	RegistrationNumber string          `gorm:"column:registration_number"`
	Verified           bool            `gorm:"column:verified;not null;default:false"`
	CreditLimit        decimal.Decimal `gorm:"column:credit_limit;type:numeric(12,2);not null;default:0"`
	CurrentCredit      decimal.Decimal `gorm:"column:current_credit;type:numeric(12,2);not null;default:0"`
	PaymentTermsDays   int             `gorm:"column:payment_terms_days;not null;default:30"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
