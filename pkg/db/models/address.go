package models

import (
	"time"

	"github.com/google/uuid"
)

// AddressRecord is a saved address in a pharmacy's address book. Orders copy
// the fields into a snapshot rather than referencing these rows.
type AddressRecord struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	PharmacyID uuid.UUID `gorm:"column:pharmacy_id;type:uuid;not null;index"`
	Label      string    `gorm:"column:label"`
	Line1      string    `gorm:"column:line1;not null"`
	Line2      string    `gorm:"column:line2"`
	City       string    `gorm:"column:city;not null"`
	State      string    `gorm:"column:state"`
	PostalCode string    `gorm:"column:postal_code"`
	Country    string    `gorm:"column:country;not null"`
	Phone      string    `gorm:"column:phone"`
	IsDefault  bool      `gorm:"column:is_default;not null;default:false"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
