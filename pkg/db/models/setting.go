package models

import "time"

// Setting is a key/value row for runtime-tunable configuration such as the
// flat shipping fee.
type Setting struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
