package models

// OrderSequence serializes same-day order numbering. One row per day key
// (YYMMDD); the counter is advanced with an atomic upsert.
type OrderSequence struct {
	DayKey  string `gorm:"column:day_key;primaryKey"`
	Counter int    `gorm:"column:counter;not null;default:0"`
}
