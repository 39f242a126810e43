package enums

import "fmt"

// StockMovementType tags each inventory ledger entry with why stock moved.
type StockMovementType string

const (
	StockMovementReservation StockMovementType = "reservation"
	StockMovementFulfillment StockMovementType = "fulfillment"
	StockMovementRelease     StockMovementType = "release"
	StockMovementAdjustment  StockMovementType = "adjustment"
)

var validStockMovementTypes = []StockMovementType{
	StockMovementReservation,
	StockMovementFulfillment,
	StockMovementRelease,
	StockMovementAdjustment,
}

// String implements fmt.Stringer.
func (s StockMovementType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StockMovementType.
func (s StockMovementType) IsValid() bool {
	for _, candidate := range validStockMovementTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStockMovementType converts raw input into a StockMovementType.
func ParseStockMovementType(value string) (StockMovementType, error) {
	for _, candidate := range validStockMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock movement type %q", value)
}
