package enums

import "fmt"

// ItemFulfillment records what happened to the stock reserved for an order
// item. It is the guard that keeps release/reduce idempotent: an item's
// reservation can be converted or returned exactly once.
type ItemFulfillment string

const (
	ItemFulfillmentReserved  ItemFulfillment = "reserved"
	ItemFulfillmentFulfilled ItemFulfillment = "fulfilled"
	ItemFulfillmentReleased  ItemFulfillment = "released"
)

var validItemFulfillments = []ItemFulfillment{
	ItemFulfillmentReserved,
	ItemFulfillmentFulfilled,
	ItemFulfillmentReleased,
}

// String implements fmt.Stringer.
func (i ItemFulfillment) String() string {
	return string(i)
}

// IsValid reports whether the value is a known ItemFulfillment.
func (i ItemFulfillment) IsValid() bool {
	for _, candidate := range validItemFulfillments {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseItemFulfillment converts raw input into an ItemFulfillment.
func ParseItemFulfillment(value string) (ItemFulfillment, error) {
	for _, candidate := range validItemFulfillments {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item fulfillment state %q", value)
}
