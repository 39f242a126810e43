package enums

import "fmt"

// PaymentEntryStatus tracks the lifecycle of a single payment row.
type PaymentEntryStatus string

const (
	PaymentEntryStatusPending       PaymentEntryStatus = "pending"
	PaymentEntryStatusCompleted     PaymentEntryStatus = "completed"
	PaymentEntryStatusFailed        PaymentEntryStatus = "failed"
	PaymentEntryStatusRefunded      PaymentEntryStatus = "refunded"
	PaymentEntryStatusPartialRefund PaymentEntryStatus = "partial_refund"
)

var validPaymentEntryStatuses = []PaymentEntryStatus{
	PaymentEntryStatusPending,
	PaymentEntryStatusCompleted,
	PaymentEntryStatusFailed,
	PaymentEntryStatusRefunded,
	PaymentEntryStatusPartialRefund,
}

// String implements fmt.Stringer.
func (p PaymentEntryStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentEntryStatus.
func (p PaymentEntryStatus) IsValid() bool {
	for _, candidate := range validPaymentEntryStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentEntryStatus converts raw input into a PaymentEntryStatus.
func ParsePaymentEntryStatus(value string) (PaymentEntryStatus, error) {
	for _, candidate := range validPaymentEntryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment entry status %q", value)
}
