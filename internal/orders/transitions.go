package orders

import "github.com/medlinkhq/medsupply-backend/pkg/enums"

// transitionTable maps each order status to the statuses it may move to.
// Terminal states (cancelled, refunded) have no outgoing edges.
var transitionTable = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending: {
		enums.OrderStatusConfirmed,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusConfirmed: {
		enums.OrderStatusProcessing,
		enums.OrderStatusPacked,
		enums.OrderStatusShipped,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusProcessing: {
		enums.OrderStatusPacked,
		enums.OrderStatusShipped,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusPacked: {
		enums.OrderStatusShipped,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusDelivered,
		enums.OrderStatusRefunded,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusOutForDelivery: {
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusDelivered: {
		enums.OrderStatusReturned,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusReturned: {
		enums.OrderStatusRefunded,
	},
}

// CanTransition reports whether the status change is allowed.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, target := range transitionTable[from] {
		if target == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the statuses reachable from the given status.
func AllowedTargets(from enums.OrderStatus) []enums.OrderStatus {
	targets := transitionTable[from]
	out := make([]enums.OrderStatus, len(targets))
	copy(out, targets)
	return out
}
