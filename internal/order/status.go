package order

import "github.com/evoqwell/evoqsite/internal/store"

// CanTransition reports whether an admin may move an order between the two
// statuses. Orders move forward through payment and fulfilment; cancellation
// is allowed any time before fulfilment. Terminal states never change.
func CanTransition(from, to string) bool {
	if from == to {
		return false
	}
	switch from {
	case store.OrderStatusPendingPayment:
		return to == store.OrderStatusPaid || to == store.OrderStatusCancelled
	case store.OrderStatusPaid:
		return to == store.OrderStatusFulfilled || to == store.OrderStatusCancelled
	default:
		return false
	}
}

// ValidStatus reports whether the value names a known order status.
func ValidStatus(status string) bool {
	switch status {
	case store.OrderStatusPendingPayment, store.OrderStatusPaid,
		store.OrderStatusFulfilled, store.OrderStatusCancelled:
		return true
	}
	return false
}
