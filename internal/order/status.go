package order

import "taverna-be/internal/payment"

// Which order state each canonical payment state lands the order in.
// Fulfilment states (shipped, delivered) are never produced by payments.
var paymentToOrderStatus = map[payment.Status]Status{
	payment.StatusPending:           StatusPending,
	payment.StatusInProcess:         StatusPending,
	payment.StatusAuthorized:        StatusProcessing,
	payment.StatusApproved:          StatusProcessing,
	payment.StatusFailed:            StatusFailed,
	payment.StatusCancelled:         StatusCancelled,
	payment.StatusRefunded:          StatusRefunded,
	payment.StatusPartiallyRefunded: StatusPartiallyRefunded,
	payment.StatusChargedBack:       StatusDisputed,
	payment.StatusInDispute:         StatusDisputed,
}

// Payment statuses that never move again once applied to an order.
// partially_refunded is not in the set: further refunds may complete it.
var terminalPaymentStatuses = map[payment.Status]bool{
	payment.StatusRefunded:    true,
	payment.StatusCancelled:   true,
	payment.StatusChargedBack: true,
}

// paymentTransitionAllowed rejects writes that would pull an order back out
// of a terminal payment state, and constrains partially_refunded to the
// refund-completion path.
func paymentTransitionAllowed(from, to payment.Status) bool {
	if terminalPaymentStatuses[from] {
		return false
	}
	if from == payment.StatusPartiallyRefunded {
		return to == payment.StatusPartiallyRefunded || to == payment.StatusRefunded
	}
	return true
}

// FromPaymentStatus maps a canonical payment status onto the order state it
// implies. An unmapped status leaves the order pending rather than guessing.
func FromPaymentStatus(s payment.Status) Status {
	if out, ok := paymentToOrderStatus[s]; ok {
		return out
	}
	return StatusPending
}
