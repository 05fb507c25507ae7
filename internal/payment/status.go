package payment

import "strings"

// Vendor-native status tables. Unknown statuses must never crash processing:
// they degrade to pending, meaning "unresolved, recheck later".

var mercadoPagoStatusMap = map[string]Status{
	"pending":      StatusPending,
	"approved":     StatusApproved,
	"authorized":   StatusAuthorized,
	"in_process":   StatusInProcess,
	"in_mediation": StatusInDispute,
	"rejected":     StatusFailed,
	"cancelled":    StatusCancelled,
	"refunded":     StatusRefunded,
	"charged_back": StatusChargedBack,
}

var payPalStatusMap = map[string]Status{
	"CREATED":               StatusPending,
	"SAVED":                 StatusPending,
	"PENDING":               StatusPending,
	"PAYER_ACTION_REQUIRED": StatusPending,
	"APPROVED":              StatusAuthorized,
	"COMPLETED":             StatusApproved,
	"CAPTURED":              StatusApproved,
	"VOIDED":                StatusCancelled,
	"DENIED":                StatusFailed,
	"EXPIRED":               StatusFailed,
	"FAILED":                StatusFailed,
	"REFUNDED":              StatusRefunded,
	"PARTIALLY_REFUNDED":    StatusPartiallyRefunded,
}

// MapMercadoPagoStatus maps a MercadoPago payment status to canonical form.
func MapMercadoPagoStatus(raw string) Status {
	if s, ok := mercadoPagoStatusMap[raw]; ok {
		return s
	}
	return StatusPending
}

// MapPayPalStatus maps a PayPal order/capture status to canonical form.
// PayPal statuses are uppercase on the wire but the lookup is forgiving.
func MapPayPalStatus(raw string) Status {
	if s, ok := payPalStatusMap[strings.ToUpper(raw)]; ok {
		return s
	}
	return StatusPending
}
