package payment

import (
	"context"
	"net/http"
)

// Gateway is the contract every payment processor integration implements.
// All operations are synchronous and surface every failure as a
// *payment.Error; nothing else crosses this boundary.
type Gateway interface {
	Name() string

	// InitiateTransaction validates the order/customer/payment input, creates
	// the vendor-side transaction and persists a local Transaction in status
	// pending. The order_number travels as the vendor external reference and
	// doubles as the idempotency key for retried initiations.
	InitiateTransaction(ctx context.Context, order OrderData, customer CustomerData, pay PaymentData) (*Initiation, error)

	// CheckTransactionStatus is a read-only vendor query. It does not touch
	// the order.
	CheckTransactionStatus(ctx context.Context, transactionID string) (*StatusInfo, error)

	// HandleCallback processes one webhook delivery. Unrecognized event types
	// are acknowledged as no-ops; recognized payment events are re-queried
	// against the vendor API for the authoritative status before anything is
	// written, so a forged or stale payload can never move an order.
	HandleCallback(ctx context.Context, payload []byte) (*CallbackResult, error)

	// CancelTransaction is only legal from the gateway's cancellable states.
	// The local record is consulted first so an obviously terminal
	// transaction is rejected without a vendor call.
	CancelTransaction(ctx context.Context, transactionID, reason string) (*CancelResult, error)

	// RefundTransaction refunds fully (amount nil) or partially. A partial
	// amount must be positive and below the transaction total, checked
	// against the local record before any vendor call.
	RefundTransaction(ctx context.Context, transactionID string, amount *float64, reason string) (*RefundResult, error)

	// FrontendConfig returns the public keys and per-method limits the
	// checkout UI needs. No network calls.
	FrontendConfig(method string) map[string]interface{}

	// VerifyWebhook authenticates an inbound webhook request before its body
	// is processed.
	VerifyWebhook(r *http.Request) error
}

// OrderUpdater persists a canonical payment status onto the owning order and
// appends an audit trail entry, atomically. Implemented by order.StatusUpdater.
type OrderUpdater interface {
	Apply(ctx context.Context, orderNumber string, status Status, details map[string]interface{}) error
}
