package payment

import (
	"encoding/json"
	"time"
)

// Status is the canonical, gateway-independent transaction state. It is only
// ever produced by the per-gateway status mappers.
type Status string

const (
	StatusPending           Status = "pending"
	StatusAuthorized        Status = "authorized"
	StatusApproved          Status = "approved"
	StatusInProcess         Status = "in_process"
	StatusInDispute         Status = "in_dispute"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
	StatusChargedBack       Status = "charged_back"
)

// Transaction tracks a vendor-owned payment locally. additional_data is an
// append-only JSON blob of capture ids, refund ids, QR codes and the like.
type Transaction struct {
	ID             int64
	OrderID        uint
	OrderNumber    string
	Gateway        string
	TransactionID  string
	Status         Status
	RawStatus      string
	Amount         float64
	Currency       string
	PaymentMethod  string
	AdditionalData json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderData is the order snapshot checkout hands to a gateway.
type OrderData struct {
	ID          uint
	OrderNumber string
	Total       float64
	Items       []OrderItem
}

type OrderItem struct {
	Name        string
	Description string
	Price       float64
	Quantity    int
}

type CustomerData struct {
	Name          string
	Email         string
	Document      string
	Phone         string
	PhoneAreaCode string
	ZipCode       string
	Street        string
	Number        string
	City          string
	State         string
}

type PaymentData struct {
	Method       string
	Installments int
	CardToken    string
	CardBrand    string
}

// Initiation is the continuation data returned by InitiateTransaction:
// a redirect URL for browser flows, or a QR payload for PIX-style flows.
type Initiation struct {
	TransactionID string `json:"transaction_id"`
	Status        Status `json:"status"`
	RedirectURL   string `json:"redirect_url,omitempty"`
	QRCode        string `json:"qr_code,omitempty"`
	QRCodeText    string `json:"qr_code_text,omitempty"`
}

// StatusInfo is the result of a pull-only status check. It never mutates the
// order.
type StatusInfo struct {
	TransactionID     string   `json:"transaction_id"`
	PaymentID         string   `json:"payment_id,omitempty"`
	Status            Status   `json:"status"`
	RawStatus         string   `json:"raw_status"`
	Amount            float64  `json:"amount,omitempty"`
	RefundedAmount    float64  `json:"refunded_amount,omitempty"`
	Currency          string   `json:"currency,omitempty"`
	ExternalReference string   `json:"external_reference,omitempty"`
	CaptureIDs        []string `json:"capture_ids,omitempty"`
}

// CallbackResult describes what a webhook delivery turned out to be.
// Handled=false means the event type is recognized-but-irrelevant and was
// acknowledged as a no-op; Duplicate=true means the (transaction, raw status)
// pair was already applied by an earlier delivery.
type CallbackResult struct {
	Handled       bool   `json:"handled"`
	Duplicate     bool   `json:"duplicate,omitempty"`
	EventType     string `json:"event_type,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	OrderNumber   string `json:"order_number,omitempty"`
	Status        Status `json:"status,omitempty"`
	RawStatus     string `json:"raw_status,omitempty"`
}

type CancelResult struct {
	TransactionID string `json:"transaction_id"`
	Status        Status `json:"status"`
}

type RefundResult struct {
	TransactionID string  `json:"transaction_id"`
	RefundID      string  `json:"refund_id"`
	Status        Status  `json:"status"`
	Amount        float64 `json:"amount"`
	Partial       bool    `json:"partial"`
}
