package order

import "time"

type Status string

const (
	StatusPending           Status = "pending"
	StatusProcessing        Status = "processing"
	StatusShipped           Status = "shipped"
	StatusDelivered         Status = "delivered"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
	StatusDisputed          Status = "disputed"
)

type Order struct {
	ID            int64     `json:"id"`
	OrderNumber   string    `json:"order_number"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	Total         float64   `json:"total"`
	Status        Status    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StatusHistoryEntry is one audit row recorded whenever a payment event
// changes the order.
type StatusHistoryEntry struct {
	ID            int64     `json:"id"`
	OrderID       int64     `json:"order_id"`
	FromStatus    Status    `json:"from_status"`
	ToStatus      Status    `json:"to_status"`
	PaymentStatus string    `json:"payment_status"`
	Details       []byte    `json:"details,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
