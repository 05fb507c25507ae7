package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

type Repository interface {
	SaveTransaction(ctx context.Context, t *Transaction) error
	GetTransaction(ctx context.Context, gateway, transactionID string) (*Transaction, error)
	GetTransactionsByOrder(ctx context.Context, orderNumber string) ([]*Transaction, error)

	// UpdateTransactionStatus sets the canonical and raw status and merges
	// details into the append-only additional_data blob.
	UpdateTransactionStatus(ctx context.Context, gateway, transactionID string, status Status, rawStatus string, details map[string]interface{}) error

	// AdoptVendorPayment updates the order's transaction by order number,
	// replacing a provisional transaction id (a MercadoPago preference id)
	// with the vendor payment id the first webhook reveals.
	AdoptVendorPayment(ctx context.Context, gateway, orderNumber, paymentID string, status Status, rawStatus string, details map[string]interface{}) error

	// SaveWebhookEvent records one delivery and reports whether the same
	// (gateway, event_id) was seen before. Duplicates are idempotent success.
	SaveWebhookEvent(ctx context.Context, gateway, eventID, eventType, transactionID string, payload json.RawMessage) (webhookID int64, isDuplicate bool, err error)
	MarkWebhookProcessed(ctx context.Context, webhookID int64) error
	MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error

	// SaveStatusEvent claims the (gateway, transaction_id, raw_status) slot.
	// Concurrent webhook deliveries for the same status race on a unique
	// constraint; exactly one wins and gets to apply the order update.
	SaveStatusEvent(ctx context.Context, gateway, transactionID, rawStatus string) (isDuplicate bool, err error)

	SaveRefund(ctx context.Context, gateway, transactionID, refundID string, amount float64, currency, reason, rawStatus string) error
	SaveAttempt(ctx context.Context, orderNumber, method, gateway, transactionID string, success bool, errorMessage string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) SaveTransaction(ctx context.Context, t *Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_transactions
		(order_id, order_number, gateway, transaction_id, status, raw_status, amount, currency, payment_method, additional_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, '{}'::jsonb))
	`,
		t.OrderID, t.OrderNumber, t.Gateway, t.TransactionID, t.Status, t.RawStatus,
		t.Amount, t.Currency, t.PaymentMethod, nullableJSON(t.AdditionalData),
	)
	return err
}

func (r *repository) GetTransaction(ctx context.Context, gateway, transactionID string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, order_number, gateway, transaction_id, status, raw_status,
		       amount, currency, payment_method, additional_data, created_at, updated_at
		FROM payment_transactions
		WHERE gateway = $1 AND transaction_id = $2
		ORDER BY id DESC LIMIT 1
	`, gateway, transactionID)

	return scanTransaction(row)
}

func (r *repository) GetTransactionsByOrder(ctx context.Context, orderNumber string) ([]*Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, order_number, gateway, transaction_id, status, raw_status,
		       amount, currency, payment_method, additional_data, created_at, updated_at
		FROM payment_transactions
		WHERE order_number = $1
		ORDER BY id DESC
	`, orderNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) UpdateTransactionStatus(ctx context.Context, gateway, transactionID string, status Status, rawStatus string, details map[string]interface{}) error {
	merged, err := json.Marshal(details)
	if err != nil {
		return err
	}
	if details == nil {
		merged = []byte(`{}`)
	}

	// additional_data || $n keeps earlier keys and appends the new ones
	// server-side, so concurrent updates cannot clobber each other.
	_, err = r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = $3, raw_status = $4, additional_data = additional_data || $5::jsonb, updated_at = now()
		WHERE gateway = $1 AND transaction_id = $2
	`, gateway, transactionID, status, rawStatus, merged)
	return err
}

func (r *repository) AdoptVendorPayment(ctx context.Context, gateway, orderNumber, paymentID string, status Status, rawStatus string, details map[string]interface{}) error {
	merged, err := json.Marshal(details)
	if err != nil {
		return err
	}
	if details == nil {
		merged = []byte(`{}`)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET transaction_id = $3, status = $4, raw_status = $5,
		    additional_data = additional_data || $6::jsonb, updated_at = now()
		WHERE gateway = $1 AND order_number = $2
		  AND (transaction_id = $3 OR transaction_id LIKE 'pref-%')
	`, gateway, orderNumber, paymentID, status, rawStatus, merged)
	return err
}

func (r *repository) SaveWebhookEvent(ctx context.Context, gateway, eventID, eventType, transactionID string, payload json.RawMessage) (int64, bool, error) {
	const q = `
	INSERT INTO payment_webhooks (gateway, event_id, event_type, transaction_id, payload)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (gateway, event_id)
	DO NOTHING
	RETURNING id;
	`

	var id int64
	err := r.db.QueryRowContext(ctx, q, gateway, eventID, eventType, transactionID, []byte(payload)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, true, nil
		}
		return 0, false, err
	}
	return id, false, nil
}

func (r *repository) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_webhooks SET processed_at = now() WHERE id = $1
	`, webhookID)
	return err
}

func (r *repository) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_webhooks SET process_error = $2 WHERE id = $1
	`, webhookID, reason)
	return err
}

func (r *repository) SaveStatusEvent(ctx context.Context, gateway, transactionID, rawStatus string) (bool, error) {
	const q = `
	INSERT INTO payment_status_events (gateway, transaction_id, raw_status)
	VALUES ($1, $2, $3)
	ON CONFLICT (gateway, transaction_id, raw_status)
	DO NOTHING
	RETURNING id;
	`

	var id int64
	err := r.db.QueryRowContext(ctx, q, gateway, transactionID, rawStatus).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func (r *repository) SaveRefund(ctx context.Context, gateway, transactionID, refundID string, amount float64, currency, reason, rawStatus string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_refunds (gateway, transaction_id, refund_id, amount, currency, reason, raw_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, gateway, transactionID, refundID, amount, currency, reason, rawStatus)
	return err
}

func (r *repository) SaveAttempt(ctx context.Context, orderNumber, method, gateway, transactionID string, success bool, errorMessage string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_attempts (order_number, payment_method, gateway, transaction_id, success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, orderNumber, method, gateway, nullableString(transactionID), success, nullableString(errorMessage))
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var t Transaction
	var additional []byte
	err := row.Scan(
		&t.ID, &t.OrderID, &t.OrderNumber, &t.Gateway, &t.TransactionID,
		&t.Status, &t.RawStatus, &t.Amount, &t.Currency, &t.PaymentMethod,
		&additional, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.AdditionalData = additional
	return &t, nil
}

func nullableJSON(b json.RawMessage) interface{} {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
