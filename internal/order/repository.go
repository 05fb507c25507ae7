package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"taverna-be/internal/payment"
)

type Repository interface {
	GetByOrderNumber(ctx context.Context, orderNumber string) (*Order, error)
	List(ctx context.Context, limit, offset int) ([]*Order, error)
	History(ctx context.Context, orderID int64) ([]*StatusHistoryEntry, error)

	// ApplyPaymentStatus moves the order to the state implied by the payment
	// status and appends a history row, in one transaction. The row is locked
	// for the duration so two concurrent webhook deliveries serialize.
	// Returns false when the order already carried that payment status.
	ApplyPaymentStatus(ctx context.Context, orderNumber string, orderStatus Status, paymentStatus string, details []byte) (changed bool, err error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByOrderNumber(ctx context.Context, orderNumber string) (*Order, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, order_number, customer_name, customer_email, total, status, payment_status, created_at, updated_at
		FROM orders
		WHERE order_number = $1
	`, orderNumber)

	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerEmail,
		&o.Total, &o.Status, &o.PaymentStatus, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *repository) List(ctx context.Context, limit, offset int) ([]*Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_number, customer_name, customer_email, total, status, payment_status, created_at, updated_at
		FROM orders
		ORDER BY id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerEmail,
			&o.Total, &o.Status, &o.PaymentStatus, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (r *repository) History(ctx context.Context, orderID int64) ([]*StatusHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, from_status, to_status, payment_status, details, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*StatusHistoryEntry
	for rows.Next() {
		var h StatusHistoryEntry
		if err := rows.Scan(&h.ID, &h.OrderID, &h.FromStatus, &h.ToStatus,
			&h.PaymentStatus, &h.Details, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (r *repository) ApplyPaymentStatus(ctx context.Context, orderNumber string, orderStatus Status, paymentStatus string, details []byte) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var (
		orderID       int64
		currentStatus Status
		currentPay    string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, status, payment_status
		FROM orders
		WHERE order_number = $1
		FOR UPDATE
	`, orderNumber).Scan(&orderID, &currentStatus, &currentPay)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%w: %s", ErrOrderNotFound, orderNumber)
		}
		return false, err
	}

	// Same payment status twice is the replayed-webhook case: nothing to do.
	if currentPay == paymentStatus {
		return false, tx.Commit()
	}

	// A late or out-of-order delivery must not pull the order back out of a
	// terminal payment state.
	if !paymentTransitionAllowed(payment.Status(currentPay), payment.Status(paymentStatus)) {
		return false, tx.Commit()
	}

	if len(details) == 0 {
		details = []byte(`{}`)
	} else if !json.Valid(details) {
		return false, fmt.Errorf("status details is not valid JSON")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $2, payment_status = $3, updated_at = now() WHERE id = $1
	`, orderID, orderStatus, paymentStatus); err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, payment_status, details)
		VALUES ($1, $2, $3, $4, $5)
	`, orderID, currentStatus, orderStatus, paymentStatus, details); err != nil {
		return false, err
	}

	return true, tx.Commit()
}
