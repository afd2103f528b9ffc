package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-integrity/internal/order-service/domain"
)

// CreateOrder inserts an order with its items in one transaction. Missing
// ids and timestamps are filled in.
func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = domain.PaymentStatusUnpaid
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		const q = `
			INSERT INTO orders
				(id, user_id, customer_email, customer_name, customer_phone, total,
				 status, payment_status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, q,
			o.ID, o.UserID, strings.ToLower(o.CustomerEmail), o.CustomerName, o.CustomerPhone,
			o.Total.String(), string(o.Status), string(o.PaymentStatus),
			formatTime(o.CreatedAt), formatTime(o.UpdatedAt),
		); err != nil {
			return fmt.Errorf("sqlite: insert order %s: %w", o.ID, err)
		}

		const qi = `
			INSERT INTO order_items (id, order_id, variant_id, product_id, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?, ?)`
		for i := range o.Items {
			it := &o.Items[i]
			if it.ID == "" {
				it.ID = uuid.NewString()
			}
			it.OrderID = o.ID
			if _, err := tx.ExecContext(ctx, qi,
				it.ID, it.OrderID, it.VariantID, it.ProductID, it.Quantity, it.UnitPrice.String(),
			); err != nil {
				return fmt.Errorf("sqlite: insert order item %s: %w", it.ID, err)
			}
		}
		return nil
	})
}

// GetOrder returns the order with its items or domain.ErrOrderNotFound.
func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	const q = `
		SELECT id, user_id, customer_email, customer_name, customer_phone, total,
		       status, payment_status, created_at, updated_at
		FROM   orders
		WHERE  id = ?`

	var (
		o                    domain.Order
		total                string
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&o.ID, &o.UserID, &o.CustomerEmail, &o.CustomerName, &o.CustomerPhone, &total,
		&o.Status, &o.PaymentStatus, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: order %q: %w", id, domain.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get order %q: %w", id, err)
	}

	if o.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("sqlite: order %q total: %w", id, err)
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	items, err := s.orderItems(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (s *Store) orderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	const q = `
		SELECT id, order_id, variant_id, product_id, quantity, unit_price
		FROM   order_items
		WHERE  order_id = ?
		ORDER  BY rowid`

	rows, err := s.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: order items %q: %w", orderID, err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var (
			it    domain.OrderItem
			price string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.VariantID, &it.ProductID, &it.Quantity, &price); err != nil {
			return nil, fmt.Errorf("sqlite: scan order item: %w", err)
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("sqlite: order item %s price: %w", it.ID, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateStatus moves an order from one status to another. It fails with
// domain.ErrStatusConflict when the stored status is no longer from, which
// keeps two concurrent transitions from both applying their stock delta.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	const q = `UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`

	res, err := s.db.ExecContext(ctx, q, string(to), formatTime(time.Now()), orderID, string(from))
	if err != nil {
		return fmt.Errorf("sqlite: update order %s status: %w", orderID, err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetOrder(ctx, orderID); err != nil {
			return err
		}
		return fmt.Errorf("sqlite: order %s: %w", orderID, domain.ErrStatusConflict)
	}
	return nil
}

// MarkPaid sets payment_status to paid once. A second call fails with
// domain.ErrAlreadyPaid.
func (s *Store) MarkPaid(ctx context.Context, orderID string) error {
	const q = `UPDATE orders SET payment_status = ?, updated_at = ? WHERE id = ? AND payment_status <> ?`

	res, err := s.db.ExecContext(ctx, q,
		string(domain.PaymentStatusPaid), formatTime(time.Now()), orderID, string(domain.PaymentStatusPaid))
	if err != nil {
		return fmt.Errorf("sqlite: mark order %s paid: %w", orderID, err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetOrder(ctx, orderID); err != nil {
			return err
		}
		return fmt.Errorf("sqlite: order %s: %w", orderID, domain.ErrAlreadyPaid)
	}
	return nil
}

// CountOrdersByCustomer counts orders since a time, by user id when known
// and by email otherwise.
func (s *Store) CountOrdersByCustomer(ctx context.Context, customerID, email string, since time.Time) (int, error) {
	var (
		q   string
		arg string
	)
	switch {
	case customerID != "":
		q, arg = `SELECT COUNT(*) FROM orders WHERE user_id = ? AND created_at >= ?`, customerID
	case email != "":
		q, arg = `SELECT COUNT(*) FROM orders WHERE customer_email = ? AND created_at >= ?`, strings.ToLower(email)
	default:
		return 0, nil
	}

	var n int
	if err := s.db.QueryRowContext(ctx, q, arg, formatTime(since)).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count orders: %w", err)
	}
	return n, nil
}

// PaidOrderTotals returns the totals of a customer's paid orders.
func (s *Store) PaidOrderTotals(ctx context.Context, customerID string) ([]decimal.Decimal, error) {
	const q = `SELECT total FROM orders WHERE user_id = ? AND payment_status = ?`

	rows, err := s.db.QueryContext(ctx, q, customerID, string(domain.PaymentStatusPaid))
	if err != nil {
		return nil, fmt.Errorf("sqlite: paid totals %q: %w", customerID, err)
	}
	defer rows.Close()

	var totals []decimal.Decimal
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sqlite: scan total: %w", err)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse total %q: %w", raw, err)
		}
		totals = append(totals, d)
	}
	return totals, rows.Err()
}
