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

	"github.com/jcmexdev/storefront-integrity/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-integrity/internal/payment-service/fraudrules"
)

func (s *Store) InsertAttempt(ctx context.Context, a *domain.Attempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = a.CreatedAt

	const q = `
		INSERT INTO payment_attempts
			(id, order_id, customer_id, customer_email, amount, currency, method,
			 ip_address, user_agent, status, transaction_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		a.ID, a.OrderID, a.CustomerID, strings.ToLower(a.CustomerEmail), a.Amount.String(), a.Currency,
		string(a.Method), a.IPAddress, a.UserAgent, string(a.Status), a.TransactionID,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert attempt %s: %w", a.ID, err)
	}
	return nil
}

// UpdateAttempt records the outcome of an attempt. An empty transactionID
// leaves the stored one unchanged.
func (s *Store) UpdateAttempt(ctx context.Context, id string, status domain.AttemptStatus, transactionID string) error {
	const q = `
		UPDATE payment_attempts
		SET    status = ?,
		       transaction_id = CASE WHEN ? = '' THEN transaction_id ELSE ? END,
		       updated_at = ?
		WHERE  id = ?`
	ok, err := s.execOne(ctx, q, string(status), transactionID, transactionID, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("sqlite: update attempt %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("sqlite: attempt %s: %w", id, domain.ErrAttemptNotFound)
	}
	return nil
}

func (s *Store) AttemptByTransaction(ctx context.Context, transactionID string) (*domain.Attempt, error) {
	const q = `
		SELECT id, order_id, customer_id, customer_email, amount, currency, method,
		       ip_address, user_agent, status, transaction_id, created_at, updated_at
		FROM   payment_attempts
		WHERE  transaction_id = ?
		ORDER  BY created_at DESC
		LIMIT  1`

	var (
		a                    domain.Attempt
		amount               string
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, q, transactionID).Scan(
		&a.ID, &a.OrderID, &a.CustomerID, &a.CustomerEmail, &amount, &a.Currency, &a.Method,
		&a.IPAddress, &a.UserAgent, &a.Status, &a.TransactionID, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: transaction %q: %w", transactionID, domain.ErrAttemptNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: attempt by transaction %q: %w", transactionID, err)
	}
	if a.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("sqlite: attempt amount: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) CountAttemptsByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM payment_attempts WHERE ip_address = ? AND created_at >= ?`
	return s.count(ctx, q, ip, formatTime(since))
}

func (s *Store) CountFailedAttemptsByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	q, args := inClause(`
		SELECT COUNT(*) FROM payment_attempts
		WHERE  ip_address = ? AND created_at >= ? AND status IN (%s)`,
		[]any{ip, formatTime(since)}, domain.FailedStatuses)
	return s.count(ctx, q, args...)
}

// HasTransactionWithUserAgent reports whether any attempt from this user
// agent ever reached the gateway, for any customer.
func (s *Store) HasTransactionWithUserAgent(ctx context.Context, userAgent string) (bool, error) {
	q, args := inClause(`
		SELECT 1 FROM payment_attempts
		WHERE  user_agent = ? AND status IN (%s)
		LIMIT  1`,
		[]any{userAgent}, domain.SucceededStatuses)
	return s.exists(ctx, q, args...)
}

// CountAttempts implements fraudrules.AttemptCounter.
func (s *Store) CountAttempts(ctx context.Context, scope fraudrules.Scope, value string, since time.Time) (int, error) {
	var column string
	switch scope {
	case fraudrules.ScopeIP:
		column = "ip_address"
	case fraudrules.ScopeCustomer:
		column = "customer_id"
	case fraudrules.ScopeEmail:
		column, value = "customer_email", strings.ToLower(value)
	default:
		return 0, fmt.Errorf("sqlite: unknown attempt scope %q", scope)
	}
	q := `SELECT COUNT(*) FROM payment_attempts WHERE ` + column + ` = ? AND created_at >= ?`
	return s.count(ctx, q, value, formatTime(since))
}

func (s *Store) count(ctx context.Context, q string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

func inClause(format string, args []any, statuses []domain.AttemptStatus) (string, []any) {
	marks := make([]string, len(statuses))
	for i, st := range statuses {
		marks[i] = "?"
		args = append(args, string(st))
	}
	return fmt.Sprintf(format, strings.Join(marks, ", ")), args
}
