package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (s *Store) CreateCustomer(ctx context.Context, id, email, name string) error {
	const q = `INSERT INTO customers (id, email, name, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, id, strings.ToLower(email), name, formatTime(time.Now())); err != nil {
		return fmt.Errorf("sqlite: insert customer %s: %w", id, err)
	}
	return nil
}

// CountCustomersWithEmailPrefix counts customers whose email starts with
// prefix. LIKE wildcards in prefix are matched literally.
func (s *Store) CountCustomersWithEmailPrefix(ctx context.Context, prefix string) (int, error) {
	const q = `SELECT COUNT(*) FROM customers WHERE email LIKE ? ESCAPE '\'`
	return s.count(ctx, q, escapeLike(strings.ToLower(prefix))+"%")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
