package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jcmexdev/storefront-integrity/internal/pkg/ratelimit"
)

var _ ratelimit.Counter = (*Store)(nil)

// Hit increments the record of key, opening a fresh window when the stored
// one has ended. The upsert and the read of the new count are one statement.
func (s *Store) Hit(ctx context.Context, key ratelimit.Key, window time.Duration, now time.Time) (int, time.Time, error) {
	const q = `
		INSERT INTO rate_limits (identifier_type, identifier_value, count, window_start, window_end)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (identifier_type, identifier_value) DO UPDATE SET
			count        = CASE WHEN rate_limits.window_end <= excluded.window_start
			                    THEN 1 ELSE rate_limits.count + 1 END,
			window_start = CASE WHEN rate_limits.window_end <= excluded.window_start
			                    THEN excluded.window_start ELSE rate_limits.window_start END,
			window_end   = CASE WHEN rate_limits.window_end <= excluded.window_start
			                    THEN excluded.window_end ELSE rate_limits.window_end END
		RETURNING count, window_end`

	start := now.UnixMilli()
	end := now.Add(window).UnixMilli()

	var (
		count int
		endMs int64
	)
	if err := s.db.QueryRowContext(ctx, q, string(key.Type), key.Value, start, end).Scan(&count, &endMs); err != nil {
		return 0, time.Time{}, fmt.Errorf("sqlite: rate limit hit %s: %w", key, err)
	}
	return count, time.UnixMilli(endMs), nil
}

func (s *Store) Block(ctx context.Context, key ratelimit.Key, until time.Time) error {
	const q = `
		UPDATE rate_limits
		SET    is_blocked = 1, blocked_until = MAX(blocked_until, ?)
		WHERE  identifier_type = ? AND identifier_value = ?`
	if _, err := s.db.ExecContext(ctx, q, until.UnixMilli(), string(key.Type), key.Value); err != nil {
		return fmt.Errorf("sqlite: rate limit block %s: %w", key, err)
	}
	return nil
}

func (s *Store) Blocked(ctx context.Context, key ratelimit.Key, now time.Time) (bool, error) {
	const q = `
		SELECT 1 FROM rate_limits
		WHERE  identifier_type = ? AND identifier_value = ?
		  AND  is_blocked = 1 AND blocked_until > ?`
	return s.exists(ctx, q, string(key.Type), key.Value, now.UnixMilli())
}
