package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/storefront-integrity/internal/payment-service/fraudrules"
)

func (s *Store) InsertRule(ctx context.Context, r *fraudrules.Rule) error {
	if err := fraudrules.ValidateAction(r.Action); err != nil {
		return err
	}
	conditions, err := fraudrules.EncodeCondition(r.Condition)
	if err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	const q = `
		INSERT INTO fraud_rules (id, name, rule_type, conditions, action, priority, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q,
		r.ID, r.Name, string(r.Type()), string(conditions), string(r.Action),
		r.Priority, r.IsActive, formatTime(r.CreatedAt),
	); err != nil {
		return fmt.Errorf("sqlite: insert rule %s: %w", r.ID, err)
	}
	return nil
}

// ActiveRules implements fraudrules.RuleSource. Rows whose conditions do not
// decode are logged and skipped.
func (s *Store) ActiveRules(ctx context.Context) ([]fraudrules.Rule, error) {
	return s.rules(ctx, true)
}

func (s *Store) ListRules(ctx context.Context) ([]fraudrules.Rule, error) {
	return s.rules(ctx, false)
}

func (s *Store) SetRuleActive(ctx context.Context, id string, active bool) error {
	ok, err := s.execOne(ctx, `UPDATE fraud_rules SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("sqlite: set rule %s active: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("sqlite: rule %s: %w", id, fraudrules.ErrRuleNotFound)
	}
	return nil
}

func (s *Store) rules(ctx context.Context, activeOnly bool) ([]fraudrules.Rule, error) {
	q := `
		SELECT id, name, rule_type, conditions, action, priority, is_active, created_at
		FROM   fraud_rules`
	if activeOnly {
		q += ` WHERE is_active = 1`
	}
	q += ` ORDER BY priority ASC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list rules: %w", err)
	}
	defer rows.Close()

	var out []fraudrules.Rule
	for rows.Next() {
		var (
			r          fraudrules.Rule
			ruleType   string
			conditions string
			createdAt  string
		)
		if err := rows.Scan(&r.ID, &r.Name, &ruleType, &conditions, &r.Action, &r.Priority, &r.IsActive, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan rule: %w", err)
		}
		r.Condition, err = fraudrules.DecodeCondition(fraudrules.RuleType(ruleType), []byte(conditions))
		if err != nil {
			slog.WarnContext(ctx, "fraud rule not loaded", "rule_id", r.ID, "error", err)
			continue
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
