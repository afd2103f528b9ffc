package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jcmexdev/storefront-integrity/internal/audit"
)

var _ audit.Store = (*Store)(nil)

func (s *Store) InsertEvent(ctx context.Context, e *audit.SecurityEvent) error {
	details := []byte("{}")
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("sqlite: encode event details: %w", err)
		}
		details = b
	}

	const q = `
		INSERT INTO security_events
			(id, event_type, severity, description, details, actor_id, ip_address, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q,
		e.ID, string(e.Type), string(e.Severity), e.Description, string(details),
		e.ActorID, e.IPAddress, string(e.Status), formatTime(e.CreatedAt),
	); err != nil {
		return fmt.Errorf("sqlite: insert event %s: %w", e.ID, err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, f audit.Filter) ([]audit.SecurityEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where, args = append(where, "event_type = ?"), append(args, string(f.Type))
	}
	if f.Severity != "" {
		where, args = append(where, "severity = ?"), append(args, string(f.Severity))
	}
	if f.Status != "" {
		where, args = append(where, "status = ?"), append(args, string(f.Status))
	}
	if f.IPAddress != "" {
		where, args = append(where, "ip_address = ?"), append(args, f.IPAddress)
	}
	if !f.Since.IsZero() {
		where, args = append(where, "created_at >= ?"), append(args, formatTime(f.Since))
	}

	q := `
		SELECT id, event_type, severity, description, details, actor_id, ip_address,
		       status, created_at, resolved_at
		FROM   security_events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, rowid DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list events: %w", err)
	}
	defer rows.Close()

	var out []audit.SecurityEvent
	for rows.Next() {
		var (
			e          audit.SecurityEvent
			details    string
			createdAt  string
			resolvedAt sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Severity, &e.Description, &details, &e.ActorID,
			&e.IPAddress, &e.Status, &createdAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, fmt.Errorf("sqlite: decode event %s details: %w", e.ID, err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if e.ResolvedAt, err = parseNullTime(resolvedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResolveEvent closes an open event. Closed events stay closed.
func (s *Store) ResolveEvent(ctx context.Context, id string, status audit.Resolution, at time.Time) error {
	const q = `UPDATE security_events SET status = ?, resolved_at = ? WHERE id = ? AND status = ?`

	ok, err := s.execOne(ctx, q, string(status), formatTime(at), id, string(audit.ResolutionOpen))
	if err != nil {
		return fmt.Errorf("sqlite: resolve event %s: %w", id, err)
	}
	if ok {
		return nil
	}
	found, err := s.exists(ctx, `SELECT 1 FROM security_events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("sqlite: event %s: %w", id, audit.ErrEventNotFound)
	}
	return fmt.Errorf("sqlite: event %s: %w", id, audit.ErrEventAlreadyClosed)
}

func (s *Store) CountEventsByIP(ctx context.Context, ip string, types []audit.EventType, since time.Time) (int, error) {
	if len(types) == 0 {
		return 0, nil
	}
	marks := make([]string, len(types))
	args := []any{ip, formatTime(since)}
	for i, t := range types {
		marks[i] = "?"
		args = append(args, string(t))
	}
	q := `SELECT COUNT(*) FROM security_events WHERE ip_address = ? AND created_at >= ? AND event_type IN (` +
		strings.Join(marks, ", ") + `)`
	return s.count(ctx, q, args...)
}
