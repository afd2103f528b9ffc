// Package ratelimit counts requests per identifier over fixed windows.
//
// The limiter holds no counters itself. Every hit is a single atomic
// increment-and-read in a Counter backend (SQLite or Redis), so any number of
// processes can share one backend.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type IdentifierType string

const (
	IdentifierIP       IdentifierType = "ip"
	IdentifierCustomer IdentifierType = "customer"
)

// Key addresses one rate limit record.
type Key struct {
	Type  IdentifierType
	Value string
}

func (k Key) String() string { return string(k.Type) + ":" + k.Value }

// Policy allows Max hits per Window. A denied identifier is flagged as blocked
// for BlockFor; zero disables flagging.
type Policy struct {
	Max      int
	Window   time.Duration
	BlockFor time.Duration
}

// Decision is the outcome of one Check.
type Decision struct {
	Allowed bool
	Count   int
	ResetAt time.Time
}

// RetryAfter is the wait until the window resets, rounded up to a second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return wait.Truncate(time.Second) + time.Second
}

// Counter is the storage port. Hit must increment and return the count of
// the current window atomically, starting a new window when the previous
// one ended before now.
type Counter interface {
	Hit(ctx context.Context, key Key, window time.Duration, now time.Time) (count int, resetAt time.Time, err error)
	Block(ctx context.Context, key Key, until time.Time) error
	Blocked(ctx context.Context, key Key, now time.Time) (bool, error)
}

type Limiter struct {
	counter  Counter
	policies map[IdentifierType]Policy
	now      func() time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(counter Counter, policies map[IdentifierType]Policy, opts ...Option) *Limiter {
	l := &Limiter{
		counter:  counter,
		policies: policies,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records one hit for (typ, value) and decides whether it is allowed.
// The (Max+1)-th hit within a window is the first denied one.
func (l *Limiter) Check(ctx context.Context, typ IdentifierType, value string) (Decision, error) {
	policy, ok := l.policies[typ]
	if !ok {
		return Decision{}, fmt.Errorf("ratelimit: no policy for %q", typ)
	}

	key := Key{Type: typ, Value: normalize(typ, value)}
	now := l.now()

	count, resetAt, err := l.counter.Hit(ctx, key, policy.Window, now)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: hit %s: %w", key, err)
	}

	d := Decision{Allowed: count <= policy.Max, Count: count, ResetAt: resetAt}
	if d.Allowed {
		return d, nil
	}

	slog.WarnContext(ctx, "rate limit exceeded", "key", key.String(), "count", count, "max", policy.Max)

	if policy.BlockFor > 0 {
		if err := l.counter.Block(ctx, key, now.Add(policy.BlockFor)); err != nil {
			slog.WarnContext(ctx, "rate limit block flag not written", "key", key.String(), "error", err)
		}
	}
	return d, nil
}

// IsBlocked reports whether (typ, value) was flagged by an earlier denial
// that has not expired.
func (l *Limiter) IsBlocked(ctx context.Context, typ IdentifierType, value string) (bool, error) {
	key := Key{Type: typ, Value: normalize(typ, value)}
	blocked, err := l.counter.Blocked(ctx, key, l.now())
	if err != nil {
		return false, fmt.Errorf("ratelimit: blocked %s: %w", key, err)
	}
	return blocked, nil
}

func normalize(typ IdentifierType, value string) string {
	value = strings.TrimSpace(value)
	if typ == IdentifierCustomer {
		return strings.ToLower(value)
	}
	return value
}
