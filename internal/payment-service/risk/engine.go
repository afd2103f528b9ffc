// Package risk scores a payment attempt from independent weighted checks.
//
// Each check adds points and flags; the sum is capped at MaxScore and mapped
// to a level. A critical level blocks the payment. When a check cannot read
// its data it still reports the signals it found without that data, and the
// rest still run.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jcmexdev/storefront-integrity/internal/audit"
	"github.com/jcmexdev/storefront-integrity/internal/pkg/ratelimit"
)

var tracer = otel.Tracer("github.com/jcmexdev/storefront-integrity/internal/payment-service/risk")

const MaxScore = 100

type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Classify maps a capped score to its level.
func Classify(score int) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 50:
		return LevelHigh
	case score >= 25:
		return LevelMedium
	default:
		return LevelLow
	}
}

type Input struct {
	OrderID       string
	Amount        decimal.Decimal
	CustomerEmail string
	CustomerID    string
	IPAddress     string
	UserAgent     string
}

type Assessment struct {
	Score   int
	Level   Level
	Flags   []string
	Blocked bool
	Reasons []string
}

// History is the read side the checks need.
type History interface {
	CountAttemptsByIP(ctx context.Context, ip string, since time.Time) (int, error)
	CountFailedAttemptsByIP(ctx context.Context, ip string, since time.Time) (int, error)
	CountOrdersByCustomer(ctx context.Context, customerID, email string, since time.Time) (int, error)
	PaidOrderTotals(ctx context.Context, customerID string) ([]decimal.Decimal, error)
	HasTransactionWithUserAgent(ctx context.Context, userAgent string) (bool, error)
	CountCustomersWithEmailPrefix(ctx context.Context, prefix string) (int, error)
}

// BlockList answers whether an identifier is flagged by the rate limiter.
type BlockList interface {
	IsBlocked(ctx context.Context, typ ratelimit.IdentifierType, value string) (bool, error)
}

type EventRecorder interface {
	Record(ctx context.Context, e audit.Event) (*audit.SecurityEvent, error)
}

// Finding is the contribution of one check.
type Finding struct {
	Points  int
	Flags   []string
	Reasons []string
}

func (f *Finding) add(points int, flag, reason string) {
	f.Points += points
	f.Flags = append(f.Flags, flag)
	f.Reasons = append(f.Reasons, reason)
}

// Check is one independent scoring rule. On error it returns whatever it
// scored before the failing lookup.
type Check interface {
	Name() string
	Evaluate(ctx context.Context, in Input, now time.Time) (Finding, error)
}

type Engine struct {
	checks []Check
	events EventRecorder
	now    func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithChecks replaces the default checks.
func WithChecks(checks ...Check) Option {
	return func(e *Engine) { e.checks = checks }
}

func NewEngine(history History, blocks BlockList, events EventRecorder, opts ...Option) *Engine {
	e := &Engine{
		checks: DefaultChecks(history, blocks),
		events: events,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AssessPayment scores one payment attempt. It never fails: a check error is
// logged and only the part of the finding computed before it counts.
func (e *Engine) AssessPayment(ctx context.Context, in Input) Assessment {
	ctx, span := tracer.Start(ctx, "risk.assess")
	defer span.End()

	now := e.now()
	var (
		total int
		a     Assessment
	)
	for _, check := range e.checks {
		f, err := check.Evaluate(ctx, in, now)
		if err != nil {
			slog.WarnContext(ctx, "risk check degraded",
				"check", check.Name(), "order_id", in.OrderID, "points_kept", f.Points, "error", err)
		}
		total += f.Points
		a.Flags = append(a.Flags, f.Flags...)
		a.Reasons = append(a.Reasons, f.Reasons...)
	}

	a.Score = min(total, MaxScore)
	a.Level = Classify(a.Score)
	a.Blocked = a.Level == LevelCritical

	span.SetAttributes(
		attribute.Int("risk.score", a.Score),
		attribute.String("risk.level", string(a.Level)),
		attribute.Bool("risk.blocked", a.Blocked),
	)

	if a.Level == LevelHigh || a.Level == LevelCritical {
		e.emit(ctx, in, a)
	}
	return a
}

func (e *Engine) emit(ctx context.Context, in Input, a Assessment) {
	if e.events == nil {
		return
	}
	severity := audit.SeverityHigh
	if a.Level == LevelCritical {
		severity = audit.SeverityCritical
	}
	_, err := e.events.Record(ctx, audit.Event{
		Type:        audit.EventHighRiskPayment,
		Severity:    severity,
		Description: fmt.Sprintf("payment attempt for order %s scored %d (%s)", in.OrderID, a.Score, a.Level),
		Details: map[string]any{
			"order_id":   in.OrderID,
			"amount":     in.Amount.String(),
			"score":      a.Score,
			"level":      a.Level,
			"flags":      a.Flags,
			"reasons":    a.Reasons,
			"blocked":    a.Blocked,
			"user_agent": in.UserAgent,
		},
		ActorID:   actorOf(in),
		IPAddress: in.IPAddress,
	})
	if err != nil {
		slog.ErrorContext(ctx, "high risk event not recorded", "order_id", in.OrderID, "error", err)
	}
}

func actorOf(in Input) string {
	if in.CustomerID != "" {
		return in.CustomerID
	}
	return in.CustomerEmail
}
