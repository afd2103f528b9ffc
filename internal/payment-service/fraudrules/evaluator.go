package fraudrules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// RuleSource loads active rules ordered by ascending priority.
type RuleSource interface {
	ActiveRules(ctx context.Context) ([]Rule, error)
}

// AttemptCounter counts payment attempts for a velocity scope.
type AttemptCounter interface {
	CountAttempts(ctx context.Context, scope Scope, value string, since time.Time) (int, error)
}

// GeoResolver maps an IP to an ISO country code. Without one, location rules
// never match.
type GeoResolver interface {
	Country(ctx context.Context, ip string) (string, error)
}

type Params struct {
	OrderID       string
	Amount        decimal.Decimal
	CustomerEmail string
	CustomerID    string
	IPAddress     string
}

type Triggered struct {
	RuleID string
	Name   string
	Type   RuleType
	Action Action
}

type Result struct {
	Blocked   bool
	Triggered []Triggered
}

type Evaluator struct {
	rules    RuleSource
	attempts AttemptCounter
	geo      GeoResolver
	now      func() time.Time
}

type Option func(*Evaluator)

func WithGeoResolver(g GeoResolver) Option {
	return func(e *Evaluator) { e.geo = g }
}

func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

func NewEvaluator(rules RuleSource, attempts AttemptCounter, opts ...Option) *Evaluator {
	e := &Evaluator{rules: rules, attempts: attempts, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply runs the active rules in priority order. The first matching block
// rule stops evaluation; matching flag rules before it are reported too.
func (e *Evaluator) Apply(ctx context.Context, p Params) (Result, error) {
	rules, err := e.rules.ActiveRules(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fraudrules: load rules: %w", err)
	}

	var res Result
	for _, rule := range rules {
		matched, err := e.evaluate(ctx, rule, p)
		if err != nil {
			// One broken rule must not disable the rest.
			slog.WarnContext(ctx, "fraud rule skipped", "rule_id", rule.ID, "type", rule.Type(), "error", err)
			continue
		}
		if !matched {
			continue
		}

		res.Triggered = append(res.Triggered, Triggered{
			RuleID: rule.ID,
			Name:   rule.Name,
			Type:   rule.Type(),
			Action: rule.Action,
		})
		if rule.Action == ActionBlock {
			res.Blocked = true
			return res, nil
		}
	}
	return res, nil
}

func (e *Evaluator) evaluate(ctx context.Context, rule Rule, p Params) (bool, error) {
	switch c := rule.Condition.(type) {
	case VelocityCondition:
		value := scopeValue(c.Scope, p)
		if value == "" {
			return false, nil
		}
		n, err := e.attempts.CountAttempts(ctx, c.Scope, value, e.now().Add(-c.Window()))
		if err != nil {
			return false, err
		}
		return n > c.MaxCount, nil

	case AmountCondition:
		switch c.Operator {
		case OpGreaterThan:
			return p.Amount.GreaterThan(c.Threshold), nil
		case OpLessThan:
			return p.Amount.LessThan(c.Threshold), nil
		}
		return false, fmt.Errorf("%w: amount operator %q", ErrInvalidRule, c.Operator)

	case LocationCondition:
		if e.geo == nil || p.IPAddress == "" {
			return false, nil
		}
		country, err := e.geo.Country(ctx, p.IPAddress)
		if err != nil {
			return false, err
		}
		return country != "" && c.contains(country), nil

	default:
		return false, fmt.Errorf("%w: %T", ErrUnknownRuleType, rule.Condition)
	}
}

func scopeValue(s Scope, p Params) string {
	switch s {
	case ScopeIP:
		return p.IPAddress
	case ScopeCustomer:
		return p.CustomerID
	case ScopeEmail:
		return p.CustomerEmail
	}
	return ""
}
