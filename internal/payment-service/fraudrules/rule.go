// Package fraudrules evaluates operator-configured fraud rules.
//
// A rule is data: a type tag, a JSON condition decoded into the typed
// condition for that tag, an action and a priority. Adding a rule type means
// adding a Condition variant and a case in evaluate; callers do not change.
package fraudrules

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownRuleType = errors.New("unknown rule type")
	ErrInvalidRule     = errors.New("invalid rule")
	ErrRuleNotFound    = errors.New("fraud rule not found")
)

type RuleType string

const (
	TypeVelocity RuleType = "velocity"
	TypeAmount   RuleType = "amount"
	TypeLocation RuleType = "location"
)

type Action string

const (
	ActionFlag  Action = "flag"
	ActionBlock Action = "block"
)

type Rule struct {
	ID        string
	Name      string
	Condition Condition
	Action    Action
	Priority  int
	IsActive  bool
	CreatedAt time.Time
}

func (r Rule) Type() RuleType { return r.Condition.RuleType() }

// Condition is the closed set of rule payloads.
type Condition interface {
	RuleType() RuleType
	validate() error
}

type Scope string

const (
	ScopeIP       Scope = "ip"
	ScopeCustomer Scope = "customer"
	ScopeEmail    Scope = "email"
)

// VelocityCondition matches when more than MaxCount payment attempts from
// the scoped identifier fall inside the last WindowMinutes.
type VelocityCondition struct {
	Scope         Scope `json:"scope"`
	WindowMinutes int   `json:"window_minutes"`
	MaxCount      int   `json:"max_count"`
}

func (VelocityCondition) RuleType() RuleType { return TypeVelocity }

func (c VelocityCondition) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

func (c VelocityCondition) validate() error {
	switch c.Scope {
	case ScopeIP, ScopeCustomer, ScopeEmail:
	default:
		return fmt.Errorf("%w: velocity scope %q", ErrInvalidRule, c.Scope)
	}
	if c.WindowMinutes <= 0 || c.MaxCount < 0 {
		return fmt.Errorf("%w: velocity window and max_count must be positive", ErrInvalidRule)
	}
	return nil
}

type Operator string

const (
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

type AmountCondition struct {
	Operator  Operator        `json:"operator"`
	Threshold decimal.Decimal `json:"threshold"`
}

func (AmountCondition) RuleType() RuleType { return TypeAmount }

func (c AmountCondition) validate() error {
	if c.Operator != OpGreaterThan && c.Operator != OpLessThan {
		return fmt.Errorf("%w: amount operator %q", ErrInvalidRule, c.Operator)
	}
	return nil
}

// LocationCondition matches when the payer's country is listed. Countries
// are ISO-3166 alpha-2 codes.
type LocationCondition struct {
	Countries []string `json:"countries"`
}

func (LocationCondition) RuleType() RuleType { return TypeLocation }

func (c LocationCondition) validate() error {
	if len(c.Countries) == 0 {
		return fmt.Errorf("%w: location rule without countries", ErrInvalidRule)
	}
	return nil
}

func (c LocationCondition) contains(country string) bool {
	for _, cc := range c.Countries {
		if strings.EqualFold(cc, country) {
			return true
		}
	}
	return false
}

// DecodeCondition turns a stored (rule_type, conditions) pair into its typed
// condition.
func DecodeCondition(t RuleType, raw []byte) (Condition, error) {
	var c Condition
	switch t {
	case TypeVelocity:
		var v VelocityCondition
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: velocity conditions: %v", ErrInvalidRule, err)
		}
		c = v
	case TypeAmount:
		var a AmountCondition
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("%w: amount conditions: %v", ErrInvalidRule, err)
		}
		c = a
	case TypeLocation:
		var l LocationCondition
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("%w: location conditions: %v", ErrInvalidRule, err)
		}
		c = l
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuleType, t)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// EncodeCondition is the inverse of DecodeCondition.
func EncodeCondition(c Condition) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: missing condition", ErrInvalidRule)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

func ValidateAction(a Action) error {
	if a != ActionFlag && a != ActionBlock {
		return fmt.Errorf("%w: action %q", ErrInvalidRule, a)
	}
	return nil
}
