// Package app is the payment gate: every check that stands between a
// customer and a hosted payment page.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jcmexdev/storefront-integrity/internal/audit"
	orderdomain "github.com/jcmexdev/storefront-integrity/internal/order-service/domain"
	"github.com/jcmexdev/storefront-integrity/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-integrity/internal/payment-service/fraudrules"
	"github.com/jcmexdev/storefront-integrity/internal/payment-service/risk"
	"github.com/jcmexdev/storefront-integrity/internal/pkg/ratelimit"
)

var tracer = otel.Tracer("github.com/jcmexdev/storefront-integrity/internal/payment-service/app")

type Orders interface {
	GetOrder(ctx context.Context, id string) (*orderdomain.Order, error)
	MarkPaid(ctx context.Context, orderID string) error
}

type Attempts interface {
	InsertAttempt(ctx context.Context, a *domain.Attempt) error
	UpdateAttempt(ctx context.Context, id string, status domain.AttemptStatus, transactionID string) error
	AttemptByTransaction(ctx context.Context, transactionID string) (*domain.Attempt, error)
}

type RateLimiter interface {
	Check(ctx context.Context, typ ratelimit.IdentifierType, value string) (ratelimit.Decision, error)
}

type RiskAssessor interface {
	AssessPayment(ctx context.Context, in risk.Input) risk.Assessment
}

type RuleEvaluator interface {
	Apply(ctx context.Context, p fraudrules.Params) (fraudrules.Result, error)
}

type EventRecorder interface {
	Record(ctx context.Context, e audit.Event) (*audit.SecurityEvent, error)
}

// Gateway mints payment sessions. Provider payloads never leave the adapter.
type Gateway interface {
	InitiatePayment(ctx context.Context, req domain.SessionRequest) (*domain.Session, error)
	VerifyPayment(ctx context.Context, transactionID string) (*domain.Verification, error)
}

type Deps struct {
	Orders   Orders
	Attempts Attempts
	Limiter  RateLimiter
	Risk     RiskAssessor
	Rules    RuleEvaluator
	Events   EventRecorder
	Gateway  Gateway
}

type Gate struct {
	Deps
	currency string
}

type Option func(*Gate)

// WithCurrency sets the currency used when a request names none.
func WithCurrency(code string) Option {
	return func(g *Gate) { g.currency = strings.ToUpper(code) }
}

func NewGate(deps Deps, opts ...Option) *Gate {
	g := &Gate{Deps: deps, currency: "USD"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type CreatePaymentRequest struct {
	OrderID       string
	Method        domain.Method
	CustomerEmail string
	CustomerName  string
	CustomerPhone string
	Currency      string

	// UserID is the authenticated identity, empty for email-only checkout.
	UserID    string
	IPAddress string
	UserAgent string
}

type PaymentResult struct {
	TransactionID string
	PaymentURL    string
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
	Method        domain.Method
}

func (r CreatePaymentRequest) validate() error {
	var missing []string
	if strings.TrimSpace(r.OrderID) == "" {
		missing = append(missing, "order_id")
	}
	if r.Method == "" {
		missing = append(missing, "payment_method")
	}
	if r.UserID == "" && strings.TrimSpace(r.CustomerEmail) == "" {
		missing = append(missing, "customer_email")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	switch r.Method {
	case domain.MethodCashOnDelivery, domain.MethodCard, domain.MethodMobileBanking, domain.MethodBankTransfer:
	default:
		return fmt.Errorf("%w: unsupported payment method %q", ErrInvalidRequest, r.Method)
	}
	return nil
}

// CreatePayment runs one request through the gate. Each denial is final for
// the request and, except for malformed input, leaves an audit record.
func (g *Gate) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentResult, error) {
	ctx, span := tracer.Start(ctx, "payment.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.String("payment.method", string(req.Method)),
	)

	res, err := g.createPayment(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (g *Gate) createPayment(ctx context.Context, req CreatePaymentRequest) (*PaymentResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	actor := actorOf(req)

	if err := g.limit(ctx, ratelimit.IdentifierIP, req.IPAddress, req); err != nil {
		return nil, err
	}

	order, err := g.Orders.GetOrder(ctx, req.OrderID)
	if errors.Is(err, orderdomain.ErrOrderNotFound) {
		g.record(ctx, audit.Event{
			Type:        audit.EventInvalidOrder,
			Severity:    audit.SeverityMedium,
			Description: "payment requested for unknown order",
			Details:     map[string]any{"order_id": req.OrderID},
			ActorID:     actor,
			IPAddress:   req.IPAddress,
		})
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("payment: load order %s: %w", req.OrderID, err)
	}

	if order.IsPaid() {
		g.record(ctx, audit.Event{
			Type:        audit.EventDuplicateAttempt,
			Severity:    audit.SeverityMedium,
			Description: "payment requested for an order that is already paid",
			Details:     map[string]any{"order_id": order.ID},
			ActorID:     actor,
			IPAddress:   req.IPAddress,
		})
		return nil, fmt.Errorf("payment: order %s: %w", order.ID, orderdomain.ErrAlreadyPaid)
	}

	if !owns(req, order) {
		g.record(ctx, audit.Event{
			Type:        audit.EventUnauthorizedAccess,
			Severity:    audit.SeverityHigh,
			Description: "payment requested by someone other than the order owner",
			Details: map[string]any{
				"order_id":        order.ID,
				"supplied_email":  req.CustomerEmail,
				"supplied_user":   req.UserID,
				"order_has_owner": order.UserID != "",
			},
			ActorID:   actor,
			IPAddress: req.IPAddress,
		})
		return nil, ErrForbidden
	}

	// The stored total is the only amount the gate charges.
	amount := order.Total
	currency := g.currencyOf(req)
	email := req.CustomerEmail
	if email == "" {
		email = order.CustomerEmail
	}

	if !req.Method.RoutesToGateway() {
		res := &PaymentResult{
			TransactionID: "COD-" + uuid.NewString(),
			OrderID:       order.ID,
			Amount:        amount,
			Currency:      currency,
			Method:        req.Method,
		}
		g.recordCreated(ctx, req, res, actor, nil)
		return res, nil
	}

	if err := g.limit(ctx, ratelimit.IdentifierCustomer, email, req); err != nil {
		return nil, err
	}

	attempt := &domain.Attempt{
		ID:            uuid.NewString(),
		OrderID:       order.ID,
		CustomerID:    order.UserID,
		CustomerEmail: strings.ToLower(email),
		Amount:        amount,
		Currency:      currency,
		Method:        req.Method,
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		Status:        domain.AttemptPending,
	}
	if err := g.Attempts.InsertAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("payment: record attempt: %w", err)
	}

	assessment := g.Risk.AssessPayment(ctx, risk.Input{
		OrderID:       order.ID,
		Amount:        amount,
		CustomerEmail: email,
		CustomerID:    order.UserID,
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
	})

	rules, err := g.Rules.Apply(ctx, fraudrules.Params{
		OrderID:       order.ID,
		Amount:        amount,
		CustomerEmail: email,
		CustomerID:    order.UserID,
		IPAddress:     req.IPAddress,
	})
	if err != nil {
		g.settle(ctx, attempt, domain.AttemptFailed, "")
		g.record(ctx, audit.Event{
			Type:        audit.EventPaymentFailed,
			Severity:    audit.SeverityMedium,
			Description: fmt.Sprintf("fraud rules unavailable for order %s", order.ID),
			Details: map[string]any{
				"order_id":   order.ID,
				"attempt_id": attempt.ID,
				"stage":      "fraud_rules",
				"error":      err.Error(),
			},
			ActorID:   actor,
			IPAddress: req.IPAddress,
		})
		return nil, fmt.Errorf("payment: fraud rules: %w", err)
	}

	if assessment.Blocked || rules.Blocked {
		g.settle(ctx, attempt, domain.AttemptBlocked, "")
		g.record(ctx, audit.Event{
			Type:        audit.EventFraudBlock,
			Severity:    audit.SeverityCritical,
			Description: fmt.Sprintf("payment for order %s blocked", order.ID),
			Details: map[string]any{
				"order_id":        order.ID,
				"attempt_id":      attempt.ID,
				"amount":          amount.String(),
				"risk_score":      assessment.Score,
				"risk_level":      assessment.Level,
				"risk_blocked":    assessment.Blocked,
				"risk_flags":      assessment.Flags,
				"risk_reasons":    assessment.Reasons,
				"rules_blocked":   rules.Blocked,
				"triggered_rules": rules.Triggered,
			},
			ActorID:   actor,
			IPAddress: req.IPAddress,
		})
		return nil, ErrRejected
	}

	session, err := g.Gateway.InitiatePayment(ctx, domain.SessionRequest{
		OrderID:       order.ID,
		Amount:        amount,
		Currency:      currency,
		Method:        req.Method,
		CustomerEmail: email,
		CustomerName:  firstNonEmpty(req.CustomerName, order.CustomerName),
		CustomerPhone: firstNonEmpty(req.CustomerPhone, order.CustomerPhone),
	})
	if err != nil {
		g.settle(ctx, attempt, domain.AttemptFailed, "")
		g.record(ctx, audit.Event{
			Type:        audit.EventPaymentFailed,
			Severity:    audit.SeverityMedium,
			Description: fmt.Sprintf("gateway could not open a session for order %s", order.ID),
			Details: map[string]any{
				"order_id":   order.ID,
				"attempt_id": attempt.ID,
				"method":     req.Method,
				"error":      err.Error(),
			},
			ActorID:   actor,
			IPAddress: req.IPAddress,
		})
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	g.settle(ctx, attempt, domain.AttemptCreated, session.TransactionID)

	res := &PaymentResult{
		TransactionID: session.TransactionID,
		PaymentURL:    session.PaymentURL,
		OrderID:       order.ID,
		Amount:        amount,
		Currency:      currency,
		Method:        req.Method,
	}
	g.recordCreated(ctx, req, res, actor, map[string]any{
		"attempt_id": attempt.ID,
		"risk_score": assessment.Score,
		"risk_level": assessment.Level,
		"risk_flags": assessment.Flags,
		"rule_flags": rules.Triggered,
	})
	return res, nil
}

// limit consults the limiter for one identifier. A denial is audited and
// returned as a *RateLimitError.
func (g *Gate) limit(ctx context.Context, typ ratelimit.IdentifierType, value string, req CreatePaymentRequest) error {
	d, err := g.Limiter.Check(ctx, typ, value)
	if err != nil {
		return fmt.Errorf("payment: rate limit: %w", err)
	}
	if d.Allowed {
		return nil
	}
	g.record(ctx, audit.Event{
		Type:        audit.EventRateLimitBlock,
		Severity:    audit.SeverityMedium,
		Description: fmt.Sprintf("payment requests from %s %s throttled", typ, value),
		Details: map[string]any{
			"order_id":   req.OrderID,
			"identifier": string(typ),
			"count":      d.Count,
			"reset_at":   d.ResetAt.UTC().Format(time.RFC3339),
		},
		ActorID:   actorOf(req),
		IPAddress: req.IPAddress,
	})
	return &RateLimitError{Scope: typ, ResetAt: d.ResetAt}
}

func (g *Gate) recordCreated(ctx context.Context, req CreatePaymentRequest, res *PaymentResult, actor string, extra map[string]any) {
	details := map[string]any{
		"transaction_id": res.TransactionID,
		"order_id":       res.OrderID,
		"amount":         res.Amount.String(),
		"currency":       res.Currency,
		"method":         res.Method,
	}
	for k, v := range extra {
		details[k] = v
	}
	g.record(ctx, audit.Event{
		Type:        audit.EventPaymentCreated,
		Severity:    audit.SeverityLow,
		Description: fmt.Sprintf("payment %s created for order %s", res.TransactionID, res.OrderID),
		Details:     details,
		ActorID:     actor,
		IPAddress:   req.IPAddress,
	})
}

// record writes an audit event. A failed write never changes the outcome.
func (g *Gate) record(ctx context.Context, e audit.Event) {
	if _, err := g.Events.Record(ctx, e); err != nil {
		slog.ErrorContext(ctx, "audit event not recorded", "type", e.Type, "error", err)
	}
}

func (g *Gate) settle(ctx context.Context, a *domain.Attempt, status domain.AttemptStatus, transactionID string) {
	if err := g.Attempts.UpdateAttempt(ctx, a.ID, status, transactionID); err != nil {
		slog.ErrorContext(ctx, "payment attempt not updated",
			"attempt_id", a.ID, "status", status, "error", err)
		return
	}
	a.Status = status
	a.TransactionID = transactionID
}

func (g *Gate) currencyOf(req CreatePaymentRequest) string {
	if c := strings.TrimSpace(req.Currency); c != "" {
		return strings.ToUpper(c)
	}
	return g.currency
}

// owns reports whether the requester may pay for the order: an authenticated
// user matching the order's user, or an email matching the order's email.
func owns(req CreatePaymentRequest, order *orderdomain.Order) bool {
	if req.UserID != "" && order.UserID != "" && req.UserID == order.UserID {
		return true
	}
	email := strings.TrimSpace(req.CustomerEmail)
	return email != "" && strings.EqualFold(email, strings.TrimSpace(order.CustomerEmail))
}

func actorOf(req CreatePaymentRequest) string {
	if req.UserID != "" {
		return req.UserID
	}
	return strings.ToLower(strings.TrimSpace(req.CustomerEmail))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
