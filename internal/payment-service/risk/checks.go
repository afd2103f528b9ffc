package risk

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-integrity/internal/pkg/ratelimit"
)

var (
	amountVeryHigh  = decimal.NewFromInt(10000)
	amountHigh      = decimal.NewFromInt(5000)
	amountTiny      = decimal.NewFromInt(10)
	amountDeviceNew = decimal.NewFromInt(1000)
	averageFactor   = decimal.NewFromInt(3)
)

// DefaultChecks returns the six production checks.
func DefaultChecks(history History, blocks BlockList) []Check {
	return []Check{
		velocityCheck{history},
		amountCheck{history},
		locationCheck{blocks},
		deviceCheck{history},
		patternCheck{history},
		failureCheck{history},
	}
}

// --- velocity ---

type velocityCheck struct{ history History }

func (velocityCheck) Name() string { return "velocity" }

func (c velocityCheck) Evaluate(ctx context.Context, in Input, now time.Time) (Finding, error) {
	var (
		f    Finding
		errs []error
	)

	if in.IPAddress != "" {
		n, err := c.history.CountAttemptsByIP(ctx, in.IPAddress, now.Add(-10*time.Minute))
		switch {
		case err != nil:
			errs = append(errs, err)
		case n > 5:
			f.add(30, "high_velocity_ip", fmt.Sprintf("%d payment attempts from this IP in 10 minutes", n))
		case n > 3:
			f.add(15, "elevated_velocity_ip", fmt.Sprintf("%d payment attempts from this IP in 10 minutes", n))
		}
	}

	if in.CustomerID != "" || in.CustomerEmail != "" {
		n, err := c.history.CountOrdersByCustomer(ctx, in.CustomerID, strings.ToLower(in.CustomerEmail), now.Add(-time.Hour))
		switch {
		case err != nil:
			errs = append(errs, err)
		case n > 3:
			f.add(20, "high_velocity_customer", fmt.Sprintf("%d orders by this customer in the last hour", n))
		}
	}
	return f, errors.Join(errs...)
}

// --- amount ---

type amountCheck struct{ history History }

func (amountCheck) Name() string { return "amount" }

func (c amountCheck) Evaluate(ctx context.Context, in Input, _ time.Time) (Finding, error) {
	var f Finding

	switch {
	case in.Amount.GreaterThan(amountVeryHigh):
		f.add(25, "very_high_amount", "amount above 10000")
	case in.Amount.GreaterThan(amountHigh):
		f.add(15, "high_amount", "amount above 5000")
	}
	if in.Amount.LessThan(amountTiny) {
		f.add(10, "micro_amount", "amount below 10, possible card testing")
	}

	if in.CustomerID == "" {
		return f, nil
	}
	totals, err := c.history.PaidOrderTotals(ctx, in.CustomerID)
	if err != nil {
		return f, err
	}
	if len(totals) == 0 {
		return f, nil
	}
	avg := decimal.Avg(totals[0], totals[1:]...)
	if in.Amount.GreaterThan(avg.Mul(averageFactor)) {
		f.add(15, "unusual_amount", fmt.Sprintf("amount exceeds 3x the customer average of %s", avg.StringFixed(2)))
	}
	return f, nil
}

// --- location ---

type locationCheck struct{ blocks BlockList }

func (locationCheck) Name() string { return "location" }

func (c locationCheck) Evaluate(ctx context.Context, in Input, _ time.Time) (Finding, error) {
	var f Finding

	if unresolvedIP(in.IPAddress) {
		f.add(10, "unresolved_ip", "client IP is private, loopback or unknown")
	}

	if in.IPAddress == "" || c.blocks == nil {
		return f, nil
	}
	blocked, err := c.blocks.IsBlocked(ctx, ratelimit.IdentifierIP, in.IPAddress)
	if err != nil {
		return f, err
	}
	if blocked {
		f.add(40, "blocked_ip", "client IP is blocked by rate limiting")
	}
	return f, nil
}

func unresolvedIP(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "unknown") {
		return true
	}
	ip := net.ParseIP(raw)
	if ip == nil {
		return false
	}
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified()
}

// --- device ---

type deviceCheck struct{ history History }

func (deviceCheck) Name() string { return "device" }

var automationSignatures = []string{"bot", "curl", "wget"}

func (c deviceCheck) Evaluate(ctx context.Context, in Input, _ time.Time) (Finding, error) {
	var f Finding

	ua := strings.TrimSpace(in.UserAgent)
	if suspiciousUserAgent(ua) {
		f.add(20, "suspicious_user_agent", "user agent missing or automated")
	}

	if !in.Amount.GreaterThan(amountDeviceNew) {
		return f, nil
	}
	seen, err := c.history.HasTransactionWithUserAgent(ctx, ua)
	if err != nil {
		return f, err
	}
	if !seen {
		f.add(15, "new_device_high_amount", "first transaction from this device above 1000")
	}
	return f, nil
}

func suspiciousUserAgent(ua string) bool {
	if ua == "" || strings.EqualFold(ua, "unknown") {
		return true
	}
	lower := strings.ToLower(ua)
	for _, sig := range automationSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// --- pattern ---

type patternCheck struct{ history History }

func (patternCheck) Name() string { return "pattern" }

func (c patternCheck) Evaluate(ctx context.Context, in Input, _ time.Time) (Finding, error) {
	var f Finding

	local, domain, ok := strings.Cut(strings.ToLower(strings.TrimSpace(in.CustomerEmail)), "@")
	if !ok {
		return f, nil
	}
	if IsDisposableDomain(domain) {
		f.add(25, "disposable_email", "email domain is a disposable mail provider")
	}

	prefix := EmailPrefix(local)
	if prefix == "" {
		return f, nil
	}
	n, err := c.history.CountCustomersWithEmailPrefix(ctx, prefix)
	if err != nil {
		return f, err
	}
	if n > 3 {
		f.add(15, "email_pattern", fmt.Sprintf("%d customer accounts share the email prefix %q", n, prefix))
	}
	return f, nil
}

// EmailPrefix strips a +tag and trailing digits from an email local part, so
// "jane.doe+shop42" and "jane.doe7" both become "jane.doe".
func EmailPrefix(local string) string {
	local, _, _ = strings.Cut(local, "+")
	return strings.TrimRight(local, "0123456789._-")
}

// --- failure history ---

type failureCheck struct{ history History }

func (failureCheck) Name() string { return "failure_history" }

func (c failureCheck) Evaluate(ctx context.Context, in Input, now time.Time) (Finding, error) {
	var f Finding
	if in.IPAddress == "" {
		return f, nil
	}
	n, err := c.history.CountFailedAttemptsByIP(ctx, in.IPAddress, now.Add(-30*time.Minute))
	if err != nil {
		return f, err
	}
	switch {
	case n > 3:
		f.add(30, "repeated_failures", fmt.Sprintf("%d failed payment attempts from this IP in 30 minutes", n))
	case n > 1:
		f.add(15, "recent_failures", fmt.Sprintf("%d failed payment attempts from this IP in 30 minutes", n))
	}
	return f, nil
}
