package sqlite

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront-integrity/internal/audit"
	orderdomain "github.com/jcmexdev/storefront-integrity/internal/order-service/domain"
	paymentdomain "github.com/jcmexdev/storefront-integrity/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-integrity/internal/payment-service/fraudrules"
	"github.com/jcmexdev/storefront-integrity/internal/pkg/ratelimit"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDecrementVariantIsGuarded(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.CreateProduct(ctx, "p1", "shirt", 3))
	require.NoError(t, s.CreateVariant(ctx, "v1", "p1", "S", 3))

	ok, err := s.DecrementVariant(ctx, "v1", 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DecrementVariant(ctx, "v1", 2)
	require.NoError(t, err)
	assert.False(t, ok, "decrement below zero must not apply")

	qty, err := s.VariantQuantity(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 1, qty)

	ok, err = s.DecrementVariant(ctx, "missing", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentDecrementsNeverOversell(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.CreateProduct(ctx, "p1", "shirt", 5))
	require.NoError(t, s.CreateVariant(ctx, "v1", "p1", "S", 5))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.DecrementVariant(ctx, "v1", 1)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				reserved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	qty, err := s.VariantQuantity(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 5, reserved)
	assert.Equal(t, 0, qty)
}

func TestAdjustProductFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.CreateProduct(ctx, "p1", "shirt", 1))

	require.NoError(t, s.AdjustProduct(ctx, "p1", -5))
	qty, err := s.ProductQuantity(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, qty)
}

func TestReconcileProducts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.CreateProduct(ctx, "p1", "shirt", 99))
	require.NoError(t, s.CreateVariant(ctx, "v1", "p1", "S", 2))
	require.NoError(t, s.CreateVariant(ctx, "v2", "p1", "M", 3))
	require.NoError(t, s.CreateProduct(ctx, "p2", "poster", 7))

	n, err := s.ReconcileProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	qty, err := s.ProductQuantity(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, qty)

	qty, err = s.ProductQuantity(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, 7, qty, "products without variants keep their own counter")
}

func createOrder(t *testing.T, s *Store, status orderdomain.OrderStatus) *orderdomain.Order {
	t.Helper()
	o := &orderdomain.Order{
		UserID:        "u1",
		CustomerEmail: "Jane@Example.com",
		Total:         decimal.RequireFromString("42.50"),
		Status:        status,
		Items: []orderdomain.OrderItem{
			{ProductID: "p1", Quantity: 1, UnitPrice: decimal.RequireFromString("42.50")},
		},
	}
	require.NoError(t, s.CreateOrder(context.Background(), o))
	return o
}

func TestOrderRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	o := createOrder(t, s, orderdomain.StatusPending)

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", got.CustomerEmail)
	assert.True(t, got.Total.Equal(o.Total))
	assert.Equal(t, orderdomain.PaymentStatusUnpaid, got.PaymentStatus)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "p1", got.Items[0].ProductID)

	_, err = s.GetOrder(ctx, "nope")
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
}

func TestUpdateStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	o := createOrder(t, s, orderdomain.StatusPending)

	require.NoError(t, s.UpdateStatus(ctx, o.ID, orderdomain.StatusPending, orderdomain.StatusCancelled))

	err := s.UpdateStatus(ctx, o.ID, orderdomain.StatusPending, orderdomain.StatusShipped)
	assert.ErrorIs(t, err, orderdomain.ErrStatusConflict)

	err = s.UpdateStatus(ctx, "nope", orderdomain.StatusPending, orderdomain.StatusShipped)
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
}

func TestMarkPaidOnce(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	o := createOrder(t, s, orderdomain.StatusPending)

	require.NoError(t, s.MarkPaid(ctx, o.ID))
	assert.ErrorIs(t, s.MarkPaid(ctx, o.ID), orderdomain.ErrAlreadyPaid)

	totals, err := s.PaidOrderTotals(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.True(t, totals[0].Equal(decimal.RequireFromString("42.5")))
}

func TestAttemptCounters(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Now().UTC()

	add := func(status paymentdomain.AttemptStatus, ip, ua string, age time.Duration) *paymentdomain.Attempt {
		a := &paymentdomain.Attempt{
			OrderID:       "o1",
			CustomerEmail: "Jane@example.com",
			Amount:        decimal.NewFromInt(10),
			Method:        paymentdomain.MethodCard,
			IPAddress:     ip,
			UserAgent:     ua,
			Status:        status,
			CreatedAt:     now.Add(-age),
		}
		require.NoError(t, s.InsertAttempt(ctx, a))
		return a
	}
	add(paymentdomain.AttemptFailed, "1.2.3.4", "ua", time.Minute)
	add(paymentdomain.AttemptBlocked, "1.2.3.4", "ua", 2*time.Minute)
	add(paymentdomain.AttemptCreated, "1.2.3.4", "firefox", 3*time.Minute)
	add(paymentdomain.AttemptFailed, "1.2.3.4", "ua", time.Hour)
	pending := add(paymentdomain.AttemptPending, "5.6.7.8", "ua", 0)

	n, err := s.CountAttemptsByIP(ctx, "1.2.3.4", now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.CountFailedAttemptsByIP(ctx, "1.2.3.4", now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	seen, err := s.HasTransactionWithUserAgent(ctx, "firefox")
	require.NoError(t, err)
	assert.True(t, seen)
	seen, err = s.HasTransactionWithUserAgent(ctx, "ua")
	require.NoError(t, err)
	assert.False(t, seen)

	n, err = s.CountAttempts(ctx, fraudrules.ScopeEmail, "JANE@example.com", now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, s.UpdateAttempt(ctx, pending.ID, paymentdomain.AttemptCreated, "tx-1"))
	got, err := s.AttemptByTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, pending.ID, got.ID)
	assert.Equal(t, paymentdomain.AttemptCreated, got.Status)

	_, err = s.AttemptByTransaction(ctx, "tx-unknown")
	assert.ErrorIs(t, err, paymentdomain.ErrAttemptNotFound)
}

func TestCountCustomersWithEmailPrefixEscapesWildcards(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.CreateCustomer(ctx, "c1", "jane1@example.com", ""))
	require.NoError(t, s.CreateCustomer(ctx, "c2", "jane2@example.com", ""))
	require.NoError(t, s.CreateCustomer(ctx, "c3", "janet@example.com", ""))
	require.NoError(t, s.CreateCustomer(ctx, "c4", "j_ne@example.com", ""))

	n, err := s.CountCustomersWithEmailPrefix(ctx, "jane")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.CountCustomersWithEmailPrefix(ctx, "j_n")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRateLimitConcurrentHitsCountEachOnce(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	key := ratelimit.Key{Type: ratelimit.IdentifierIP, Value: "5.6.7.8"}
	now := time.UnixMilli(1_700_000_000_000)

	const workers = 50
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts []int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, _, err := s.Hit(ctx, key, time.Minute, now)
			assert.NoError(t, err)
			mu.Lock()
			counts = append(counts, n)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Ints(counts)
	want := make([]int, workers)
	for i := range want {
		want[i] = i + 1
	}
	assert.Equal(t, want, counts)

	n, _, err := s.Hit(ctx, key, time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, workers+1, n)
}

func TestRateLimitHitWindow(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	key := ratelimit.Key{Type: ratelimit.IdentifierIP, Value: "1.2.3.4"}
	start := time.UnixMilli(1_700_000_000_000)

	for i := 1; i <= 3; i++ {
		n, reset, err := s.Hit(ctx, key, time.Minute, start.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.Equal(t, i, n)
		assert.Equal(t, start.Add(time.Second+time.Minute), reset)
	}

	n, reset, err := s.Hit(ctx, key, time.Minute, start.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a hit after the window starts a new one")
	assert.Equal(t, start.Add(3*time.Minute), reset)

	blocked, err := s.Blocked(ctx, key, start)
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, s.Block(ctx, key, start.Add(time.Hour)))
	blocked, err = s.Blocked(ctx, key, start.Add(30*time.Minute))
	require.NoError(t, err)
	assert.True(t, blocked)
	blocked, err = s.Blocked(ctx, key, start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestRulesSkipUndecodableRows(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.InsertRule(ctx, &fraudrules.Rule{
		Name:      "big",
		Condition: fraudrules.AmountCondition{Operator: fraudrules.OpGreaterThan, Threshold: decimal.NewFromInt(100)},
		Action:    fraudrules.ActionBlock,
		Priority:  2,
		IsActive:  true,
	}))
	require.NoError(t, s.InsertRule(ctx, &fraudrules.Rule{
		Name:      "burst",
		Condition: fraudrules.VelocityCondition{Scope: fraudrules.ScopeIP, WindowMinutes: 5, MaxCount: 3},
		Action:    fraudrules.ActionFlag,
		Priority:  1,
		IsActive:  true,
	}))
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fraud_rules (id, name, rule_type, conditions, action, priority, is_active, created_at)
		VALUES ('bad', 'bad', 'velocity', '{not json', 'block', 0, 1, ?)`, formatTime(time.Now()))
	require.NoError(t, err)

	rules, err := s.ActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "burst", rules[0].Name)
	assert.Equal(t, "big", rules[1].Name)

	require.NoError(t, s.SetRuleActive(ctx, rules[0].ID, false))
	rules, err = s.ActiveRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	assert.ErrorIs(t, s.SetRuleActive(ctx, "missing", false), fraudrules.ErrRuleNotFound)
}

func TestSecurityEvents(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Now().UTC()

	insert := func(typ audit.EventType, ip string, age time.Duration) *audit.SecurityEvent {
		e := &audit.SecurityEvent{
			ID:        string(typ) + ip + age.String(),
			Type:      typ,
			Severity:  audit.SeverityMedium,
			Details:   map[string]any{"order_id": "o1"},
			IPAddress: ip,
			Status:    audit.ResolutionOpen,
			CreatedAt: now.Add(-age),
		}
		require.NoError(t, s.InsertEvent(ctx, e))
		return e
	}
	insert(audit.EventRateLimitBlock, "1.1.1.1", time.Minute)
	insert(audit.EventFraudBlock, "1.1.1.1", 2*time.Minute)
	insert(audit.EventPaymentCreated, "1.1.1.1", 3*time.Minute)
	old := insert(audit.EventFraudBlock, "1.1.1.1", time.Hour)

	n, err := s.CountEventsByIP(ctx, "1.1.1.1",
		[]audit.EventType{audit.EventRateLimitBlock, audit.EventFraudBlock}, now.Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	events, err := s.ListEvents(ctx, audit.Filter{Type: audit.EventFraudBlock})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "o1", events[0].Details["order_id"])
	assert.True(t, events[0].CreatedAt.After(events[1].CreatedAt))

	require.NoError(t, s.ResolveEvent(ctx, old.ID, audit.ResolutionDismissed, now))
	assert.ErrorIs(t, s.ResolveEvent(ctx, old.ID, audit.ResolutionResolved, now), audit.ErrEventAlreadyClosed)
	assert.ErrorIs(t, s.ResolveEvent(ctx, "missing", audit.ResolutionResolved, now), audit.ErrEventNotFound)

	events, err = s.ListEvents(ctx, audit.Filter{Status: audit.ResolutionDismissed})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].ResolvedAt)
}
