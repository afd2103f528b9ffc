package ratelimit_test

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront-integrity/internal/pkg/cache"
	"github.com/jcmexdev/storefront-integrity/internal/pkg/ratelimit"
	"github.com/jcmexdev/storefront-integrity/internal/storage/sqlite"
)

var policies = map[ratelimit.IdentifierType]ratelimit.Policy{
	ratelimit.IdentifierIP:       {Max: 3, Window: time.Minute, BlockFor: 10 * time.Minute},
	ratelimit.IdentifierCustomer: {Max: 2, Window: time.Minute},
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func sqliteLimiter(t *testing.T) (*ratelimit.Limiter, *clock) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "limits.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return ratelimit.New(store, policies, ratelimit.WithClock(c.now)), c
}

func TestLimiterDeniesAfterMax(t *testing.T) {
	ctx := context.Background()
	l, c := sqliteLimiter(t)

	for i := 1; i <= 3; i++ {
		d, err := l.Check(ctx, ratelimit.IdentifierIP, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "hit %d", i)
		assert.Equal(t, i, d.Count)
	}

	d, err := l.Check(ctx, ratelimit.IdentifierIP, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, c.t.Add(time.Minute).Equal(d.ResetAt))
	assert.Equal(t, time.Minute, d.RetryAfter(c.t))

	other, err := l.Check(ctx, ratelimit.IdentifierIP, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "identifiers are counted separately")
}

func TestLimiterWindowResets(t *testing.T) {
	ctx := context.Background()
	l, c := sqliteLimiter(t)

	for i := 0; i < 3; i++ {
		_, err := l.Check(ctx, ratelimit.IdentifierCustomer, "a@example.com")
		require.NoError(t, err)
	}
	c.advance(time.Minute + time.Second)

	d, err := l.Check(ctx, ratelimit.IdentifierCustomer, "a@example.com")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
}

func TestLimiterNormalizesCustomerIdentifier(t *testing.T) {
	ctx := context.Background()
	l, _ := sqliteLimiter(t)

	_, err := l.Check(ctx, ratelimit.IdentifierCustomer, "A@Example.com")
	require.NoError(t, err)
	d, err := l.Check(ctx, ratelimit.IdentifierCustomer, " a@example.com ")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Count)
}

func TestLimiterBlocksOnDenial(t *testing.T) {
	ctx := context.Background()
	l, c := sqliteLimiter(t)

	blocked, err := l.IsBlocked(ctx, ratelimit.IdentifierIP, "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, blocked)

	for i := 0; i < 4; i++ {
		_, err := l.Check(ctx, ratelimit.IdentifierIP, "10.0.0.9")
		require.NoError(t, err)
	}
	blocked, err = l.IsBlocked(ctx, ratelimit.IdentifierIP, "10.0.0.9")
	require.NoError(t, err)
	assert.True(t, blocked)

	c.advance(11 * time.Minute)
	blocked, err = l.IsBlocked(ctx, ratelimit.IdentifierIP, "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestLimiterUnknownPolicy(t *testing.T) {
	l, _ := sqliteLimiter(t)
	_, err := l.Check(context.Background(), "device", "x")
	assert.Error(t, err)
}

func TestRetryAfterRoundsUp(t *testing.T) {
	now := time.Unix(1000, 0)
	d := ratelimit.Decision{ResetAt: now.Add(1500 * time.Millisecond)}
	assert.Equal(t, 2*time.Second, d.RetryAfter(now))
	assert.Zero(t, d.RetryAfter(now.Add(time.Hour)))
}

func TestRedisCounter(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := cache.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	t.Cleanup(func() { _ = c.Close() })

	l := ratelimit.New(ratelimit.NewRedisCounter(c), policies)

	for i := 0; i < 3; i++ {
		d, err := l.Check(ctx, ratelimit.IdentifierIP, "10.1.1.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := l.Check(ctx, ratelimit.IdentifierIP, "10.1.1.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 4, d.Count)

	blocked, err := l.IsBlocked(ctx, ratelimit.IdentifierIP, "10.1.1.1")
	require.NoError(t, err)
	assert.True(t, blocked)

	mr.FastForward(2 * time.Minute)
	d, err = l.Check(ctx, ratelimit.IdentifierIP, "10.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Count, "window key expired")

	mr.FastForward(10 * time.Minute)
	blocked, err = l.IsBlocked(ctx, ratelimit.IdentifierIP, "10.1.1.1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

// checkConcurrently fires n simultaneous checks for one IP and returns the
// allowed count plus every count the backend handed out, sorted.
func checkConcurrently(t *testing.T, l *ratelimit.Limiter, ip string, n int) (int, []int) {
	t.Helper()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
		counts  []int
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			d, err := l.Check(context.Background(), ratelimit.IdentifierIP, ip)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			counts = append(counts, d.Count)
			if d.Allowed {
				allowed++
			}
		}()
	}
	close(start)
	wg.Wait()
	require.Empty(t, errs)
	sort.Ints(counts)
	return allowed, counts
}

func TestLimiterConcurrentChecksAllowExactlyMax(t *testing.T) {
	const n = 20
	want := make([]int, n)
	for i := range want {
		want[i] = i + 1
	}

	t.Run("sqlite", func(t *testing.T) {
		l, _ := sqliteLimiter(t)
		allowed, counts := checkConcurrently(t, l, "10.9.9.9", n)
		assert.Equal(t, 3, allowed)
		assert.Equal(t, want, counts, "every hit gets its own count")

		blocked, err := l.IsBlocked(context.Background(), ratelimit.IdentifierIP, "10.9.9.9")
		require.NoError(t, err)
		assert.True(t, blocked)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		c := cache.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
		t.Cleanup(func() { _ = c.Close() })
		l := ratelimit.New(ratelimit.NewRedisCounter(c), policies)

		allowed, counts := checkConcurrently(t, l, "10.9.9.9", n)
		assert.Equal(t, 3, allowed)
		assert.Equal(t, want, counts, "every hit gets its own count")
	})
}
