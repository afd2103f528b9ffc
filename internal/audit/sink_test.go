package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront-integrity/internal/pkg/cache"
)

type memStore struct {
	mu       sync.Mutex
	events   []SecurityEvent
	insert   error
	lastList Filter
}

func (m *memStore) InsertEvent(_ context.Context, e *SecurityEvent) error {
	if m.insert != nil {
		return m.insert
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *memStore) ListEvents(_ context.Context, f Filter) ([]SecurityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastList = f
	return m.events, nil
}

func (m *memStore) ResolveEvent(_ context.Context, id string, status Resolution, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].ID == id {
			m.events[i].Status = status
			m.events[i].ResolvedAt = &at
			return nil
		}
	}
	return ErrEventNotFound
}

func (m *memStore) CountEventsByIP(_ context.Context, ip string, types []EventType, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.IPAddress != ip || e.CreatedAt.Before(since) {
			continue
		}
		for _, t := range types {
			if e.Type == t {
				n++
				break
			}
		}
	}
	return n, nil
}

type captureAlerter struct{ alerts []SecurityEvent }

func (c *captureAlerter) Alert(_ context.Context, e SecurityEvent) error {
	c.alerts = append(c.alerts, e)
	return nil
}

func TestRecordStoresOpenEvent(t *testing.T) {
	store := &memStore{}
	alerts := &captureAlerter{}
	s := NewSink(store, WithAlerter(alerts))

	ev, err := s.Record(context.Background(), Event{Type: EventPaymentCreated, IPAddress: "203.0.113.5"})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, SeverityLow, ev.Severity)
	assert.Equal(t, ResolutionOpen, ev.Status)
	assert.Len(t, store.events, 1)
	assert.Empty(t, alerts.alerts)
}

func TestRecordAlertsOnHighSeverity(t *testing.T) {
	alerts := &captureAlerter{}
	s := NewSink(&memStore{}, WithAlerter(alerts))

	_, err := s.Record(context.Background(), Event{Type: EventHighRiskPayment, Severity: SeverityCritical})
	require.NoError(t, err)
	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, EventHighRiskPayment, alerts.alerts[0].Type)
}

func TestRecordStorageFailure(t *testing.T) {
	alerts := &captureAlerter{}
	s := NewSink(&memStore{insert: errors.New("disk full")}, WithAlerter(alerts))

	_, err := s.Record(context.Background(), Event{Type: EventFraudBlock, Severity: SeverityCritical})
	assert.Error(t, err)
	assert.Empty(t, alerts.alerts)
}

func TestRepeatedFailuresAlertOnceAtThreshold(t *testing.T) {
	alerts := &captureAlerter{}
	s := NewSink(&memStore{}, WithAlerter(alerts), WithRepeatedFailures(RepeatedFailures{Threshold: 3, Window: time.Minute}))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Record(ctx, Event{Type: EventPaymentFailed, Severity: SeverityMedium, IPAddress: "198.51.100.7"})
		require.NoError(t, err)
	}
	_, err := s.Record(ctx, Event{Type: EventPaymentCreated, IPAddress: "198.51.100.7"})
	require.NoError(t, err)

	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, EventRepeatedFailures, alerts.alerts[0].Type)
	assert.Equal(t, 3, alerts.alerts[0].Details["failures"])
}

func TestRepeatedFailuresEventIsStored(t *testing.T) {
	store := &memStore{}
	alerts := &captureAlerter{}
	s := NewSink(store, WithAlerter(alerts), WithRepeatedFailures(RepeatedFailures{Threshold: 2, Window: time.Minute}))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := s.Record(ctx, Event{Type: EventFraudBlock, Severity: SeverityMedium, IPAddress: "198.51.100.7"})
		require.NoError(t, err)
	}

	var stored []SecurityEvent
	for _, e := range store.events {
		if e.Type == EventRepeatedFailures {
			stored = append(stored, e)
		}
	}
	require.Len(t, stored, 1)
	assert.Equal(t, SeverityHigh, stored[0].Severity)
	assert.Equal(t, ResolutionOpen, stored[0].Status)
	assert.Equal(t, "198.51.100.7", stored[0].IPAddress)
	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, stored[0].ID, alerts.alerts[0].ID)
}

func TestRepeatedFailuresAlertWhenCountJumpsPastThreshold(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{}
	// Failures stored concurrently by other writers, none of which saw the
	// threshold themselves.
	for i := 0; i < 4; i++ {
		store.events = append(store.events, SecurityEvent{
			ID: fmt.Sprintf("seed-%d", i), Type: EventPaymentFailed, IPAddress: "198.51.100.7", CreatedAt: now,
		})
	}
	alerts := &captureAlerter{}
	s := NewSink(store, WithAlerter(alerts),
		WithRepeatedFailures(RepeatedFailures{Threshold: 3, Window: time.Minute}),
		WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.Record(ctx, Event{Type: EventPaymentFailed, Severity: SeverityMedium, IPAddress: "198.51.100.7"})
		require.NoError(t, err)
	}

	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, 5, alerts.alerts[0].Details["failures"])
}

func TestRepeatedFailuresRespectWindow(t *testing.T) {
	alerts := &captureAlerter{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSink(&memStore{}, WithAlerter(alerts),
		WithRepeatedFailures(RepeatedFailures{Threshold: 2, Window: time.Minute}),
		WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := s.Record(ctx, Event{Type: EventRateLimitBlock, Severity: SeverityMedium, IPAddress: "198.51.100.7"})
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = s.Record(ctx, Event{Type: EventRateLimitBlock, Severity: SeverityMedium, IPAddress: "198.51.100.7"})
	require.NoError(t, err)

	assert.Empty(t, alerts.alerts)
}

func TestListClampsLimit(t *testing.T) {
	store := &memStore{}
	s := NewSink(store)

	_, err := s.List(context.Background(), Filter{Limit: 10_000})
	require.NoError(t, err)
	assert.Equal(t, 100, store.lastList.Limit)

	_, err = s.List(context.Background(), Filter{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 20, store.lastList.Limit)
}

func TestResolve(t *testing.T) {
	store := &memStore{}
	s := NewSink(store)
	ctx := context.Background()
	ev, err := s.Record(ctx, Event{Type: EventFraudBlock, Severity: SeverityMedium})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Resolve(ctx, ev.ID, ResolutionOpen), ErrInvalidResolution)
	assert.ErrorIs(t, s.Resolve(ctx, ev.ID, "archived"), ErrInvalidResolution)
	assert.ErrorIs(t, s.Resolve(ctx, "missing", ResolutionResolved), ErrEventNotFound)

	require.NoError(t, s.Resolve(ctx, ev.ID, ResolutionDismissed))
	assert.Equal(t, ResolutionDismissed, store.events[0].Status)
	assert.NotNil(t, store.events[0].ResolvedAt)
}

func TestPublishAlerter(t *testing.T) {
	mr := miniredis.RunT(t)
	c := cache.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	t.Cleanup(func() { _ = c.Close() })

	sub := mr.NewSubscriber()
	defer sub.Close()
	sub.Subscribe(AlertChannel)

	err := NewPublishAlerter(c, "").Alert(context.Background(), SecurityEvent{
		ID: "e1", Type: EventFraudBlock, Severity: SeverityCritical, IPAddress: "203.0.113.5",
	})
	require.NoError(t, err)

	select {
	case msg := <-sub.Messages():
		var got alertMessage
		require.NoError(t, json.Unmarshal([]byte(msg.Message), &got))
		assert.Equal(t, "e1", got.ID)
		assert.Equal(t, EventFraudBlock, got.Type)
	case <-time.After(time.Second):
		t.Fatal("alert not published")
	}
}
