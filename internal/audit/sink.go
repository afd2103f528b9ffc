package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists security events.
type Store interface {
	InsertEvent(ctx context.Context, e *SecurityEvent) error
	ListEvents(ctx context.Context, f Filter) ([]SecurityEvent, error)
	ResolveEvent(ctx context.Context, id string, status Resolution, at time.Time) error
	CountEventsByIP(ctx context.Context, ip string, types []EventType, since time.Time) (int, error)
}

// Alerter delivers an alert to whatever watches the platform. Delivery is
// best effort; the event itself is already stored when Alert runs.
type Alerter interface {
	Alert(ctx context.Context, e SecurityEvent) error
}

// RepeatedFailures stores a repeated_failures event and raises an alert when
// one IP reaches Threshold failure events within Window. At most one such
// event is stored per IP and Window.
type RepeatedFailures struct {
	Threshold int
	Window    time.Duration
}

// Event is what callers hand to Record.
type Event struct {
	Type        EventType
	Severity    Severity
	Description string
	Details     map[string]any
	ActorID     string
	IPAddress   string
}

type Sink struct {
	store    Store
	alerters []Alerter
	repeated RepeatedFailures
	now      func() time.Time

	// repeatedMu serialises the count then insert in checkRepeated.
	repeatedMu sync.Mutex
}

type Option func(*Sink)

func WithAlerter(a Alerter) Option {
	return func(s *Sink) { s.alerters = append(s.alerters, a) }
}

func WithRepeatedFailures(r RepeatedFailures) Option {
	return func(s *Sink) { s.repeated = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

func NewSink(store Store, opts ...Option) *Sink {
	s := &Sink{
		store:    store,
		repeated: RepeatedFailures{Threshold: 5, Window: 15 * time.Minute},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record stores e and raises the alerts it warrants. It returns the stored
// event; only a storage failure is returned as an error.
func (s *Sink) Record(ctx context.Context, e Event) (*SecurityEvent, error) {
	if e.Severity == "" {
		e.Severity = SeverityLow
	}

	ev := &SecurityEvent{
		ID:          uuid.NewString(),
		Type:        e.Type,
		Severity:    e.Severity,
		Description: e.Description,
		Details:     e.Details,
		ActorID:     e.ActorID,
		IPAddress:   e.IPAddress,
		Status:      ResolutionOpen,
		CreatedAt:   s.now().UTC(),
	}

	logAttrs := []any{
		"event_id", ev.ID, "type", ev.Type, "severity", ev.Severity,
		"actor_id", ev.ActorID, "ip", ev.IPAddress,
	}

	if err := s.store.InsertEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "security event not persisted", append(logAttrs, "error", err)...)
		return nil, fmt.Errorf("audit: record %s: %w", ev.Type, err)
	}
	slog.InfoContext(ctx, "security event", logAttrs...)

	if ev.Severity.Alerting() {
		s.alert(ctx, *ev)
	}
	if isFailure(ev.Type) && ev.IPAddress != "" {
		s.checkRepeated(ctx, *ev)
	}
	return ev, nil
}

func (s *Sink) List(ctx context.Context, f Filter) ([]SecurityEvent, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	events, err := s.store.ListEvents(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	return events, nil
}

// Resolve changes the resolution status of an event, the only mutation a
// stored event allows.
func (s *Sink) Resolve(ctx context.Context, id string, status Resolution) error {
	if !status.Valid() || status == ResolutionOpen {
		return ErrInvalidResolution
	}
	if err := s.store.ResolveEvent(ctx, id, status, s.now().UTC()); err != nil {
		return fmt.Errorf("audit: resolve %s: %w", id, err)
	}
	slog.InfoContext(ctx, "security event resolved", "event_id", id, "status", status)
	return nil
}

func (s *Sink) checkRepeated(ctx context.Context, ev SecurityEvent) {
	if s.repeated.Threshold <= 0 {
		return
	}
	s.repeatedMu.Lock()
	defer s.repeatedMu.Unlock()

	since := s.now().Add(-s.repeated.Window)
	n, err := s.store.CountEventsByIP(ctx, ev.IPAddress, failureTypes, since)
	if err != nil {
		slog.WarnContext(ctx, "repeated failure count unavailable", "ip", ev.IPAddress, "error", err)
		return
	}
	if n < s.repeated.Threshold {
		return
	}
	raised, err := s.store.CountEventsByIP(ctx, ev.IPAddress, []EventType{EventRepeatedFailures}, since)
	if err != nil {
		slog.WarnContext(ctx, "repeated failure count unavailable", "ip", ev.IPAddress, "error", err)
		return
	}
	if raised > 0 {
		return
	}

	alert := &SecurityEvent{
		ID:          uuid.NewString(),
		Type:        EventRepeatedFailures,
		Severity:    SeverityHigh,
		Description: fmt.Sprintf("%d failed payment gate decisions from one IP within %s", n, s.repeated.Window),
		Details:     map[string]any{"failures": n, "last_event_id": ev.ID, "last_event_type": ev.Type},
		ActorID:     ev.ActorID,
		IPAddress:   ev.IPAddress,
		Status:      ResolutionOpen,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.InsertEvent(ctx, alert); err != nil {
		slog.ErrorContext(ctx, "security event not persisted",
			"event_id", alert.ID, "type", alert.Type, "ip", alert.IPAddress, "error", err)
	} else {
		slog.InfoContext(ctx, "security event",
			"event_id", alert.ID, "type", alert.Type, "severity", alert.Severity, "ip", alert.IPAddress)
	}
	s.alert(ctx, *alert)
}

func (s *Sink) alert(ctx context.Context, ev SecurityEvent) {
	for _, a := range s.alerters {
		if err := a.Alert(ctx, ev); err != nil {
			slog.WarnContext(ctx, "alert delivery failed", "event_id", ev.ID, "type", ev.Type, "error", err)
		}
	}
}

func isFailure(t EventType) bool {
	for _, f := range failureTypes {
		if f == t {
			return true
		}
	}
	return false
}
