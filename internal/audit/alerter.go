package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jcmexdev/storefront-integrity/internal/pkg/cache"
)

const AlertChannel = "security:alerts"

// LogAlerter writes alerts to the process log at error level.
type LogAlerter struct{}

func (LogAlerter) Alert(ctx context.Context, e SecurityEvent) error {
	slog.ErrorContext(ctx, "SECURITY ALERT",
		"event_id", e.ID, "type", e.Type, "severity", e.Severity,
		"description", e.Description, "ip", e.IPAddress, "actor_id", e.ActorID)
	return nil
}

// PublishAlerter fans alerts out on a Redis channel for monitoring
// subscribers.
type PublishAlerter struct {
	cache   cache.Cache
	channel string
}

func NewPublishAlerter(c cache.Cache, channel string) *PublishAlerter {
	if channel == "" {
		channel = AlertChannel
	}
	return &PublishAlerter{cache: c, channel: channel}
}

type alertMessage struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	ActorID     string         `json:"actor_id,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (p *PublishAlerter) Alert(ctx context.Context, e SecurityEvent) error {
	payload, err := json.Marshal(alertMessage{
		ID:          e.ID,
		Type:        e.Type,
		Severity:    e.Severity,
		Description: e.Description,
		Details:     e.Details,
		ActorID:     e.ActorID,
		IPAddress:   e.IPAddress,
		CreatedAt:   e.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("audit: encode alert: %w", err)
	}
	if err := p.cache.Publish(ctx, p.channel, payload); err != nil {
		return fmt.Errorf("audit: publish alert: %w", err)
	}
	return nil
}
