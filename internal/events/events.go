// Package events publishes account lifecycle events to the message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/internal/metrics"
	"github.com/jjudge-oj/accounts/internal/mq"
)

// Type names an account event.
type Type string

const (
	UserRegistered      Type = "user.registered"
	UserSignedIn        Type = "user.signed_in"
	UserProfileUpdated  Type = "user.profile_updated"
	UserPasswordChanged Type = "user.password_changed"
)

// AttrEventType is the message attribute carrying the event type.
const AttrEventType = "event_type"

// Event is the JSON body of a published account event.
type Event struct {
	Type       Type      `json:"type"`
	UserID     uuid.UUID `json:"user_id"`
	Username   string    `json:"username"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher sends account events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// BrokerPublisher publishes events to a single channel through an mq.MQ.
type BrokerPublisher struct {
	queue   *mq.MQ
	channel string
	metrics *metrics.Metrics
}

// NewBrokerPublisher returns a publisher writing to channel. m may be nil.
func NewBrokerPublisher(queue *mq.MQ, channel string, m *metrics.Metrics) *BrokerPublisher {
	return &BrokerPublisher{queue: queue, channel: channel, metrics: m}
}

func (p *BrokerPublisher) Publish(ctx context.Context, event Event) error {
	id, err := p.queue.PublishJSON(ctx, p.channel, event, map[string]string{
		AttrEventType: string(event.Type),
	})
	if err != nil {
		p.metrics.ObserveEvent(string(event.Type), "error")
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	p.metrics.ObserveEvent(string(event.Type), "ok")
	slog.DebugContext(ctx, "account event published", "type", event.Type, "message_id", id)
	return nil
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Decode parses a message body produced by BrokerPublisher.
func Decode(msg mq.Message) (Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return Event{}, fmt.Errorf("decode event %s: %w", msg.ID, err)
	}
	if event.Type == "" {
		event.Type = Type(msg.Attributes[AttrEventType])
	}
	return event, nil
}
