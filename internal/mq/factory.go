package mq

import (
	"context"
	"fmt"
	"strings"

	"github.com/jjudge-oj/accounts/config"
)

const (
	BackendNone     = "none"
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
)

// NewFromConfig connects the broker selected by cfg.Events.Backend. It
// returns (nil, nil) when events are disabled.
func NewFromConfig(ctx context.Context, cfg config.Config) (*MQ, error) {
	switch backend := strings.ToLower(strings.TrimSpace(cfg.Events.Backend)); backend {
	case "", BackendNone:
		return nil, nil
	case BackendRabbitMQ:
		client, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		return New(client), nil
	case BackendPubSub:
		client, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		return New(client), nil
	default:
		return nil, fmt.Errorf("unsupported events backend %q", backend)
	}
}
