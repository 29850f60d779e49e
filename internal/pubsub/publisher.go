// Package pubsub publishes operational messages such as spend alerts.
package pubsub

import (
	"context"
	"fmt"

	"crystalgate/internal/config"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// Publisher defines an interface for publishing messages.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) (string, error)
}

// PubSubPublisher is an implementation of Publisher using Google Pub/Sub.
type PubSubPublisher struct {
	client *pubsub.Client
}

// ClientOptions returns the options for cfg's environment. An emulator host disables authentication.
func ClientOptions(cfg *config.Config) []option.ClientOption {
	if cfg.PubSubEmulatorHost == "" {
		return nil
	}
	return []option.ClientOption{option.WithEndpoint(cfg.PubSubEmulatorHost), option.WithoutAuthentication()}
}

// NewPublisher creates a new PubSubPublisher using the GCP project from config.
func NewPublisher(ctx context.Context, cfg *config.Config) (*PubSubPublisher, error) {
	if cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("GCP project ID is required for Pub/Sub")
	}
	client, err := pubsub.NewClient(ctx, cfg.GCPProjectID, ClientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}
	return &PubSubPublisher{client: client}, nil
}

// Publish sends the payload to the given Pub/Sub topic and returns the message ID.
func (p *PubSubPublisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	t := p.client.Topic(topic)
	result := t.Publish(ctx, &pubsub.Message{Data: payload})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
	}
	return id, nil
}

func (p *PubSubPublisher) Close() error {
	return p.client.Close()
}

// LogPublisher writes messages to the logger. It is the default when no broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, payload []byte) (string, error) {
	p.logger.Warn().Str("topic", topic).RawJSON("payload", payload).Msg("alert published")
	return "", nil
}

// New selects the publisher named by cfg.AlertTransport: "pubsub", "nats" or "log".
// The returned close function releases the underlying client.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Publisher, func(), error) {
	switch cfg.AlertTransport {
	case "pubsub":
		p, err := NewPublisher(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	case "nats":
		p, err := NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case "log", "":
		return NewLogPublisher(logger), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown alert transport %q", cfg.AlertTransport)
	}
}
