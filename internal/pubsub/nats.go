package pubsub

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes to NATS subjects. NATS core has no message IDs, so Publish returns "".
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("crystalgate"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, topic string, payload []byte) (string, error) {
	if err := p.nc.Publish(topic, payload); err != nil {
		return "", fmt.Errorf("failed to publish message to subject %s: %w", topic, err)
	}
	return "", nil
}

func (p *NATSPublisher) Close() {
	_ = p.nc.Drain()
}
