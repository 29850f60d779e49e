package pubsub

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"crystalgate/internal/config"

	ps "cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisherInvalidProject(t *testing.T) {
	cfg := &config.Config{GCPProjectID: ""}
	_, err := NewPublisher(context.Background(), cfg)
	require.Error(t, err)
}

func TestClientOptions(t *testing.T) {
	assert.Empty(t, ClientOptions(&config.Config{}))
	assert.Len(t, ClientOptions(&config.Config{PubSubEmulatorHost: "localhost:8085"}), 2)
}

func TestNewSelectsTransport(t *testing.T) {
	p, closeFn, err := New(context.Background(), &config.Config{AlertTransport: "log"}, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &LogPublisher{}, p)

	_, _, err = New(context.Background(), &config.Config{AlertTransport: "carrier-pigeon"}, zerolog.Nop())
	require.Error(t, err)
}

func TestLogPublisherWritesPayload(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))
	_, err := p.Publish(context.Background(), "spend-alerts", []byte(`{"kind":"emergency_stop"}`))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"topic":"spend-alerts"`)
	assert.Contains(t, buf.String(), `"kind":"emergency_stop"`)
}

func TestPublishWithEmulator(t *testing.T) {
	emulator := os.Getenv("PUBSUB_EMULATOR_HOST")
	if emulator == "" {
		t.Skip("PUBSUB_EMULATOR_HOST is not set, skip emulator integration test")
	}

	ctx := context.Background()
	cfg := &config.Config{GCPProjectID: "test-project", PubSubEmulatorHost: emulator}
	pub, err := NewPublisher(ctx, cfg)
	require.NoError(t, err)
	defer pub.Close()

	topicName := "spend-alerts-test"
	topic, err := pub.client.CreateTopic(ctx, topicName)
	require.NoError(t, err)
	sub, err := pub.client.CreateSubscription(ctx, "spend-alerts-test-sub", ps.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	msgID, err := pub.Publish(ctx, topicName, []byte(`{"kind":"global_daily"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, msgID)

	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c := make(chan []byte, 1)
	go func() {
		_ = sub.Receive(recvCtx, func(ctx context.Context, m *ps.Message) {
			c <- m.Data
			m.Ack()
			cancel()
		})
	}()

	select {
	case data := <-c:
		assert.JSONEq(t, `{"kind":"global_daily"}`, string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message from emulator subscription")
	}
}
