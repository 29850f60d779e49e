package main

import (
	"context"
	"fmt"
	"time"

	"crystalgate/internal/config"
	"crystalgate/internal/logger"
	ps "crystalgate/internal/pubsub"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

// alertRetention is how long unacknowledged alerts stay on the topic.
const alertRetention = 7 * 24 * time.Hour

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, relying on system environment variables.")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}
	logger := logger.New(cfg.Environment, cfg.LogLevel)
	logger.Info().Msg("Starting Pub/Sub setup for the local environment")

	if cfg.GCPProjectID == "" {
		logger.Fatal().Msg("GCP_PROJECT_ID is not set in the environment")
	}
	if cfg.PubSubEmulatorHost == "" {
		logger.Fatal().Msg("PUBSUB_EMULATOR_HOST must be set for local environment")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, cfg.GCPProjectID, ps.ClientOptions(cfg)...)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Pub/Sub client")
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close Pub/Sub client")
		}
	}()

	resetLocalEmulator(ctx, client, logger)
	topic := ensureTopic(ctx, client, logger, cfg.AlertTopic)
	ensureSubscription(ctx, client, logger, cfg.AlertTopic+"-sub", topic)
	logger.Info().Msg("Pub/Sub setup for local environment complete")
}

// resetLocalEmulator deletes every subscription and topic. It must only run against the emulator.
func resetLocalEmulator(ctx context.Context, client *pubsub.Client, logger zerolog.Logger) {
	subs := client.Subscriptions(ctx)
	for {
		sub, err := subs.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to list subscriptions")
		}
		if err := sub.Delete(ctx); err != nil {
			logger.Warn().Err(err).Str("subscription", sub.ID()).Msg("Failed to delete subscription")
		}
	}

	topics := client.Topics(ctx)
	for {
		topic, err := topics.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to list topics")
		}
		if err := topic.Delete(ctx); err != nil {
			logger.Warn().Err(err).Str("topic", topic.ID()).Msg("Failed to delete topic")
		}
	}
}

func ensureTopic(ctx context.Context, client *pubsub.Client, logger zerolog.Logger, topicID string) *pubsub.Topic {
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		logger.Fatal().Err(err).Str("topic", topicID).Msg("Failed to check topic")
	}
	if exists {
		return topic
	}
	topic, err = client.CreateTopicWithConfig(ctx, topicID, &pubsub.TopicConfig{RetentionDuration: alertRetention})
	if err != nil {
		logger.Fatal().Err(err).Str("topic", topicID).Msg("Failed to create topic")
	}
	logger.Info().Str("topic", topicID).Dur("retention", alertRetention).Msg("Topic created")
	return topic
}

func ensureSubscription(ctx context.Context, client *pubsub.Client, logger zerolog.Logger, subID string, topic *pubsub.Topic) {
	sub := client.Subscription(subID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		logger.Fatal().Err(err).Str("subscription", subID).Msg("Failed to check subscription")
	}
	if exists {
		return
	}
	_, err = client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{
		Topic:            topic,
		AckDeadline:      60 * time.Second,
		ExpirationPolicy: 31 * 24 * time.Hour,
		RetryPolicy: &pubsub.RetryPolicy{
			MinimumBackoff: 10 * time.Second,
			MaximumBackoff: 600 * time.Second,
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Str("subscription", subID).Msg("Failed to create subscription")
	}
	logger.Info().Str("subscription", subID).Msg("Subscription created")
}
