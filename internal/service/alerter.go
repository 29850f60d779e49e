package service

import (
	"context"
	"encoding/json"
	"time"

	"crystalgate/internal/metrics"
	"crystalgate/internal/model"
	"crystalgate/internal/pubsub"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Alerter publishes spend alerts. Publishing is best effort: failures are logged and dropped.
type Alerter struct {
	pub     pubsub.Publisher
	topic   string
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewAlerter(pub pubsub.Publisher, topic string, m *metrics.Metrics, logger zerolog.Logger) *Alerter {
	return &Alerter{pub: pub, topic: topic, metrics: m, logger: logger.With().Str("service", "Alerter").Logger()}
}

func (a *Alerter) Send(ctx context.Context, alert model.SpendAlert) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	a.metrics.Alert(alert.Kind)

	payload, err := json.Marshal(alert)
	if err != nil {
		a.logger.Error().Err(err).Str("kind", alert.Kind).Msg("Failed to encode spend alert")
		return
	}
	// Alerts must go out even when the triggering request was cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := a.pub.Publish(ctx, a.topic, payload); err != nil {
		a.logger.Error().Err(err).Str("kind", alert.Kind).Str("user_id", alert.UserID).Msg("Failed to publish spend alert")
		return
	}
	a.logger.Info().Str("kind", alert.Kind).Str("severity", string(alert.Severity)).Str("user_id", alert.UserID).Msg("Spend alert published")
}
