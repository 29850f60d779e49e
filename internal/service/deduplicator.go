package service

import (
	"context"
	"encoding/hex"
	"errors"
	"math"
	"time"

	"crystalgate/internal/metrics"
	"crystalgate/internal/querybudget"
	"crystalgate/internal/quota"
	"crystalgate/internal/repository"

	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
)

const (
	fingerprintPrefixBytes = 500
	fingerprintHexLen      = 16
	defaultDedupeWindow    = 10 * time.Second
)

// Fingerprint hashes the first 500 bytes of payload and returns the first 16 hex characters.
func Fingerprint(payload []byte) string {
	if len(payload) > fingerprintPrefixBytes {
		payload = payload[:fingerprintPrefixBytes]
	}
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:])[:fingerprintHexLen]
}

// Deduplicator rejects identical requests from the same user within a short window.
type Deduplicator struct {
	store   repository.DedupeStore
	window  time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewDeduplicator(store repository.DedupeStore, window time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Deduplicator {
	if window <= 0 {
		window = defaultDedupeWindow
	}
	return &Deduplicator{store: store, window: window, metrics: m, logger: logger.With().Str("service", "Deduplicator").Logger()}
}

// CheckAndMark marks fingerprint for the window, or rejects with the time left on an existing marker.
// A window <= 0 uses the configured default. Store failures allow the request.
func (d *Deduplicator) CheckAndMark(ctx context.Context, userID, fingerprint string, window time.Duration) error {
	if window <= 0 {
		window = d.window
	}
	fresh, left, err := d.store.Mark(ctx, "dedupe:"+userID+":"+fingerprint, window)
	if err != nil {
		if errors.Is(err, querybudget.ErrExceeded) {
			return err
		}
		d.logger.Error().Err(err).Str("user_id", userID).Msg("Dedupe store unavailable, allowing request")
		d.metrics.FailOpen("dedupe")
		return nil
	}
	if fresh {
		d.metrics.Gate("dedupe", true)
		return nil
	}
	d.metrics.Gate("dedupe", false)
	secs := int(math.Ceil(left.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return quota.Reject(quota.ReasonDuplicateRequest, time.Duration(secs)*time.Second,
		"Duplicate request detected. Please wait %d seconds.", secs)
}
