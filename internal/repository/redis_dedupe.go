package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupeStore holds short-lived request markers.
type DedupeStore interface {
	// Mark sets key for ttl when absent and reports true. When the key is present it reports false
	// and the time left before it expires.
	Mark(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error)
}

type redisDedupe struct {
	rdb *redis.Client
}

// NewRedisDedupe creates a DedupeStore using SET NX with a millisecond TTL.
func NewRedisDedupe(rdb *redis.Client) DedupeStore {
	return &redisDedupe{rdb: rdb}
}

func (d *redisDedupe) Mark(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error) {
	ok, err := d.rdb.SetNX(ctx, key, time.Now().UnixMilli(), ttl).Result()
	if err != nil {
		return false, 0, fmt.Errorf("setting dedupe marker %s: %w", key, err)
	}
	if ok {
		return true, 0, nil
	}
	left, err := d.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("reading dedupe marker ttl %s: %w", key, err)
	}
	// -2 means the marker expired between the two calls; -1 means it has no TTL.
	switch {
	case left == -2:
		return d.Mark(ctx, key, ttl)
	case left < 0:
		left = ttl
	}
	return false, left, nil
}
