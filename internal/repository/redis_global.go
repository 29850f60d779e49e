package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"crystalgate/internal/model"

	"github.com/redis/go-redis/v9"
)

//go:embed global_spend.lua
var globalSpendLua string

var globalSpendScript = redis.NewScript(globalSpendLua)

// Global ceiling breaches reported by GlobalSpendStore.Consume.
var (
	ErrEmergencyStop      = errors.New("global emergency ceiling reached")
	ErrGlobalHourlyLimit  = errors.New("global hourly ceiling reached")
	ErrGlobalDailyLimit   = errors.New("global daily ceiling reached")
	errUnexpectedResponse = errors.New("unexpected response format from Redis")
)

// GlobalSpendKey is the Redis hash holding the system-wide counters.
const GlobalSpendKey = "spend:global"

// GlobalSpendStore holds the system-wide spend counters shared by every user.
type GlobalSpendStore interface {
	// Consume rolls, checks and increments the counters in one atomic step. On a ceiling breach it
	// returns one of ErrEmergencyStop, ErrGlobalHourlyLimit or ErrGlobalDailyLimit and changes nothing.
	Consume(ctx context.Context, now time.Time, amount int64, c model.GlobalCeilings) (model.GlobalSpend, error)
	// Snapshot returns the stored counters without rolling them.
	Snapshot(ctx context.Context) (model.GlobalSpend, error)
}

type redisGlobalSpend struct {
	rdb *redis.Client
	key string
}

// NewRedisGlobalSpend creates a GlobalSpendStore backed by a Redis hash and a Lua script.
func NewRedisGlobalSpend(rdb *redis.Client) GlobalSpendStore {
	return &redisGlobalSpend{rdb: rdb, key: GlobalSpendKey}
}

func (s *redisGlobalSpend) Consume(ctx context.Context, now time.Time, amount int64, c model.GlobalCeilings) (model.GlobalSpend, error) {
	args := []interface{}{now.UnixMilli(), amount, c.Hourly, c.Daily, c.Emergency}
	result, err := globalSpendScript.Run(ctx, s.rdb, []string{s.key}, args...).Result()
	if err != nil {
		return model.GlobalSpend{}, fmt.Errorf("error executing global spend script: %w", err)
	}
	res, ok := result.([]interface{})
	if !ok || len(res) < 6 {
		return model.GlobalSpend{}, errUnexpectedResponse
	}
	nums := make([]int64, len(res))
	for i, v := range res {
		n, ok := v.(int64)
		if !ok {
			return model.GlobalSpend{}, errUnexpectedResponse
		}
		nums[i] = n
	}
	spend := model.GlobalSpend{
		Hourly:        nums[1],
		Daily:         nums[2],
		Total:         nums[3],
		LastHourReset: time.UnixMilli(nums[4]).UTC(),
		LastDayReset:  time.UnixMilli(nums[5]).UTC(),
	}
	switch nums[0] {
	case 1:
		return spend, nil
	case -1:
		return spend, ErrEmergencyStop
	case -2:
		return spend, ErrGlobalHourlyLimit
	case -3:
		return spend, ErrGlobalDailyLimit
	default:
		return spend, fmt.Errorf("unknown status from global spend script: %d", nums[0])
	}
}

func (s *redisGlobalSpend) Snapshot(ctx context.Context) (model.GlobalSpend, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return model.GlobalSpend{}, fmt.Errorf("reading global spend: %w", err)
	}
	num := func(field string) int64 {
		n, _ := strconv.ParseInt(vals[field], 10, 64)
		return n
	}
	return model.GlobalSpend{
		Hourly:        num("hourly"),
		Daily:         num("daily"),
		Total:         num("total"),
		LastHourReset: time.UnixMilli(num("hour_reset")).UTC(),
		LastDayReset:  time.UnixMilli(num("day_reset")).UTC(),
	}, nil
}
