package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Stores bundles every store the service needs, so the backing driver can be chosen at startup.
type Stores struct {
	Users           UserRepository
	Credits         CreditRepository
	Spend           SpendRepository
	Rate            RateRepository
	Usage           UsageRepository
	Identifications IdentificationRepository
	Collection      CollectionRepository
	Streaks         StreakRepository
	Dreams          DreamRepository
	Accounts        AccountRepository
	Global          GlobalSpendStore
	Dedupe          DedupeStore
	Cache           ResponseCache
}

// NewStores backs the ledger with Postgres and the shared counters with Redis.
func NewStores(pool *pgxpool.Pool, rdb *redis.Client, signupGrant int64) Stores {
	return Stores{
		Users:           NewUserRepo(pool),
		Credits:         NewCreditRepo(pool, signupGrant),
		Spend:           NewSpendRepo(pool),
		Rate:            NewRateRepo(pool),
		Usage:           NewUsageRepo(pool),
		Identifications: NewIdentificationRepo(pool),
		Collection:      NewCollectionRepo(pool),
		Streaks:         NewStreakRepo(pool),
		Dreams:          NewDreamRepo(pool),
		Accounts:        NewAccountRepo(pool),
		Global:          NewRedisGlobalSpend(rdb),
		Dedupe:          NewRedisDedupe(rdb),
		Cache:           NewRedisCache(rdb),
	}
}
