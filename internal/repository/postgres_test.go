package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"crystalgate/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSignupGrant = 15

var errWindowFull = errors.New("window full")

// newTestPool connects to TEST_DATABASE_URL and migrates it. Tests use fresh user IDs so they can
// share one database.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping Postgres integration tests")
	}
	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, dsn, "up"))
	pool, err := NewPool(ctx, dsn, true, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresSignupGrantedOnceUnderConcurrency(t *testing.T) {
	pool := newTestPool(t)
	repo := NewCreditRepo(pool, testSignupGrant)
	ctx := context.Background()
	userID := uuid.NewString()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.GetOrCreate(ctx, userID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	b, err := repo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(testSignupGrant), b.Balance)
	txs, err := repo.History(ctx, userID, 100)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, SignupReason, txs[0].Reason)
}

func TestPostgresConcurrentDeductNeverOverdraws(t *testing.T) {
	pool := newTestPool(t)
	repo := NewCreditRepo(pool, testSignupGrant)
	ctx := context.Background()
	userID := uuid.NewString()
	_, err := repo.GetOrCreate(ctx, userID)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Deduct(ctx, userID, 1, "identify", nil)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientBalance)
			fail++
		}()
	}
	wg.Wait()
	assert.Equal(t, testSignupGrant, ok)
	assert.Equal(t, 25-testSignupGrant, fail)

	b, err := repo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, b.Balance)
	assert.Equal(t, int64(testSignupGrant), b.TotalSpent)

	txs, err := repo.History(ctx, userID, 100)
	require.NoError(t, err)
	require.Len(t, txs, testSignupGrant+1)
	var sum int64
	for _, tx := range txs {
		sum += tx.Amount
	}
	assert.Equal(t, b.Balance, sum)
}

func TestPostgresSpendWindowLockSerializesUpdates(t *testing.T) {
	pool := newTestPool(t)
	repo := NewSpendRepo(pool)
	ctx := context.Background()
	userID := uuid.NewString()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.Update(ctx, userID, func(w *model.SpendWindow) error {
				if w.PendingCredits >= 3 {
					return errWindowFull
				}
				now := time.Now().UTC()
				w.Hourly += 1000
				w.PendingCredits++
				w.PendingSince = &now
				return nil
			})
		}(i)
	}
	wg.Wait()

	passed := 0
	for _, err := range errs {
		if err == nil {
			passed++
			continue
		}
		assert.ErrorIs(t, err, errWindowFull)
	}
	assert.Equal(t, 3, passed)

	w, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), w.Hourly)
	assert.Equal(t, int64(3), w.PendingCredits)
	assert.NotNil(t, w.PendingSince)
}

func TestPostgresRateWindowLockSerializesUpdates(t *testing.T) {
	pool := newTestPool(t)
	repo := NewRateRepo(pool)
	ctx := context.Background()
	userID := uuid.NewString()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.Update(ctx, userID, "identify", func(w *model.RateWindow) error {
				if w.Hourly >= 3 {
					return errWindowFull
				}
				w.Hourly++
				w.Daily++
				return nil
			})
		}(i)
	}
	wg.Wait()

	passed := 0
	for _, err := range errs {
		if err == nil {
			passed++
		}
	}
	assert.Equal(t, 3, passed)

	w, err := repo.Get(ctx, userID, "identify")
	require.NoError(t, err)
	assert.Equal(t, int64(3), w.Hourly)
}

func TestPostgresAccountDeleteRemovesEveryTable(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	userID, otherID := uuid.NewString(), uuid.NewString()

	users := NewUserRepo(pool)
	credits := NewCreditRepo(pool, testSignupGrant)
	idents := NewIdentificationRepo(pool)
	collection := NewCollectionRepo(pool)
	dreams := NewDreamRepo(pool)
	for _, id := range []string{userID, otherID} {
		_, err := users.GetOrCreate(ctx, id)
		require.NoError(t, err)
		_, err = credits.Deduct(ctx, id, 1, "identify", nil)
		require.NoError(t, err)
		require.NoError(t, NewSpendRepo(pool).Update(ctx, id, func(w *model.SpendWindow) error { w.Hourly = 1000; return nil }))
		require.NoError(t, NewRateRepo(pool).Update(ctx, id, "identify", func(w *model.RateWindow) error { w.Hourly = 1; return nil }))
		require.NoError(t, NewUsageRepo(pool).Record(ctx, &model.UsageEvent{UserID: id, Operation: "thumbnailAnalysis", Metadata: map[string]any{}}))
		require.NoError(t, NewStreakRepo(pool).Update(ctx, id, func(s *model.Streak) error { s.Current = 1; return nil }))
		ident := &model.Identification{ID: uuid.NewString(), UserID: id, CrystalName: "Amethyst", AnalysisType: "thumbnail",
			Operation: "thumbnailAnalysis", ModelUsed: "gemini-2.5-flash", Result: []byte(`{}`)}
		require.NoError(t, idents.Create(ctx, ident))
		require.NoError(t, collection.AddWithLimit(ctx, &model.CollectionEntry{ID: uuid.NewString(), UserID: id, CrystalName: "Amethyst", IdentificationID: &ident.ID}, 0))
		require.NoError(t, dreams.Create(ctx, &model.DreamEntry{ID: uuid.NewString(), UserID: id, Content: "A dream about rivers.", Analysis: `{}`, DreamDate: time.Now()}))
	}

	removed, err := NewAccountRepo(pool).Delete(ctx, userID)
	require.NoError(t, err)
	for _, table := range AccountTables {
		want := int64(1)
		if table == "credit_transactions" {
			want = 2
		}
		assert.Equal(t, want, removed[table], table)
	}

	u, err := users.GetUserByID(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, u)
	for _, table := range AccountTables {
		var n int
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE user_id = $1`, userID).Scan(&n))
		assert.Zero(t, n, table)
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE user_id = $1`, otherID).Scan(&n))
		assert.Positive(t, n, table)
	}
}
