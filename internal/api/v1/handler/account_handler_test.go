package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"crystalgate/internal/config"
	"crystalgate/internal/metrics"
	"crystalgate/internal/middleware"
	"crystalgate/internal/querybudget"
	"crystalgate/internal/quota"
	"crystalgate/internal/repository"
	"crystalgate/internal/repository/memstore"
	"crystalgate/internal/service"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccountAPI(t *testing.T, userID string) humatest.TestAPI {
	t.Helper()
	api, _ := newAccountAPIWithStores(t, userID)
	return api
}

func newAccountAPIWithStores(t *testing.T, userID string) (humatest.TestAPI, repository.Stores) {
	t.Helper()
	limits := config.DefaultLimits()
	st := memstore.NewStores(limits.Credits.SignupGrant)
	credits := service.NewCreditService(st.Credits, limits, metrics.New(), zerolog.Nop())
	h := NewAccountHandler(
		service.NewUserService(st.Users),
		credits,
		service.NewCheckInService(st.Streaks, credits, limits, zerolog.Nop()),
		service.NewCollectionService(st.Collection, limits, zerolog.Nop()),
		service.NewAccountService(st.Users, st.Accounts, zerolog.Nop()),
		limits,
		zerolog.Nop(),
	)

	_, api := humatest.New(t)
	api.UseMiddleware(func(ctx huma.Context, next func(huma.Context)) {
		if userID != "" {
			ctx = huma.WithValue(ctx, middleware.UserContextKey, userID)
		}
		next(ctx)
	})
	huma.Register(api, huma.Operation{OperationID: "checkIn", Method: http.MethodPost, Path: "/checkin"}, h.CheckIn)
	huma.Register(api, huma.Operation{OperationID: "getCredits", Method: http.MethodGet, Path: "/credits"}, h.GetCredits)
	huma.Register(api, huma.Operation{OperationID: "addToCollection", Method: http.MethodPost, Path: "/collection", DefaultStatus: http.StatusCreated}, h.AddToCollection)
	huma.Register(api, huma.Operation{OperationID: "listCollection", Method: http.MethodGet, Path: "/collection"}, h.ListCollection)
	huma.Register(api, huma.Operation{OperationID: "deleteAccount", Method: http.MethodDelete, Path: "/account"}, h.DeleteAccount)
	return api, st
}

func TestCheckInTwiceConflicts(t *testing.T) {
	api := newAccountAPI(t, "u1")

	resp := api.Post("/checkin")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"current_streak":1`)
	assert.Contains(t, resp.Body.String(), `"balance":16`)

	resp = api.Post("/checkin")
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestCollectionFullIsForbidden(t *testing.T) {
	api := newAccountAPI(t, "u1")

	for i := 0; i < 10; i++ {
		resp := api.Post("/collection", map[string]any{"crystal_name": fmt.Sprintf("Agate %d", i)})
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	}
	resp := api.Post("/collection", map[string]any{"crystal_name": "Jasper"})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = api.Get("/collection")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"count":10`)
	assert.Contains(t, resp.Body.String(), `"limit":10`)
}

func TestDeleteAccountRemovesEverything(t *testing.T) {
	api, st := newAccountAPIWithStores(t, "u1")
	ctx := context.Background()

	require.Equal(t, http.StatusOK, api.Post("/checkin").Code)
	require.Equal(t, http.StatusCreated, api.Post("/collection", map[string]any{"crystal_name": "Agate"}).Code)
	_, err := st.Users.GetOrCreate(ctx, "u2")
	require.NoError(t, err)

	resp := api.Delete("/account")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Contains(t, resp.Body.String(), `"deleted":true`)
	assert.Contains(t, resp.Body.String(), `"users":1`)
	assert.Contains(t, resp.Body.String(), `"collection_entries":1`)
	assert.Contains(t, resp.Body.String(), `"credit_transactions":2`)

	u, err := st.Users.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, u)
	entries, err := st.Collection.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, entries)
	txs, err := st.Credits.History(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, txs)

	other, err := st.Users.GetUserByID(ctx, "u2")
	require.NoError(t, err)
	assert.NotNil(t, other)

	// A new request starts over as a fresh free user with the signup grant.
	resp = api.Get("/credits")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"balance":15`)
}

func TestDeleteAccountWithActiveSubscriptionConflicts(t *testing.T) {
	api, st := newAccountAPIWithStores(t, "u1")
	sub := "sub_123"
	require.NoError(t, st.Users.UpdateSubscription(context.Background(), "u1", config.TierPremium, "active", &sub))

	assert.Equal(t, http.StatusConflict, api.Delete("/account").Code)
	u, err := st.Users.GetUserByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, u)
}

func TestMissingUserIsUnauthorized(t *testing.T) {
	api := newAccountAPI(t, "")
	assert.Equal(t, http.StatusUnauthorized, api.Get("/credits").Code)
}

func TestGateErrorMapping(t *testing.T) {
	rej := quota.Reject(quota.ReasonRateLimitExceeded, 90*time.Second, "Rate limit: %d identify requests per hour.", 3)
	err := gateError(fmt.Errorf("identify: %w", rej))
	require.Error(t, err)

	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.GetStatus())
	var he huma.HeadersError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "90", he.GetHeaders().Get("Retry-After"))

	err = gateError(quota.ErrInsufficientCredits)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusPaymentRequired, se.GetStatus())

	g := querybudget.New(1)
	ctx := querybudget.WithGuard(context.Background(), g)
	_ = querybudget.Track(ctx, "read", "users")
	err = gateError(querybudget.Track(ctx, "read", "users"))
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.GetStatus())

	assert.NoError(t, gateError(errors.New("boom")))
}
