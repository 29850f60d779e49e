package service

import (
	"context"
	"testing"

	"crystalgate/internal/config"
	"crystalgate/internal/model"
	"crystalgate/internal/repository/memstore"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountDeleteCascades(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	accounts := NewAccountService(h.users, memstore.NewAccounts(h.users, h.credits, h.spend, h.rate, h.usage, h.idents, h.collection, h.streaks, h.dreamStore), zerolog.Nop())

	_, err := h.identify.Identify(ctx, "u1", IdentifyRequest{ImageBase64: pngImage(1024, 'a')})
	require.NoError(t, err)
	_, err = h.dreams.Interpret(ctx, "u1", DreamInput{Content: "A dream about a glass tower."})
	require.NoError(t, err)
	_, err = h.checkIn.CheckIn(ctx, "u1", config.TierFree)
	require.NoError(t, err)
	_, err = h.identify.Identify(ctx, "u2", IdentifyRequest{ImageBase64: pngImage(1024, 'b')})
	require.NoError(t, err)

	removed, err := accounts.Delete(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed["users"])
	assert.Equal(t, int64(1), removed["identifications"])
	assert.Equal(t, int64(1), removed["dream_entries"])
	assert.Equal(t, int64(1), removed["credit_balances"])
	assert.Equal(t, int64(4), removed["credit_transactions"])
	assert.Equal(t, int64(2), removed["usage_events"])
	assert.Equal(t, int64(2), removed["rate_windows"])
	assert.Equal(t, int64(1), removed["spend_windows"])
	assert.Equal(t, int64(1), removed["streaks"])

	history, err := h.identify.History(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Len(t, h.usage.Events(), 1, "other users keep their usage")

	other, err := h.identify.History(ctx, "u2", 0)
	require.NoError(t, err)
	assert.Len(t, other, 1)

	again, err := accounts.Delete(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, again["users"])
}

func TestAccountDeleteRefusesBilledUser(t *testing.T) {
	h := newHarness(t)
	accounts := NewAccountService(h.users, memstore.NewAccounts(h.users, h.credits, h.spend, h.rate, h.usage, h.idents, h.collection, h.streaks, h.dreamStore), zerolog.Nop())
	sub := "sub_1"
	h.users.Put(model.User{UserID: "u1", Tier: config.TierPro, SubscriptionStatus: model.SubscriptionPastDue, StripeSubscriptionID: &sub})

	_, err := accounts.Delete(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrActiveSubscription)

	h.users.Put(model.User{UserID: "u1", Tier: config.TierFree, SubscriptionStatus: model.SubscriptionCanceled, StripeSubscriptionID: &sub})
	_, err = accounts.Delete(context.Background(), "u1")
	assert.NoError(t, err)
}
