package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"crystalgate/internal/config"
	"crystalgate/internal/model"
	"crystalgate/internal/quota"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func newStripeService(h *harness) *StripeService {
	cfg := &config.Config{
		StripeWebhookSecret: "whsec_test",
		StripePricePremium:  "price_premium",
		StripePricePro:      "price_pro",
		StripePriceFounders: "price_founders",
	}
	subs := NewSubscriptionService(h.users, h.limits, zerolog.Nop())
	return NewStripeService(cfg, h.users, subs, h.limiter, zerolog.Nop())
}

func stripeEvent(typ string, data string) stripe.Event {
	return stripe.Event{Type: stripe.EventType(typ), Data: &stripe.EventData{Raw: json.RawMessage(data)}}
}

func userOf(t *testing.T, h *harness, id string) *model.User {
	t.Helper()
	u, err := h.users.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func TestCheckoutCompletedActivatesTier(t *testing.T) {
	h := newHarness(t)
	svc := newStripeService(h)
	h.withTier("u1", config.TierFree)

	err := svc.HandleEvent(context.Background(), stripeEvent("checkout.session.completed",
		`{"id":"cs_1","customer":"cus_1","subscription":"sub_1","metadata":{"user_id":"u1","tier":"pro"}}`))
	require.NoError(t, err)

	u := userOf(t, h, "u1")
	assert.Equal(t, config.TierPro, u.Tier)
	assert.Equal(t, model.SubscriptionActive, u.SubscriptionStatus)
	require.NotNil(t, u.StripeCustomerID)
	assert.Equal(t, "cus_1", *u.StripeCustomerID)
	require.NotNil(t, u.StripeSubscriptionID)
	assert.Equal(t, "sub_1", *u.StripeSubscriptionID)
}

func TestCheckoutCompletedRejectsMissingMetadata(t *testing.T) {
	h := newHarness(t)
	svc := newStripeService(h)

	err := svc.HandleEvent(context.Background(), stripeEvent("checkout.session.completed", `{"id":"cs_1","metadata":{"user_id":"u1"}}`))
	assert.ErrorIs(t, err, errBadPayload)

	err = svc.HandleEvent(context.Background(), stripeEvent("checkout.session.completed",
		`{"id":"cs_2","metadata":{"user_id":"u1","tier":"platinum"}}`))
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestInvoiceFailureResolvesUserByCustomer(t *testing.T) {
	h := newHarness(t)
	svc := newStripeService(h)
	cus := "cus_9"
	h.users.Put(model.User{UserID: "u9", Tier: config.TierPremium, SubscriptionStatus: model.SubscriptionActive, StripeCustomerID: &cus})

	require.NoError(t, svc.HandleEvent(context.Background(), stripeEvent("invoice.payment_failed", `{"id":"in_1","customer":"cus_9"}`)))
	u := userOf(t, h, "u9")
	assert.Equal(t, model.SubscriptionPastDue, u.SubscriptionStatus)
	assert.Equal(t, config.TierPremium, u.Tier)

	require.NoError(t, svc.HandleEvent(context.Background(), stripeEvent("invoice.payment_succeeded", `{"id":"in_2","customer":"cus_9"}`)))
	assert.Equal(t, model.SubscriptionActive, userOf(t, h, "u9").SubscriptionStatus)

	err := svc.HandleEvent(context.Background(), stripeEvent("invoice.payment_failed", `{"id":"in_3","customer":"cus_unknown"}`))
	assert.Error(t, err)
}

func TestSubscriptionUpdatedAndDeleted(t *testing.T) {
	h := newHarness(t)
	svc := newStripeService(h)
	h.withTier("u1", config.TierPremium)
	ctx := context.Background()

	require.NoError(t, svc.HandleEvent(ctx, stripeEvent("customer.subscription.updated",
		`{"id":"sub_1","status":"active","metadata":{"user_id":"u1"},"items":{"object":"list","data":[{"id":"si_1","price":{"id":"price_founders"}}]}}`)))
	assert.Equal(t, config.TierFounders, userOf(t, h, "u1").Tier)

	require.NoError(t, svc.HandleEvent(ctx, stripeEvent("customer.subscription.updated",
		`{"id":"sub_1","status":"past_due","metadata":{"user_id":"u1"},"items":{"object":"list","data":[{"id":"si_1","price":{"id":"price_founders"}}]}}`)))
	u := userOf(t, h, "u1")
	assert.Equal(t, config.TierFounders, u.Tier)
	assert.Equal(t, model.SubscriptionPastDue, u.SubscriptionStatus)

	require.NoError(t, svc.HandleEvent(ctx, stripeEvent("customer.subscription.deleted", `{"id":"sub_1","metadata":{"user_id":"u1"}}`)))
	u = userOf(t, h, "u1")
	assert.Equal(t, config.TierFree, u.Tier)
	assert.Equal(t, model.SubscriptionCanceled, u.SubscriptionStatus)
	assert.Nil(t, u.StripeSubscriptionID)
}

func TestUnhandledEventIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	assert.NoError(t, newStripeService(h).HandleEvent(context.Background(), stripeEvent("charge.refunded", `{}`)))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	svc := newStripeService(h)

	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", strings.NewReader(`{"type":"checkout.session.completed"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	svc.HandleWebhook(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutValidatesTierAndRateLimits(t *testing.T) {
	h := newHarness(t)
	svc := newStripeService(h)
	ctx := context.Background()

	_, err := svc.CreateCheckoutSession(ctx, "u1", "u1@example.com", config.TierFree)
	assert.ErrorIs(t, err, ErrInvalidPlanTier)

	require.NoError(t, h.rate.Update(ctx, "u1", config.ActionCheckout, func(w *model.RateWindow) error {
		w.Hourly, w.Daily = 3, 3
		w.LastHourReset, w.LastDayReset, w.LastMonthReset = t0, t0, t0
		return nil
	}))
	_, err = svc.CreateCheckoutSession(ctx, "u1", "u1@example.com", config.TierPro)
	assert.ErrorIs(t, err, quota.ErrRateLimitExceeded)

	_, err = svc.CreatePortalSession(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoStripeCustomer)
}
