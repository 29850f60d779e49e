package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"crystalgate/internal/config"
	"crystalgate/internal/model"
	"crystalgate/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	billingsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	customerpkg "github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	ErrInvalidPlanTier  = errors.New("tier must be premium, pro or founders")
	ErrNoStripeCustomer = errors.New("no billing account for user")
	errBadPayload       = errors.New("invalid webhook payload")
)

// StripeService manages Stripe integration
type StripeService struct {
	cfg      *config.Config
	userRepo repository.UserRepository
	subSvc   SubscriptionService
	rate     *RateLimiter
	logger   zerolog.Logger
}

// NewStripeService initializes Stripe key and returns service with a scoped logger
func NewStripeService(cfg *config.Config, userRepo repository.UserRepository, subSvc SubscriptionService, rate *RateLimiter, logger zerolog.Logger) *StripeService {
	stripe.Key = cfg.StripeSecretKey
	lg := logger.With().Str("service", "StripeService").Logger()
	return &StripeService{cfg: cfg, userRepo: userRepo, subSvc: subSvc, rate: rate, logger: lg}
}

// priceForTier maps a paid tier to its configured Stripe price.
func (s *StripeService) priceForTier(tier string) (string, error) {
	switch tier {
	case config.TierPremium:
		return s.cfg.StripePricePremium, nil
	case config.TierPro:
		return s.cfg.StripePricePro, nil
	case config.TierFounders:
		return s.cfg.StripePriceFounders, nil
	default:
		return "", ErrInvalidPlanTier
	}
}

// tierForPrice is the inverse of priceForTier. It returns "" for unknown prices.
func (s *StripeService) tierForPrice(priceID string) string {
	for _, tier := range []string{config.TierPremium, config.TierPro, config.TierFounders} {
		if p, _ := s.priceForTier(tier); p != "" && p == priceID {
			return tier
		}
	}
	return ""
}

// getUserIDFromEvent is a helper method to resolve user ID from webhook metadata or customer ID
func (s *StripeService) getUserIDFromEvent(ctx context.Context, metadata map[string]string, customer *stripe.Customer) (string, error) {
	if userID, ok := metadata["user_id"]; ok && userID != "" {
		return userID, nil
	}
	if customer == nil || customer.ID == "" {
		return "", errors.New("cannot determine user: missing metadata and customer id")
	}
	s.logger.Warn().Str("stripe_customer_id", customer.ID).Msg("Missing user_id metadata; looking up user by customer ID")
	u, err := s.userRepo.GetUserByStripeCustomerID(ctx, customer.ID)
	if err != nil {
		return "", fmt.Errorf("failed to lookup user by Stripe customer ID: %w", err)
	}
	if u == nil {
		return "", fmt.Errorf("no user found for customer ID: %s", customer.ID)
	}
	return u.UserID, nil
}

// GetOrCreateCustomer ensures a Stripe Customer exists for a user
func (s *StripeService) GetOrCreateCustomer(ctx context.Context, user *model.User, email string) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	params := &stripe.CustomerParams{Metadata: map[string]string{"user_id": user.UserID}}
	if email != "" {
		params.Email = stripe.String(email)
	}
	cust, err := customerpkg.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to create Stripe customer")
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := s.userRepo.UpdateStripeCustomerID(ctx, user.UserID, cust.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to store stripe customer id")
		return "", fmt.Errorf("store stripe customer id: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession creates a Stripe Checkout session for tier. Checkout is rate limited per user.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, userID, email, tier string) (string, error) {
	priceID, err := s.priceForTier(tier)
	if err != nil {
		return "", err
	}
	user, err := s.userRepo.GetOrCreate(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch user for checkout session")
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if err := s.rate.Authorize(ctx, userID, config.ActionCheckout, user.Tier); err != nil {
		return "", err
	}
	customerID, err := s.GetOrCreateCustomer(ctx, user, email)
	if err != nil {
		return "", err
	}
	meta := map[string]string{"user_id": userID, "tier": tier}
	sessParams := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(customerID),
		LineItems:  []*stripe.CheckoutSessionLineItemParams{{Price: stripe.String(priceID), Quantity: stripe.Int64(1)}},
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(s.cfg.StripePortalReturnURL + "?status=success"),
		CancelURL:  stripe.String(s.cfg.StripePortalReturnURL + "?status=cancel"),
		Metadata:   meta,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: meta,
		},
	}
	sess, err := checkoutsession.New(sessParams)
	if err != nil {
		s.logger.Error().Err(err).Str("tier", tier).Msg("Failed to create Stripe checkout session")
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreatePortalSession creates a Stripe Customer Portal session
func (s *StripeService) CreatePortalSession(ctx context.Context, userID string) (string, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch user for portal session")
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if user == nil || user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", ErrNoStripeCustomer
	}
	params := &stripe.BillingPortalSessionParams{Customer: stripe.String(*user.StripeCustomerID), ReturnURL: stripe.String(s.cfg.StripePortalReturnURL)}
	sess, err := billingsession.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create Stripe billing portal session")
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// HandleWebhook verifies and processes Stripe webhook events
func (s *StripeService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read Stripe webhook payload")
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}
	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), s.cfg.StripeWebhookSecret)
	if err != nil {
		s.logger.Error().Err(err).Msg("Signature verification failed for Stripe webhook")
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}
	s.logger.Info().Str("event_type", string(event.Type)).Msg("Stripe webhook received")

	if err := s.HandleEvent(r.Context(), event); err != nil {
		if errors.Is(err, errBadPayload) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to process event", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleEvent applies a verified event to the user's tier and subscription status.
func (s *StripeService) HandleEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			s.logger.Error().Err(err).Msg("Invalid checkout.session data")
			return fmt.Errorf("%w: checkout.session", errBadPayload)
		}
		userID := cs.Metadata["user_id"]
		tier := cs.Metadata["tier"]
		if userID == "" || tier == "" {
			s.logger.Error().Str("session_id", cs.ID).Msg("Missing user_id or tier in checkout session metadata")
			return fmt.Errorf("%w: missing user_id or tier metadata", errBadPayload)
		}
		if cs.Customer != nil && cs.Customer.ID != "" {
			if err := s.userRepo.UpdateStripeCustomerID(ctx, userID, cs.Customer.ID); err != nil {
				return err
			}
		}
		var subID *string
		if cs.Subscription != nil && cs.Subscription.ID != "" {
			subID = &cs.Subscription.ID
		}
		return s.subSvc.Activate(ctx, userID, tier, subID)

	case "invoice.payment_succeeded", "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			s.logger.Error().Err(err).Msg("Invalid invoice payload")
			return fmt.Errorf("%w: invoice", errBadPayload)
		}
		userID, err := s.getUserIDFromEvent(ctx, invoice.Metadata, invoice.Customer)
		if err != nil {
			s.logger.Error().Err(err).Str("invoice_id", invoice.ID).Msg("Failed to determine user ID from invoice")
			return err
		}
		status := model.SubscriptionActive
		if event.Type == "invoice.payment_failed" {
			status = model.SubscriptionPastDue
		}
		return s.subSvc.SetStatus(ctx, userID, status)

	case "customer.subscription.updated":
		var ss stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
			s.logger.Error().Err(err).Msg("Invalid customer.subscription.updated payload")
			return fmt.Errorf("%w: subscription", errBadPayload)
		}
		userID, err := s.getUserIDFromEvent(ctx, ss.Metadata, ss.Customer)
		if err != nil {
			s.logger.Error().Err(err).Str("subscription_id", ss.ID).Msg("Failed to determine user ID from subscription")
			return err
		}
		tier := ""
		if ss.Items != nil && len(ss.Items.Data) > 0 && ss.Items.Data[0].Price != nil {
			tier = s.tierForPrice(ss.Items.Data[0].Price.ID)
		}
		if tier != "" && ss.Status == stripe.SubscriptionStatusActive {
			return s.subSvc.Activate(ctx, userID, tier, &ss.ID)
		}
		return s.subSvc.SetStatus(ctx, userID, string(ss.Status))

	case "customer.subscription.deleted":
		var ss stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
			s.logger.Error().Err(err).Msg("Invalid customer.subscription.deleted payload")
			return fmt.Errorf("%w: subscription", errBadPayload)
		}
		userID, err := s.getUserIDFromEvent(ctx, ss.Metadata, ss.Customer)
		if err != nil {
			s.logger.Error().Err(err).Str("subscription_id", ss.ID).Msg("Failed to determine user ID from subscription")
			return err
		}
		return s.subSvc.DowngradeToFree(ctx, userID)

	default:
		s.logger.Warn().Str("event_type", string(event.Type)).Msg("Unhandled Stripe webhook event")
		return nil
	}
}
