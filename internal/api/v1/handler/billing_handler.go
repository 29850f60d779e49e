package handler

import (
	"context"
	"errors"

	"crystalgate/internal/api/v1/dto"
	"crystalgate/internal/api/v1/operation"
	"crystalgate/internal/middleware"
	"crystalgate/internal/service"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"
)

// BillingHandler handles subscription checkout and the customer portal.
type BillingHandler struct {
	stripeSvc *service.StripeService
	logger    zerolog.Logger
}

func NewBillingHandler(stripeSvc *service.StripeService, logger zerolog.Logger) *BillingHandler {
	return &BillingHandler{stripeSvc: stripeSvc, logger: logger}
}

// Checkout initiates a Stripe Checkout session for a plan upgrade
func (h *BillingHandler) Checkout(ctx context.Context, input *operation.CheckoutInput) (*operation.CheckoutOutput, error) {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	url, err := h.stripeSvc.CreateCheckoutSession(ctx, userID, middleware.Email(ctx), input.Body.Tier)
	if err != nil {
		if gerr := gateError(err); gerr != nil {
			return nil, gerr
		}
		if errors.Is(err, service.ErrInvalidPlanTier) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to create checkout session")
		return nil, huma.Error500InternalServerError("Failed to create checkout session")
	}
	return &operation.CheckoutOutput{Body: dto.SessionURLDTO{URL: url}}, nil
}

// Portal creates a Stripe Customer Portal session
func (h *BillingHandler) Portal(ctx context.Context, input *operation.PortalInput) (*operation.PortalOutput, error) {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	url, err := h.stripeSvc.CreatePortalSession(ctx, userID)
	if err != nil {
		if gerr := gateError(err); gerr != nil {
			return nil, gerr
		}
		if errors.Is(err, service.ErrNoStripeCustomer) {
			return nil, huma.Error404NotFound("No billing account found. Subscribe to a plan first.")
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to create portal session")
		return nil, huma.Error500InternalServerError("Failed to create portal session")
	}
	return &operation.PortalOutput{Body: dto.SessionURLDTO{URL: url}}, nil
}
