package handler

import (
	"context"
	"errors"
	"net/http"

	"crystalgate/internal/api/v1/dto"
	"crystalgate/internal/api/v1/operation"
	"crystalgate/internal/config"
	"crystalgate/internal/model"
	"crystalgate/internal/service"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"
)

// CrystalHandler serves the gated AI operations and usage reporting.
type CrystalHandler struct {
	identify *service.IdentifyService
	guidance *service.GuidanceService
	usage    *service.UsageService
	users    service.UserService
	logger   zerolog.Logger
}

func NewCrystalHandler(identify *service.IdentifyService, guidance *service.GuidanceService, usage *service.UsageService, users service.UserService, logger zerolog.Logger) *CrystalHandler {
	return &CrystalHandler{identify: identify, guidance: guidance, usage: usage, users: users, logger: logger}
}

func identificationDTO(i *model.Identification) dto.IdentificationDTO {
	return dto.IdentificationDTO{
		ID:           i.ID,
		CrystalName:  i.CrystalName,
		Variety:      i.Variety,
		Confidence:   i.Confidence,
		Description:  i.Description,
		AnalysisType: i.AnalysisType,
		ModelUsed:    i.ModelUsed,
		Result:       i.Result,
		CreatedAt:    i.CreatedAt,
	}
}

// Identify runs a crystal identification through the quota gates
func (h *CrystalHandler) Identify(ctx context.Context, input *operation.IdentifyInput) (*operation.IdentifyOutput, error) {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	res, err := h.identify.Identify(ctx, userID, service.IdentifyRequest{ImageBase64: input.Body.Image, ForceFull: input.Body.ForceFull})
	if err != nil {
		if gerr := gateError(err); gerr != nil {
			return nil, gerr
		}
		switch {
		case errors.Is(err, service.ErrInvalidImage):
			return nil, huma.Error400BadRequest(err.Error())
		case errors.Is(err, service.ErrImageTooLarge):
			return nil, huma.NewError(http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, service.ErrFullAnalysisNotAllowed):
			return nil, huma.Error403Forbidden(err.Error())
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Identification failed")
		return nil, huma.Error500InternalServerError("Failed to identify crystal")
	}

	return &operation.IdentifyOutput{
		Body: dto.IdentifyResponseDTO{
			Identification: identificationDTO(res.Identification),
			Meta: dto.IdentifyMetaDTO{
				Tier:             res.Tier,
				Operation:        res.Identification.Operation,
				Cached:           res.Cached,
				Progressive:      res.Progressive,
				EstimatedCost:    config.FromMicros(res.EstimatedCostMicros).StringFixed(4),
				CreditsCharged:   res.CreditsCharged,
				CreditsRemaining: res.CreditsRemaining,
			},
		},
	}, nil
}

// GetIdentificationHistory lists the user's past identifications
func (h *CrystalHandler) GetIdentificationHistory(ctx context.Context, input *operation.IdentificationHistoryInput) (*operation.IdentificationHistoryOutput, error) {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	items, err := h.identify.History(ctx, userID, input.Limit)
	if err != nil {
		if gerr := gateError(err); gerr != nil {
			return nil, gerr
		}
		return nil, huma.Error500InternalServerError("Failed to retrieve identifications", err)
	}

	out := dto.IdentificationHistoryDTO{Identifications: make([]dto.IdentificationDTO, 0, len(items))}
	for i := range items {
		out.Identifications = append(out.Identifications, identificationDTO(&items[i]))
	}
	return &operation.IdentificationHistoryOutput{Body: out}, nil
}

// Guidance answers a crystal question through the quota gates
func (h *CrystalHandler) Guidance(ctx context.Context, input *operation.GuidanceInput) (*operation.GuidanceOutput, error) {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	res, err := h.guidance.Ask(ctx, userID, input.Body.Question)
	if err != nil {
		if gerr := gateError(err); gerr != nil {
			return nil, gerr
		}
		if errors.Is(err, service.ErrInvalidQuestion) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Guidance failed")
		return nil, huma.Error500InternalServerError("Failed to get guidance")
	}

	return &operation.GuidanceOutput{
		Body: dto.GuidanceResponseDTO{
			Answer:           res.Answer,
			Operation:        res.Operation,
			Cached:           res.Cached,
			CreditsCharged:   res.CreditsCharged,
			CreditsRemaining: res.CreditsRemaining,
		},
	}, nil
}

// GetUsage reports spend and request counts against the user's plan limits
func (h *CrystalHandler) GetUsage(ctx context.Context, input *operation.GetUsageInput) (*operation.GetUsageOutput, error) {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	user, err := h.users.Ensure(ctx, userID)
	if err != nil {
		if gerr := gateError(err); gerr != nil {
			return nil, gerr
		}
		return nil, huma.Error500InternalServerError("Failed to load user", err)
	}
	stats, err := h.usage.Stats(ctx, userID, user.Tier)
	if err != nil {
		if gerr := gateError(err); gerr != nil {
			return nil, gerr
		}
		return nil, huma.Error500InternalServerError("Failed to load usage", err)
	}
	return &operation.GetUsageOutput{Body: *stats}, nil
}
