package handler

import (
	"context"
	"encoding/json"
	"errors"

	"crystalgate/internal/api/v1/dto"
	"crystalgate/internal/api/v1/operation"
	"crystalgate/internal/model"
	"crystalgate/internal/service"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"
)

// DreamHandler serves the dream journal.
type DreamHandler struct {
	dreams *service.DreamService
	logger zerolog.Logger
}

func NewDreamHandler(dreams *service.DreamService, logger zerolog.Logger) *DreamHandler {
	return &DreamHandler{dreams: dreams, logger: logger}
}

func dreamDTO(d *model.DreamEntry) dto.DreamEntryDTO {
	out := dto.DreamEntryDTO{
		ID:                 d.ID,
		Content:            d.Content,
		Analysis:           json.RawMessage(d.Analysis),
		Affirmation:        d.Affirmation,
		CrystalSuggestions: make([]dto.CrystalSuggestionDTO, 0, len(d.CrystalSuggestions)),
		CrystalsUsed:       d.CrystalsUsed,
		Mood:               d.Mood,
		MoonPhase:          d.MoonPhase,
		DreamDate:          d.DreamDate,
		CreatedAt:          d.CreatedAt,
	}
	if out.CrystalsUsed == nil {
		out.CrystalsUsed = []string{}
	}
	for _, c := range d.CrystalSuggestions {
		out.CrystalSuggestions = append(out.CrystalSuggestions, dto.CrystalSuggestionDTO{Name: c.Name, Reason: c.Reason, Usage: c.Usage})
	}
	return out
}

// InterpretDream interprets a dream through the quota gates and saves it to the journal
func (h *DreamHandler) InterpretDream(ctx context.Context, input *operation.InterpretDreamInput) (*operation.InterpretDreamOutput, error) {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	res, err := h.dreams.Interpret(ctx, userID, service.DreamInput{
		Content:      input.Body.Content,
		UserCrystals: input.Body.UserCrystals,
		Mood:         input.Body.Mood,
		MoonPhase:    input.Body.MoonPhase,
		DreamDate:    input.Body.DreamDate,
	})
	if err != nil {
		if gerr := gateError(err); gerr != nil {
			return nil, gerr
		}
		if errors.Is(err, service.ErrInvalidDream) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Dream interpretation failed")
		return nil, huma.Error500InternalServerError("Failed to interpret dream")
	}

	return &operation.InterpretDreamOutput{
		Body: dto.DreamResponseDTO{
			Dream:            dreamDTO(res.Entry),
			Tier:             res.Tier,
			CreditsCharged:   res.CreditsCharged,
			CreditsRemaining: res.CreditsRemaining,
		},
	}, nil
}

// ListDreams lists the user's dream journal, most recent first
func (h *DreamHandler) ListDreams(ctx context.Context, input *operation.DreamHistoryInput) (*operation.DreamHistoryOutput, error) {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	items, err := h.dreams.History(ctx, userID, input.Limit)
	if err != nil {
		return nil, internalError(err, "Failed to retrieve dreams")
	}
	out := dto.DreamHistoryDTO{Dreams: make([]dto.DreamEntryDTO, 0, len(items))}
	for i := range items {
		out.Dreams = append(out.Dreams, dreamDTO(&items[i]))
	}
	return &operation.DreamHistoryOutput{Body: out}, nil
}
