package handler

import (
	"context"
	"errors"

	"crystalgate/internal/api/v1/dto"
	"crystalgate/internal/api/v1/operation"
	"crystalgate/internal/config"
	"crystalgate/internal/repository"
	"crystalgate/internal/service"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"
)

// AccountHandler serves the user's profile, credits, streak and collection.
type AccountHandler struct {
	users      service.UserService
	credits    service.CreditService
	checkIn    *service.CheckInService
	collection service.CollectionService
	accounts   *service.AccountService
	limits     *config.Limits
	logger     zerolog.Logger
}

func NewAccountHandler(users service.UserService, credits service.CreditService, checkIn *service.CheckInService, collection service.CollectionService, accounts *service.AccountService, limits *config.Limits, logger zerolog.Logger) *AccountHandler {
	return &AccountHandler{users: users, credits: credits, checkIn: checkIn, collection: collection, accounts: accounts, limits: limits, logger: logger}
}

// internalError maps gate failures and falls back to a 500 with msg.
func internalError(err error, msg string) error {
	if gerr := gateError(err); gerr != nil {
		return gerr
	}
	return huma.Error500InternalServerError(msg, err)
}

// GetUser retrieves the authenticated user's profile, creating it on first access
func (h *AccountHandler) GetUser(ctx context.Context, input *operation.GetUserInput) (*operation.GetUserOutput, error) {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	user, err := h.users.Ensure(ctx, userID)
	if err != nil {
		return nil, internalError(err, "Failed to get user")
	}
	return &operation.GetUserOutput{
		Body: dto.UserResponseDTO{
			UserID:             user.UserID,
			Tier:               user.Tier,
			SubscriptionStatus: user.SubscriptionStatus,
			CreatedAt:          user.CreatedAt,
		},
	}, nil
}

// GetCredits returns the user's credit balance
func (h *AccountHandler) GetCredits(ctx context.Context, input *operation.GetCreditsInput) (*operation.GetCreditsOutput, error) {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	user, err := h.users.Ensure(ctx, userID)
	if err != nil {
		return nil, internalError(err, "Failed to get user")
	}
	bal, err := h.credits.GetBalance(ctx, userID)
	if err != nil {
		return nil, internalError(err, "Failed to get credit balance")
	}
	return &operation.GetCreditsOutput{
		Body: dto.CreditBalanceDTO{
			Balance:     bal.Balance,
			TotalEarned: bal.TotalEarned,
			TotalSpent:  bal.TotalSpent,
			Exempt:      !h.limits.Tier(user.Tier).NeedsCredits,
		},
	}, nil
}

// GetCreditHistory lists credit transactions, most recent first
func (h *AccountHandler) GetCreditHistory(ctx context.Context, input *operation.GetCreditHistoryInput) (*operation.GetCreditHistoryOutput, error) {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	txs, err := h.credits.History(ctx, userID, input.Limit)
	if err != nil {
		return nil, internalError(err, "Failed to get credit history")
	}
	out := dto.CreditHistoryDTO{Transactions: make([]dto.CreditTransactionDTO, 0, len(txs))}
	for _, t := range txs {
		out.Transactions = append(out.Transactions, dto.CreditTransactionDTO{
			ID:           t.ID,
			Type:         string(t.Type),
			Amount:       t.Amount,
			Reason:       t.Reason,
			Metadata:     t.Metadata,
			BalanceAfter: t.BalanceAfter,
			CreatedAt:    t.CreatedAt,
		})
	}
	return &operation.GetCreditHistoryOutput{Body: out}, nil
}

func milestoneDTO(m *config.Milestone) *dto.MilestoneDTO {
	if m == nil {
		return nil
	}
	return &dto.MilestoneDTO{Days: m.Days, Credits: m.Credits, Badge: m.Badge}
}

// CheckIn records the daily check-in
func (h *AccountHandler) CheckIn(ctx context.Context, input *operation.CheckInInput) (*operation.CheckInOutput, error) {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	user, err := h.users.Ensure(ctx, userID)
	if err != nil {
		return nil, internalError(err, "Failed to get user")
	}
	res, err := h.checkIn.CheckIn(ctx, userID, user.Tier)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyCheckedIn) {
			return nil, huma.Error409Conflict("Already checked in today")
		}
		return nil, internalError(err, "Failed to check in")
	}
	return &operation.CheckInOutput{
		Body: dto.CheckInResponseDTO{
			CurrentStreak:    res.Streak.Current,
			LongestStreak:    res.Streak.Longest,
			TotalCheckIns:    res.Streak.TotalCheckIns,
			FreezesRemaining: res.Streak.FreezesRemaining,
			FreezeUsed:       res.FreezeUsed,
			CreditsAwarded:   res.CreditsAwarded,
			Balance:          res.Balance,
			Milestone:        milestoneDTO(res.Milestone),
			NextMilestone:    milestoneDTO(res.NextMilestone),
		},
	}, nil
}

// AddToCollection stores a crystal in the user's collection
func (h *AccountHandler) AddToCollection(ctx context.Context, input *operation.AddToCollectionInput) (*operation.AddToCollectionOutput, error) {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	user, err := h.users.Ensure(ctx, userID)
	if err != nil {
		return nil, internalError(err, "Failed to get user")
	}
	e, err := h.collection.Add(ctx, userID, user.Tier, input.Body.CrystalName, input.Body.IdentificationID, input.Body.Notes)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCollectionFull):
			return nil, huma.Error403Forbidden("Collection limit reached for your plan. Upgrade to add more crystals.")
		case errors.Is(err, service.ErrInvalidCrystalName):
			return nil, huma.Error400BadRequest(err.Error())
		}
		return nil, internalError(err, "Failed to add to collection")
	}
	return &operation.AddToCollectionOutput{
		Body: dto.CollectionEntryDTO{
			ID:               e.ID,
			CrystalName:      e.CrystalName,
			IdentificationID: e.IdentificationID,
			Notes:            e.Notes,
			CreatedAt:        e.CreatedAt,
		},
	}, nil
}

// ListCollection returns the user's collection, newest first
func (h *AccountHandler) ListCollection(ctx context.Context, input *operation.ListCollectionInput) (*operation.ListCollectionOutput, error) {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	user, err := h.users.Ensure(ctx, userID)
	if err != nil {
		return nil, internalError(err, "Failed to get user")
	}
	entries, err := h.collection.List(ctx, userID)
	if err != nil {
		return nil, internalError(err, "Failed to list collection")
	}
	out := dto.CollectionDTO{
		Entries: make([]dto.CollectionEntryDTO, 0, len(entries)),
		Count:   len(entries),
		Limit:   h.limits.Tier(user.Tier).CollectionMax,
	}
	for _, e := range entries {
		out.Entries = append(out.Entries, dto.CollectionEntryDTO{
			ID:               e.ID,
			CrystalName:      e.CrystalName,
			IdentificationID: e.IdentificationID,
			Notes:            e.Notes,
			CreatedAt:        e.CreatedAt,
		})
	}
	return &operation.ListCollectionOutput{Body: out}, nil
}

// DeleteAccount removes the user and everything stored for them
func (h *AccountHandler) DeleteAccount(ctx context.Context, input *operation.DeleteAccountInput) (*operation.DeleteAccountOutput, error) {
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	removed, err := h.accounts.Delete(ctx, userID)
	if err != nil {
		if errors.Is(err, service.ErrActiveSubscription) {
			return nil, huma.Error409Conflict(err.Error())
		}
		return nil, internalError(err, "Failed to delete account")
	}
	return &operation.DeleteAccountOutput{Body: dto.DeleteAccountResponseDTO{Deleted: true, Removed: removed}}, nil
}
