package operation

import "crystalgate/internal/api/v1/dto"

type GetUserInput struct {
	// No input needed - user ID comes from auth context
}

type GetUserOutput struct {
	Body dto.UserResponseDTO `json:"body"`
}

type GetCreditsInput struct{}

type GetCreditsOutput struct {
	Body dto.CreditBalanceDTO `json:"body"`
}

type GetCreditHistoryInput struct {
	Limit int `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"Number of transactions to return"`
}

type GetCreditHistoryOutput struct {
	Body dto.CreditHistoryDTO `json:"body"`
}

type CheckInInput struct{}

type CheckInOutput struct {
	Body dto.CheckInResponseDTO `json:"body"`
}

type AddToCollectionInput struct {
	Body dto.CollectionAddDTO `json:"body"`
}

type AddToCollectionOutput struct {
	Body dto.CollectionEntryDTO `json:"body"`
}

type ListCollectionInput struct{}

type ListCollectionOutput struct {
	Body dto.CollectionDTO `json:"body"`
}

type DeleteAccountInput struct{}

type DeleteAccountOutput struct {
	Body dto.DeleteAccountResponseDTO `json:"body"`
}
