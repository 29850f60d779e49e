package operation

import (
	"crystalgate/internal/api/v1/dto"
	"crystalgate/internal/service"
)

type IdentifyInput struct {
	Body dto.IdentifyRequestDTO `json:"body"`
}

type IdentifyOutput struct {
	Body dto.IdentifyResponseDTO `json:"body"`
}

type IdentificationHistoryInput struct {
	Limit int `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"Number of identifications to return"`
}

type IdentificationHistoryOutput struct {
	Body dto.IdentificationHistoryDTO `json:"body"`
}

type GuidanceInput struct {
	Body dto.GuidanceRequestDTO `json:"body"`
}

type GuidanceOutput struct {
	Body dto.GuidanceResponseDTO `json:"body"`
}

type GetUsageInput struct {
	// No input needed - user ID comes from auth context
}

type GetUsageOutput struct {
	Body service.UsageStats `json:"body"`
}
