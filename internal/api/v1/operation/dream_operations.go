package operation

import "crystalgate/internal/api/v1/dto"

type InterpretDreamInput struct {
	Body dto.DreamRequestDTO `json:"body"`
}

type InterpretDreamOutput struct {
	Body dto.DreamResponseDTO `json:"body"`
}

type DreamHistoryInput struct {
	Limit int `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"Number of dreams to return"`
}

type DreamHistoryOutput struct {
	Body dto.DreamHistoryDTO `json:"body"`
}
