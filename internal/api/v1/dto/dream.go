package dto

import (
	"encoding/json"
	"time"
)

type DreamRequestDTO struct {
	Content      string     `json:"dream_content" minLength:"10" maxLength:"5000" doc:"The dream as the user remembers it"`
	UserCrystals []string   `json:"user_crystals,omitempty" maxItems:"50" doc:"Crystals the user owns, preferred in suggestions"`
	Mood         string     `json:"mood,omitempty" maxLength:"50"`
	MoonPhase    string     `json:"moon_phase,omitempty" maxLength:"50"`
	DreamDate    *time.Time `json:"dream_date,omitempty" doc:"When the dream happened, defaults to now"`
}

type CrystalSuggestionDTO struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Usage  string `json:"usage"`
}

type DreamEntryDTO struct {
	ID                 string                 `json:"id"`
	Content            string                 `json:"dream_content"`
	Analysis           json.RawMessage        `json:"analysis"`
	Affirmation        string                 `json:"affirmation"`
	CrystalSuggestions []CrystalSuggestionDTO `json:"crystal_suggestions"`
	CrystalsUsed       []string               `json:"crystals_used"`
	Mood               *string                `json:"mood,omitempty"`
	MoonPhase          *string                `json:"moon_phase,omitempty"`
	DreamDate          time.Time              `json:"dream_date"`
	CreatedAt          time.Time              `json:"created_at"`
}

type DreamResponseDTO struct {
	Dream            DreamEntryDTO `json:"dream"`
	Tier             string        `json:"tier"`
	CreditsCharged   int64         `json:"credits_charged"`
	CreditsRemaining *int64        `json:"credits_remaining,omitempty"`
}

type DreamHistoryDTO struct {
	Dreams []DreamEntryDTO `json:"dreams"`
}
