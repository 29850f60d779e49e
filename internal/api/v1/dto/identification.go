package dto

import (
	"encoding/json"
	"time"
)

type IdentifyRequestDTO struct {
	Image     string `json:"image" minLength:"1" doc:"Base64 encoded JPEG, PNG or WebP image, optionally as a data URL"`
	ForceFull bool   `json:"force_full,omitempty" doc:"Request full image analysis (pro and founders plans)"`
}

type IdentificationDTO struct {
	ID           string          `json:"id"`
	CrystalName  string          `json:"crystal_name"`
	Variety      *string         `json:"variety,omitempty"`
	Confidence   float64         `json:"confidence"`
	Description  string          `json:"description"`
	AnalysisType string          `json:"analysis_type"`
	ModelUsed    string          `json:"model_used"`
	Result       json.RawMessage `json:"result,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type IdentifyMetaDTO struct {
	Tier             string `json:"tier"`
	Operation        string `json:"operation"`
	Cached           bool   `json:"cached"`
	Progressive      bool   `json:"progressive" doc:"A low-confidence result was re-checked with the pro model"`
	EstimatedCost    string `json:"estimated_cost"`
	CreditsCharged   int64  `json:"credits_charged"`
	CreditsRemaining *int64 `json:"credits_remaining,omitempty"`
}

type IdentifyResponseDTO struct {
	Identification IdentificationDTO `json:"identification"`
	Meta           IdentifyMetaDTO   `json:"meta"`
}

type IdentificationHistoryDTO struct {
	Identifications []IdentificationDTO `json:"identifications"`
}

type GuidanceRequestDTO struct {
	Question string `json:"question" minLength:"5" maxLength:"500" doc:"Question about a crystal"`
}

type GuidanceResponseDTO struct {
	Answer           string `json:"answer"`
	Operation        string `json:"operation"`
	Cached           bool   `json:"cached"`
	CreditsCharged   int64  `json:"credits_charged"`
	CreditsRemaining *int64 `json:"credits_remaining,omitempty"`
}
