package service

import (
	"context"
	"encoding/json"

	"crystalgate/internal/model"
)

// ImageAnalysisRequest is one crystal photo to identify.
type ImageAnalysisRequest struct {
	Image    []byte
	MimeType string
	// Full asks for the detailed analysis instead of the thumbnail pass.
	Full  bool
	Model string
}

// AnalysisUsage is the provider-reported token usage and the cost derived from it.
type AnalysisUsage struct {
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	CostMicros   int64  `json:"cost_micros"`
}

type CrystalAnalysis struct {
	CrystalName string          `json:"name"`
	Variety     string          `json:"variety,omitempty"`
	Confidence  float64         `json:"confidence"`
	Description string          `json:"description"`
	Raw         json.RawMessage `json:"-"`
	Usage       AnalysisUsage   `json:"-"`
}

type GuidanceAnswer struct {
	Answer string        `json:"answer"`
	Usage  AnalysisUsage `json:"-"`
}

// DreamRequest is a journal entry to interpret.
type DreamRequest struct {
	Content      string
	UserCrystals []string
	Mood         string
	MoonPhase    string
	Model        string
}

type DreamInterpretation struct {
	Analysis struct {
		Summary          string   `json:"summary"`
		Symbols          []string `json:"symbols"`
		Emotions         []string `json:"emotions"`
		SpiritualMessage string   `json:"spiritualMessage"`
		Ritual           string   `json:"ritual"`
	} `json:"analysis"`
	CrystalSuggestions []model.CrystalSuggestion `json:"crystalSuggestions"`
	Affirmation        string                    `json:"affirmation"`
	Raw                json.RawMessage           `json:"-"`
	Usage              AnalysisUsage             `json:"-"`
}

// Analyzer is the external AI provider.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, req ImageAnalysisRequest) (*CrystalAnalysis, error)
	Guidance(ctx context.Context, question, model string) (*GuidanceAnswer, error)
	InterpretDream(ctx context.Context, req DreamRequest) (*DreamInterpretation, error)
}
