package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"
)

var ErrEmptyAnalysis = errors.New("empty response from Gemini")

// tokenPrice is the provider list price per million tokens.
type tokenPrice struct {
	input  decimal.Decimal
	output decimal.Decimal
}

var geminiPrices = map[string]tokenPrice{
	"gemini-2.5-flash": {input: decimal.RequireFromString("0.30"), output: decimal.RequireFromString("2.50")},
	"gemini-2.5-pro":   {input: decimal.RequireFromString("1.25"), output: decimal.RequireFromString("10.00")},
}

// CostMicros prices a call from its token usage. Unknown models are priced as flash.
func CostMicros(model string, inputTokens, outputTokens int64) int64 {
	p, ok := geminiPrices[model]
	if !ok {
		p = geminiPrices["gemini-2.5-flash"]
	}
	// price per 1M tokens in USD equals micro-USD per token
	cost := p.input.Mul(decimal.NewFromInt(inputTokens)).Add(p.output.Mul(decimal.NewFromInt(outputTokens)))
	return cost.Round(0).IntPart()
}

const identifyPrompt = `Identify the crystal or mineral in this photo. Respond with JSON only:
{"name": string, "variety": string, "confidence": number between 0 and 1, "description": string}`

const identifyFullPrompt = `Identify the crystal or mineral in this photo in detail. Respond with JSON only:
{"name": string, "variety": string, "confidence": number between 0 and 1, "description": string,
 "properties": {"hardness": string, "color": string, "luster": string, "formation": string}}`

const guidancePrompt = `You are a friendly crystal guide. Answer the question below in at most three short paragraphs.

Question: %s`

const dreamPrompt = `You are a dream interpreter who works with crystal energy. Interpret the dream below.
%s
Dream: %s

Respond with JSON only:
{"analysis": {"summary": string, "symbols": [string], "emotions": [string], "spiritualMessage": string, "ritual": string},
 "crystalSuggestions": [{"name": string, "reason": string, "usage": string}],
 "affirmation": string}
Suggest at most 5 crystals, preferring ones the dreamer already owns.`

type geminiAnalyzer struct {
	client *genai.Client
	logger zerolog.Logger
}

func NewGeminiAnalyzer(ctx context.Context, apiKey string, logger zerolog.Logger) (Analyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &geminiAnalyzer{client: client, logger: logger.With().Str("service", "GeminiAnalyzer").Logger()}, nil
}

func usageOf(model string, resp *genai.GenerateContentResponse) AnalysisUsage {
	u := AnalysisUsage{Model: model}
	if resp.UsageMetadata != nil {
		u.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		u.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	u.CostMicros = CostMicros(model, u.InputTokens, u.OutputTokens)
	return u
}

func (a *geminiAnalyzer) AnalyzeImage(ctx context.Context, req ImageAnalysisRequest) (*CrystalAnalysis, error) {
	prompt := identifyPrompt
	if req.Full {
		prompt = identifyFullPrompt
	}
	contents := []*genai.Content{{
		Role: string(genai.RoleUser),
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: req.MimeType, Data: req.Image}},
			{Text: prompt},
		},
	}}
	resp, err := a.client.Models.GenerateContent(ctx, req.Model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(float32(0.2)),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, ErrEmptyAnalysis
	}
	var out CrystalAnalysis
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		a.logger.Warn().Err(err).Str("model", req.Model).Msg("Gemini returned malformed analysis JSON")
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	out.Raw = json.RawMessage(text)
	out.Usage = usageOf(req.Model, resp)
	return &out, nil
}

func (a *geminiAnalyzer) Guidance(ctx context.Context, question, model string) (*GuidanceAnswer, error) {
	contents := []*genai.Content{{
		Role:  string(genai.RoleUser),
		Parts: []*genai.Part{{Text: fmt.Sprintf(guidancePrompt, question)}},
	}}
	resp, err := a.client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.7)),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, ErrEmptyAnalysis
	}
	return &GuidanceAnswer{Answer: text, Usage: usageOf(model, resp)}, nil
}

func (a *geminiAnalyzer) InterpretDream(ctx context.Context, req DreamRequest) (*DreamInterpretation, error) {
	var extra strings.Builder
	if len(req.UserCrystals) > 0 {
		fmt.Fprintf(&extra, "Crystals the dreamer owns: %s\n", strings.Join(req.UserCrystals, ", "))
	}
	if req.Mood != "" {
		fmt.Fprintf(&extra, "Mood on waking: %s\n", req.Mood)
	}
	if req.MoonPhase != "" {
		fmt.Fprintf(&extra, "Moon phase: %s\n", req.MoonPhase)
	}
	contents := []*genai.Content{{
		Role:  string(genai.RoleUser),
		Parts: []*genai.Part{{Text: fmt.Sprintf(dreamPrompt, extra.String(), req.Content)}},
	}}
	resp, err := a.client.Models.GenerateContent(ctx, req.Model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(float32(0.8)),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, ErrEmptyAnalysis
	}
	var out DreamInterpretation
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		a.logger.Warn().Err(err).Str("model", req.Model).Msg("Gemini returned malformed dream JSON")
		return nil, fmt.Errorf("decode dream interpretation: %w", err)
	}
	out.Raw = json.RawMessage(text)
	out.Usage = usageOf(req.Model, resp)
	return &out, nil
}
