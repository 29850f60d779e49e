package model

import "time"

// CrystalSuggestion is a crystal recommended for working with a dream.
type CrystalSuggestion struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Usage  string `json:"usage"`
}

// DreamEntry is one interpreted dream in a user's journal.
type DreamEntry struct {
	ID                 string              `db:"id" json:"id"`
	UserID             string              `db:"user_id" json:"user_id"`
	Content            string              `db:"content" json:"content"`
	Analysis           string              `db:"analysis" json:"analysis"`
	Affirmation        string              `db:"affirmation" json:"affirmation"`
	CrystalSuggestions []CrystalSuggestion `db:"crystal_suggestions" json:"crystal_suggestions"`
	CrystalsUsed       []string            `db:"crystals_used" json:"crystals_used"`
	Mood               *string             `db:"mood" json:"mood,omitempty"`
	MoonPhase          *string             `db:"moon_phase" json:"moon_phase,omitempty"`
	DreamDate          time.Time           `db:"dream_date" json:"dream_date"`
	CreatedAt          time.Time           `db:"created_at" json:"created_at"`
}
