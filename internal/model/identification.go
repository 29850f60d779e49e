package model

import (
	"encoding/json"
	"time"
)

type Identification struct {
	ID                  string          `db:"id" json:"id"`
	UserID              string          `db:"user_id" json:"user_id"`
	CrystalName         string          `db:"crystal_name" json:"crystal_name"`
	Variety             *string         `db:"variety" json:"variety,omitempty"`
	Confidence          float64         `db:"confidence" json:"confidence"`
	Description         string          `db:"description" json:"description"`
	AnalysisType        string          `db:"analysis_type" json:"analysis_type"`
	Operation           string          `db:"operation" json:"operation"`
	ModelUsed           string          `db:"model_used" json:"model_used"`
	EstimatedCostMicros int64           `db:"estimated_cost_micros" json:"estimated_cost_micros"`
	ImageKey            *string         `db:"image_key" json:"image_key,omitempty"`
	Result              json.RawMessage `db:"result" json:"result"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
}

// CollectionEntry is one crystal in a user's collection.
type CollectionEntry struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	CrystalName      string    `db:"crystal_name" json:"crystal_name"`
	IdentificationID *string   `db:"identification_id" json:"identification_id,omitempty"`
	Notes            string    `db:"notes" json:"notes"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
