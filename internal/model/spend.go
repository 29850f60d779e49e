package model

import (
	"time"

	"crystalgate/internal/quota"
)

// SpendWindow tracks one user's estimated spend in micro-units of currency.
type SpendWindow struct {
	UserID string `db:"user_id" json:"user_id"`
	quota.Window
	DailyAlertSent   bool       `db:"daily_alert_sent" json:"daily_alert_sent"`
	MonthlyAlertSent bool       `db:"monthly_alert_sent" json:"monthly_alert_sent"`
	LastOperationAt  *time.Time `db:"last_operation_at" json:"last_operation_at,omitempty"`
	// PendingCredits are held by admitted requests that have not settled. PendingSince is the time
	// of the newest hold.
	PendingCredits int64      `db:"pending_credits" json:"pending_credits"`
	PendingSince   *time.Time `db:"pending_since" json:"pending_since,omitempty"`
}

// GlobalSpend is the system-wide spend in micro-units. Total is never reset.
type GlobalSpend struct {
	Hourly        int64     `json:"hourly"`
	Daily         int64     `json:"daily"`
	Total         int64     `json:"total"`
	LastHourReset time.Time `json:"last_hour_reset"`
	LastDayReset  time.Time `json:"last_day_reset"`
}

// GlobalCeilings bound GlobalSpend in micro-units. Zero disables a check.
type GlobalCeilings struct {
	Hourly    int64
	Daily     int64
	Emergency int64
}

// UsageEvent records the actual cost of a completed operation for offline reconciliation.
type UsageEvent struct {
	ID                  int64          `db:"id" json:"id"`
	UserID              string         `db:"user_id" json:"user_id"`
	Operation           string         `db:"operation" json:"operation"`
	EstimatedCostMicros int64          `db:"estimated_cost_micros" json:"estimated_cost_micros"`
	ActualCostMicros    int64          `db:"actual_cost_micros" json:"actual_cost_micros"`
	LatencyMS           int64          `db:"latency_ms" json:"latency_ms"`
	Metadata            map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
}

type AlertSeverity string

const (
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// SpendAlert is published when spend crosses an alert threshold or the emergency stop trips.
type SpendAlert struct {
	ID          string        `json:"id"`
	Kind        string        `json:"kind"`
	Severity    AlertSeverity `json:"severity"`
	UserID      string        `json:"user_id,omitempty"`
	Tier        string        `json:"tier,omitempty"`
	Period      string        `json:"period,omitempty"`
	SpentMicros int64         `json:"spent_micros"`
	LimitMicros int64         `json:"limit_micros"`
	Percent     float64       `json:"percent"`
	CreatedAt   time.Time     `json:"created_at"`
}
