package model

import "crystalgate/internal/quota"

// RateWindow counts requests of one action for one user. Only the hourly and daily counters are
// limited; the monthly counter is kept for reporting.
type RateWindow struct {
	UserID string `db:"user_id" json:"user_id"`
	Action string `db:"action" json:"action"`
	quota.Window
}
