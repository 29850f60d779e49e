package model

import "time"

// Streak is a user's daily check-in streak.
type Streak struct {
	UserID            string     `db:"user_id" json:"user_id"`
	Current           int        `db:"current" json:"current"`
	Longest           int        `db:"longest" json:"longest"`
	LastCheckIn       *time.Time `db:"last_check_in" json:"last_check_in,omitempty"`
	FreezesRemaining  int        `db:"freezes_remaining" json:"freezes_remaining"`
	FreezesRefilledAt time.Time  `db:"freezes_refilled_at" json:"freezes_refilled_at"`
	TotalCheckIns     int        `db:"total_check_ins" json:"total_check_ins"`
}
