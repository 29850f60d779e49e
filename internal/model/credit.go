package model

import "time"

type TransactionType string

const (
	TransactionAward     TransactionType = "award"
	TransactionDeduction TransactionType = "deduction"
)

// CreditBalance invariant: Balance == TotalEarned - TotalSpent and Balance >= 0.
type CreditBalance struct {
	UserID      string    `db:"user_id" json:"user_id"`
	Balance     int64     `db:"balance" json:"balance"`
	TotalEarned int64     `db:"total_earned" json:"total_earned"`
	TotalSpent  int64     `db:"total_spent" json:"total_spent"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CreditTransaction is an immutable audit record. Amount is negative for deductions.
type CreditTransaction struct {
	ID           int64           `db:"id" json:"id"`
	UserID       string          `db:"user_id" json:"user_id"`
	Type         TransactionType `db:"type" json:"type"`
	Amount       int64           `db:"amount" json:"amount"`
	Reason       string          `db:"reason" json:"reason"`
	Metadata     map[string]any  `db:"metadata" json:"metadata,omitempty"`
	BalanceAfter int64           `db:"balance_after" json:"balance_after"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}
