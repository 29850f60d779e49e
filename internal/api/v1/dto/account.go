package dto

import "time"

type UserResponseDTO struct {
	UserID             string    `json:"user_id"`
	Tier               string    `json:"tier"`
	SubscriptionStatus string    `json:"subscription_status"`
	CreatedAt          time.Time `json:"created_at"`
}

type CreditBalanceDTO struct {
	Balance     int64 `json:"balance"`
	TotalEarned int64 `json:"total_earned"`
	TotalSpent  int64 `json:"total_spent"`
	// Exempt is true for plans that are not metered by credits.
	Exempt bool `json:"exempt"`
}

type CreditTransactionDTO struct {
	ID           int64          `json:"id"`
	Type         string         `json:"type"`
	Amount       int64          `json:"amount"`
	Reason       string         `json:"reason"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	BalanceAfter int64          `json:"balance_after"`
	CreatedAt    time.Time      `json:"created_at"`
}

type CreditHistoryDTO struct {
	Transactions []CreditTransactionDTO `json:"transactions"`
}

type MilestoneDTO struct {
	Days    int    `json:"days"`
	Credits int64  `json:"credits"`
	Badge   string `json:"badge"`
}

type CheckInResponseDTO struct {
	CurrentStreak    int           `json:"current_streak"`
	LongestStreak    int           `json:"longest_streak"`
	TotalCheckIns    int           `json:"total_check_ins"`
	FreezesRemaining int           `json:"freezes_remaining"`
	FreezeUsed       bool          `json:"freeze_used"`
	CreditsAwarded   int64         `json:"credits_awarded"`
	Balance          *int64        `json:"balance,omitempty"`
	Milestone        *MilestoneDTO `json:"milestone,omitempty"`
	NextMilestone    *MilestoneDTO `json:"next_milestone,omitempty"`
}

type CollectionAddDTO struct {
	CrystalName      string  `json:"crystal_name" minLength:"1" maxLength:"100"`
	IdentificationID *string `json:"identification_id,omitempty" format:"uuid"`
	Notes            string  `json:"notes,omitempty" maxLength:"1000"`
}

type CollectionEntryDTO struct {
	ID               string    `json:"id"`
	CrystalName      string    `json:"crystal_name"`
	IdentificationID *string   `json:"identification_id,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type CollectionDTO struct {
	Entries []CollectionEntryDTO `json:"entries"`
	Count   int                  `json:"count"`
	// Limit is 0 for unlimited plans.
	Limit int `json:"limit"`
}

type DeleteAccountResponseDTO struct {
	Deleted bool `json:"deleted"`
	// Removed counts the rows removed per table.
	Removed map[string]int64 `json:"removed"`
}
