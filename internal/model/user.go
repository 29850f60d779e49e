package model

import "time"

// Subscription statuses mirrored from the billing provider.
const (
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
	SubscriptionNone     = "none"
)

// User represents a user in the system. Users are created lazily on first authenticated access.
type User struct {
	UserID               string    `db:"user_id" json:"user_id"`
	Tier                 string    `db:"tier" json:"tier"`
	SubscriptionStatus   string    `db:"subscription_status" json:"subscription_status"`
	StripeCustomerID     *string   `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string   `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}
