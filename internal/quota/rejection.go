package quota

import (
	"fmt"
	"math"
	"net/http"
	"time"
)

// Reason is the machine-readable code of a gate rejection.
type Reason string

const (
	ReasonInsufficientCredits  Reason = "insufficient_credits"
	ReasonRateLimitExceeded    Reason = "rate_limit_exceeded"
	ReasonHourlySpendExceeded  Reason = "hourly_spend_limit_exceeded"
	ReasonDailySpendExceeded   Reason = "daily_spend_limit_exceeded"
	ReasonMonthlySpendExceeded Reason = "monthly_spend_limit_exceeded"
	ReasonGlobalSpendExceeded  Reason = "global_spend_limit_exceeded"
	ReasonEmergencyStop        Reason = "emergency_stop"
	ReasonDuplicateRequest     Reason = "duplicate_request"
)

// Rejection is a fail-closed gate decision. It carries a human-readable message and, where waiting
// helps, how long to wait.
type Rejection struct {
	Reason     Reason        `json:"reason"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"-"`
}

// Sentinels for errors.Is matching on reason.
var (
	ErrInsufficientCredits  = &Rejection{Reason: ReasonInsufficientCredits, Message: "Insufficient credits"}
	ErrRateLimitExceeded    = &Rejection{Reason: ReasonRateLimitExceeded, Message: "Rate limit exceeded"}
	ErrHourlySpendExceeded  = &Rejection{Reason: ReasonHourlySpendExceeded, Message: "Hourly spending limit reached"}
	ErrDailySpendExceeded   = &Rejection{Reason: ReasonDailySpendExceeded, Message: "Daily spending limit reached"}
	ErrMonthlySpendExceeded = &Rejection{Reason: ReasonMonthlySpendExceeded, Message: "Monthly spending limit reached"}
	ErrGlobalSpendExceeded  = &Rejection{Reason: ReasonGlobalSpendExceeded, Message: "System is experiencing high demand"}
	ErrEmergencyStop        = &Rejection{Reason: ReasonEmergencyStop, Message: "Service temporarily unavailable"}
	ErrDuplicateRequest     = &Rejection{Reason: ReasonDuplicateRequest, Message: "Duplicate request detected"}
)

func Reject(reason Reason, retryAfter time.Duration, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...), RetryAfter: retryAfter}
}

func (r *Rejection) Error() string {
	return string(r.Reason) + ": " + r.Message
}

// Is matches any Rejection with the same reason.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Reason == r.Reason
}

// GetStatus maps the reason to an HTTP status.
func (r *Rejection) GetStatus() int {
	switch r.Reason {
	case ReasonInsufficientCredits:
		return http.StatusPaymentRequired
	case ReasonDuplicateRequest:
		return http.StatusConflict
	case ReasonEmergencyStop, ReasonGlobalSpendExceeded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusTooManyRequests
	}
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (r *Rejection) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(r.RetryAfter.Seconds()))
}

// MinutesUntil rounds the wait until t up to whole minutes, never below one.
func MinutesUntil(now, t time.Time) int {
	m := int(math.Ceil(t.Sub(now).Minutes()))
	if m < 1 {
		return 1
	}
	return m
}

// HoursUntil rounds the wait until t up to whole hours, never below one.
func HoursUntil(now, t time.Time) int {
	h := int(math.Ceil(t.Sub(now).Hours()))
	if h < 1 {
		return 1
	}
	return h
}
