package models

import "time"

// Credits is an amount of wallet credit in hundredths (1 credit = 100).
type Credits int64

const CreditUnit Credits = 100

// ChatRequest is the persisted record of one paid chat between a user and an advisor.
type ChatRequest struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	AdvisorID        string     `json:"advisor_id"`
	RatePerMinute    Credits    `json:"rate_per_minute"`
	AllowedSeconds   int64      `json:"allowed_seconds"`
	Status           string     `json:"status"`
	EndReason        *string    `json:"end_reason"`
	RemainingSeconds *int64     `json:"remaining_seconds"`
	BilledMinutes    int64      `json:"billed_minutes"`
	StartedAt        *time.Time `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Chat request lifecycle as stored in chat_requests.status.
const (
	ChatRequestPending  = "pending"
	ChatRequestAccepted = "accepted"
	ChatRequestActive   = "active"
	ChatRequestEnded    = "ended"
)

// BilledMinute is one committed per-minute debit.
type BilledMinute struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	MinuteIndex int64     `json:"minute_index"`
	UserID      string    `json:"user_id"`
	Amount      Credits   `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}

type Wallet struct {
	UserID    string    `json:"user_id"`
	Balance   Credits   `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}
