package models

import "time"

type SessionStatus string

const (
	StatusPending SessionStatus = "pending"
	StatusRunning SessionStatus = "running"
	StatusPaused  SessionStatus = "paused"
	StatusEnded   SessionStatus = "ended"
)

type EndReason string

const (
	ReasonManualStop     EndReason = "manual-stop"
	ReasonTimeExpired    EndReason = "time-expired"
	ReasonCreditDepleted EndReason = "credit-depleted"
	ReasonBillingError   EndReason = "billing-error"
	ReasonShutdown       EndReason = "server-shutdown"
)

// SessionState is a point-in-time copy of a paid session's billing timer.
type SessionState struct {
	SessionID                  string        `json:"session_id"`
	UserID                     string        `json:"user_id"`
	AdvisorID                  string        `json:"advisor_id"`
	RatePerMinute              Credits       `json:"rate_per_minute"`
	TotalAllowedSeconds        int64         `json:"total_allowed_seconds"`
	RemainingSeconds           int64         `json:"remaining_seconds"`
	Status                     SessionStatus `json:"status"`
	LastTickAt                 time.Time     `json:"last_tick_at"`
	AccumulatedUnbilledSeconds int64         `json:"accumulated_unbilled_seconds"`
	BilledMinutes              int64         `json:"billed_minutes"`
	BilledAmount               Credits       `json:"billed_amount"`
	EndReason                  EndReason     `json:"end_reason,omitempty"`
	StartedAt                  time.Time     `json:"started_at"`
	EndedAt                    *time.Time    `json:"ended_at,omitempty"`
	Seq                        int64         `json:"seq"`
}

// IsParticipant reports whether actorID is the session's user or advisor.
func (s *SessionState) IsParticipant(actorID string) bool {
	return actorID != "" && (actorID == s.UserID || actorID == s.AdvisorID)
}

type EventType string

const (
	EventTick    EventType = "tick"
	EventPaused  EventType = "paused"
	EventResumed EventType = "resumed"
	EventEnded   EventType = "ended"
	EventState   EventType = "state"
	EventError   EventType = "error"
)

// SessionEvent is pushed to both participants of a session.
type SessionEvent struct {
	Type             EventType     `json:"type"`
	SessionID        string        `json:"session_id"`
	UserID           string        `json:"-"`
	AdvisorID        string        `json:"-"`
	Seq              int64         `json:"seq"`
	RemainingSeconds int64         `json:"remaining_seconds"`
	By               string        `json:"by,omitempty"`
	Reason           EndReason     `json:"reason,omitempty"`
	State            *SessionState `json:"state,omitempty"`
	Message          string        `json:"message,omitempty"`
	Timestamp        string        `json:"timestamp"`
}
