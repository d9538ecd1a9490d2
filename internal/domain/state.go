package domain

import "time"

// StepState is the derived state of one step for one lead.
type StepState string

const (
	StateCompleted  StepState = "COMPLETED"
	StateInProgress StepState = "IN_PROGRESS"
	StatePaused     StepState = "PAUSED"
	StateFailed     StepState = "FAILED"
	StateSkipped    StepState = "SKIPPED"
	StatePending    StepState = "PENDING"
	StateWaiting    StepState = "WAITING"
)

// Terminal reports whether the state never changes without an explicit
// retry.
func (s StepState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateSkipped
}

// ConnectionStatus is the derived status of the connection request.
type ConnectionStatus string

const (
	ConnectionNotSent ConnectionStatus = "NOT_SENT"
	ConnectionSent    ConnectionStatus = "SENT"
	ConnectionFailed  ConnectionStatus = "FAILED"
	ConnectionPaused  ConnectionStatus = "PAUSED"
)

// ContactedStatus is the derived outcome of the first message.
type ContactedStatus string

const (
	ContactedNone    ContactedStatus = ""
	ContactedSent    ContactedStatus = "SENT"
	ContactedFailed  ContactedStatus = "FAILED"
	ContactedSkipped ContactedStatus = "SKIPPED"
)

// PauseReason explains why a rate-limited action was not admitted.
type PauseReason string

const (
	PauseNone        PauseReason = ""
	PauseDailyLimit  PauseReason = "DAILY_LIMIT"
	PauseWeeklyLimit PauseReason = "WEEKLY_LIMIT"
	PauseRateLimit   PauseReason = "RATE_LIMIT"
)

// Describe returns the operator-facing sentence for the reason.
func (r PauseReason) Describe() string {
	switch r {
	case PauseDailyLimit:
		return "Daily connection limit reached"
	case PauseWeeklyLimit:
		return "Weekly connection limit reached"
	case PauseRateLimit:
		return "Provider rate limit reached"
	}
	return ""
}

// StepFacts is what the ledger says about one step definition.
type StepFacts struct {
	Status      ActivityStatus `json:"status,omitempty"`
	Dispatched  bool           `json:"dispatched"`
	CompletedAt time.Time      `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// LeadFacts is the accumulated, derived view of a lead enrollment. It is
// recomputed from the ledger and never stored.
type LeadFacts struct {
	ProfileVisited     bool             `json:"profile_visited"`
	ConnectionStatus   ConnectionStatus `json:"connection_status"`
	ConnectionAccepted bool             `json:"connection_accepted"`
	Contacted          bool             `json:"contacted"`
	ContactedStatus    ContactedStatus  `json:"contacted_status,omitempty"`
	LeadReplied        bool             `json:"lead_replied"`
	PauseReason        PauseReason      `json:"pause_reason,omitempty"`
	LastError          string           `json:"last_error,omitempty"`

	// ConnectAccountID is the sender account of the connection request.
	ConnectAccountID string `json:"connect_account_id,omitempty"`

	// Timestamps of the first occurrence, zero when not yet observed.
	VisitedAt     time.Time `json:"visited_at,omitempty"`
	ConnectSentAt time.Time `json:"connect_sent_at,omitempty"`
	AcceptedAt    time.Time `json:"accepted_at,omitempty"`
	ContactedAt   time.Time `json:"contacted_at,omitempty"`
	RepliedAt     time.Time `json:"replied_at,omitempty"`

	// ConnectDispatched and MessageDispatched are true while an attempt is
	// handed out and not yet resolved.
	ConnectDispatched bool `json:"connect_dispatched"`
	MessageDispatched bool `json:"message_dispatched"`

	// Steps holds per-step facts keyed by step definition ID.
	Steps map[string]StepFacts `json:"steps,omitempty"`
}

// Step returns the facts for a step definition, zero if none.
func (f LeadFacts) Step(id string) StepFacts {
	if f.Steps == nil {
		return StepFacts{}
	}
	return f.Steps[id]
}
