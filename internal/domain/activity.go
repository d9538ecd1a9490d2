package domain

import "time"

// ActionType is the kind of action recorded in an activity ledger row.
type ActionType string

const (
	ActionProfileVisit       ActionType = "profile_visit"
	ActionFollow             ActionType = "follow"
	ActionConnectionRequest  ActionType = "connection_request"
	ActionConnectionAccepted ActionType = "connection_accepted"
	ActionMessage            ActionType = "message"
	ActionReply              ActionType = "reply"
	ActionEmail              ActionType = "email"
	ActionWhatsApp           ActionType = "whatsapp"
	ActionSMS                ActionType = "sms"
	ActionVoiceCall          ActionType = "voice_call"
	ActionInstagramDM        ActionType = "instagram_dm"
	ActionLeadGeneration     ActionType = "lead_generation"
)

// ActivityStatus is the outcome recorded by a ledger row.
type ActivityStatus string

const (
	// ActivityDispatched marks a work item handed to a channel worker.
	ActivityDispatched ActivityStatus = "DISPATCHED"
	ActivitySent       ActivityStatus = "SENT"
	ActivityFailed     ActivityStatus = "FAILED"
	ActivitySkipped    ActivityStatus = "SKIPPED"
	// ActivityPaused records an admission rejection; ErrorMessage holds the
	// PauseReason.
	ActivityPaused ActivityStatus = "PAUSED"
	// ActivityRetry is an explicit operator retry of a failed step.
	ActivityRetry ActivityStatus = "RETRY"
)

// Activity is one append-only row of the activity ledger: one per
// (lead, step attempt). Rows are never rewritten.
type Activity struct {
	ID           string         `json:"id" db:"id"`
	LeadID       string         `json:"lead_id" db:"lead_id"`
	CampaignID   string         `json:"campaign_id" db:"campaign_id"`
	StepID       string         `json:"step_id,omitempty" db:"step_id"`
	ActionType   ActionType     `json:"action_type" db:"action_type"`
	Platform     Platform       `json:"platform" db:"platform"`
	Status       ActivityStatus `json:"status" db:"status"`
	Timestamp    time.Time      `json:"timestamp" db:"created_at"`
	ErrorMessage string         `json:"error_message,omitempty" db:"error_message"`
	AccountID    string         `json:"account_id,omitempty" db:"account_id"`
}
