package domain

import (
	"encoding/json"
	"time"
)

// StepType enumerates the kinds of step a campaign sequence is built from.
type StepType string

const (
	StepStart          StepType = "start"
	StepEnd            StepType = "end"
	StepProfileVisit   StepType = "profile_visit"
	StepFollow         StepType = "follow"
	StepConnect        StepType = "connect"
	StepMessage        StepType = "message"
	StepDelay          StepType = "delay"
	StepCondition      StepType = "condition"
	StepSendEmail      StepType = "send_email"
	StepSendWhatsApp   StepType = "send_whatsapp"
	StepSendSMS        StepType = "send_sms"
	StepSendVoice      StepType = "send_voice"
	StepSendInstagram  StepType = "send_instagram"
	StepLeadGeneration StepType = "lead_generation"
)

// Action returns the ledger action type produced when a step of this type
// runs. Structural steps (start, end, delay, condition) return "".
func (t StepType) Action() ActionType {
	switch t {
	case StepProfileVisit:
		return ActionProfileVisit
	case StepFollow:
		return ActionFollow
	case StepConnect:
		return ActionConnectionRequest
	case StepMessage:
		return ActionMessage
	case StepSendEmail:
		return ActionEmail
	case StepSendWhatsApp:
		return ActionWhatsApp
	case StepSendSMS:
		return ActionSMS
	case StepSendVoice:
		return ActionVoiceCall
	case StepSendInstagram:
		return ActionInstagramDM
	case StepLeadGeneration:
		return ActionLeadGeneration
	}
	return ""
}

// Structural reports whether the step has no external action.
func (t StepType) Structural() bool {
	return t.Action() == ""
}

// Known reports whether t is a recognised step type.
func (t StepType) Known() bool {
	switch t {
	case StepStart, StepEnd, StepDelay, StepCondition:
		return true
	}
	return t.Action() != ""
}

// ActionClass returns the rate-limit class of the step's action.
func (t StepType) ActionClass() ActionClass {
	if t == StepConnect {
		return ActionClassConnect
	}
	return ActionClass(t)
}

// StepDefinition is an ordered element of a campaign's sequence. Step
// definitions are authored outside the engine and immutable at execution time.
type StepDefinition struct {
	ID         string         `json:"id" db:"id"`
	CampaignID string         `json:"campaign_id" db:"campaign_id"`
	Order      int            `json:"order" db:"step_order"`
	Type       StepType       `json:"type" db:"step_type"`
	Config     map[string]any `json:"config,omitempty" db:"config"`
}

// ConditionType names the lead fact a condition step branches on.
type ConditionType string

const (
	ConditionConnectionAccepted ConditionType = "connection_accepted"
	ConditionLeadReplied        ConditionType = "lead_replied"
	ConditionProfileVisited     ConditionType = "profile_visited"
	ConditionContacted          ConditionType = "contacted"
)

// DelayConfig is the typed view of a delay step's config.
type DelayConfig struct {
	Days  int `json:"days" validate:"gte=0,lte=365"`
	Hours int `json:"hours" validate:"gte=0,lte=23"`
}

// Duration returns the total wait.
func (d DelayConfig) Duration() time.Duration {
	return time.Duration(d.Days)*24*time.Hour + time.Duration(d.Hours)*time.Hour
}

// ConditionConfig is the typed view of a condition step's config.
type ConditionConfig struct {
	ConditionType      ConditionType `json:"conditionType" validate:"required,oneof=connection_accepted lead_replied profile_visited contacted"`
	BranchTargetStepID string        `json:"branchTargetStepId" validate:"required"`
	TimeoutDays        int           `json:"timeoutDays,omitempty" validate:"gte=0,lte=365"`
}

// Timeout returns the wait after which an unresolved condition resolves to
// false. Zero means wait forever.
func (c ConditionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutDays) * 24 * time.Hour
}

// DelayConfig decodes the step config as a delay.
func (s StepDefinition) DelayConfig() (DelayConfig, error) {
	var d DelayConfig
	err := s.decodeConfig(&d)
	return d, err
}

// ConditionConfig decodes the step config as a condition.
func (s StepDefinition) ConditionConfig() (ConditionConfig, error) {
	var c ConditionConfig
	err := s.decodeConfig(&c)
	return c, err
}

// Template returns the optional message template of a connect/message step.
func (s StepDefinition) Template() string {
	if s.Config == nil {
		return ""
	}
	if v, ok := s.Config["template"].(string); ok {
		return v
	}
	return ""
}

func (s StepDefinition) decodeConfig(dst any) error {
	if len(s.Config) == 0 {
		return nil
	}
	raw, err := json.Marshal(s.Config)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
