package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
)

// OutcomeInput is a channel worker's report for one lead. Connection
// acceptances and replies are reported as SENT rows without a step.
type OutcomeInput struct {
	StepID       string                `json:"step_id,omitempty"`
	ActionType   domain.ActionType     `json:"action_type" validate:"required"`
	Status       domain.ActivityStatus `json:"status" validate:"required,oneof=SENT FAILED SKIPPED"`
	ErrorMessage string                `json:"error_message,omitempty" validate:"max=1000"`
	Timestamp    time.Time             `json:"timestamp,omitempty"`
	AccountID    string                `json:"account_id,omitempty" validate:"max=255"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// RecordOutcome appends a channel worker's SENT, FAILED or SKIPPED row to
// the ledger. The next sweep picks it up through the deriver.
func (s *Service) RecordOutcome(ctx context.Context, orgID, campaignID, leadID string, in OutcomeInput) (domain.Activity, error) {
	if err := validate.Struct(in); err != nil {
		return domain.Activity{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := s.repo.Get(ctx, orgID, campaignID); err != nil {
		return domain.Activity{}, err
	}
	e, err := s.repo.GetEnrollment(ctx, campaignID, leadID)
	if err != nil {
		return domain.Activity{}, err
	}
	if in.StepID != "" {
		steps, err := s.repo.GetSteps(ctx, campaignID)
		if err != nil {
			return domain.Activity{}, fmt.Errorf("load sequence: %w", err)
		}
		if !hasStep(steps, in.StepID) {
			return domain.Activity{}, fmt.Errorf("%w: %s", ErrStepNotFound, in.StepID)
		}
	}

	a := domain.Activity{
		ID:           uuid.NewString(),
		LeadID:       leadID,
		CampaignID:   campaignID,
		StepID:       in.StepID,
		ActionType:   in.ActionType,
		Platform:     e.Platform,
		Status:       in.Status,
		Timestamp:    in.Timestamp,
		ErrorMessage: in.ErrorMessage,
		AccountID:    in.AccountID,
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now()
	}
	if err := s.ledger.AppendActivity(ctx, a); err != nil {
		return domain.Activity{}, fmt.Errorf("append outcome: %w", err)
	}
	return a, nil
}

func hasStep(steps []domain.StepDefinition, id string) bool {
	for _, st := range steps {
		if st.ID == id {
			return true
		}
	}
	return false
}
