package onboarding

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Turn is the response to one conversational action.
type Turn struct {
	Session *Session     `json:"session"`
	Prompt  string       `json:"prompt,omitempty"`
	Problem *AnswerError `json:"problem,omitempty"`
}

// Orchestrator loads a session, applies one action and saves it back.
type Orchestrator struct {
	store  Store
	bounds Bounds
	now    func() time.Time
}

// NewOrchestrator creates an orchestrator. Zero bounds fall back to
// DefaultBounds.
func NewOrchestrator(store Store, bounds Bounds) *Orchestrator {
	if bounds.MaxLeadsPerDay <= 0 {
		bounds.MaxLeadsPerDay = DefaultBounds.MaxLeadsPerDay
	}
	if bounds.MaxCampaignDays <= 0 {
		bounds.MaxCampaignDays = DefaultBounds.MaxCampaignDays
	}
	return &Orchestrator{store: store, bounds: bounds, now: time.Now}
}

// Start opens a new session for an organization.
func (o *Orchestrator) Start(ctx context.Context, orgID string) (Turn, error) {
	s := NewSession(uuid.NewString(), orgID, o.now())
	if err := o.store.Save(ctx, s); err != nil {
		return Turn{}, err
	}
	logger.Info("onboarding session started", "session_id", s.ID, "organization_id", orgID)
	return Turn{Session: s, Prompt: s.Prompt()}, nil
}

// Get returns the current state of a session.
func (o *Orchestrator) Get(ctx context.Context, id string) (Turn, error) {
	s, err := o.store.Get(ctx, id)
	if err != nil {
		return Turn{}, err
	}
	return Turn{Session: s, Prompt: s.Prompt()}, nil
}

// Advance answers the current question. An invalid answer is reported in
// Turn.Problem with the session unchanged, so the caller can ask again.
func (o *Orchestrator) Advance(ctx context.Context, id, answer string) (Turn, error) {
	return o.apply(ctx, id, func(s *Session) error { return s.Advance(answer, o.bounds, o.now()) })
}

// Back returns to the previous question.
func (o *Orchestrator) Back(ctx context.Context, id string) (Turn, error) {
	return o.apply(ctx, id, func(s *Session) error { return s.Back(o.now()) })
}

// EditStep jumps to question n.
func (o *Orchestrator) EditStep(ctx context.Context, id string, n int) (Turn, error) {
	return o.apply(ctx, id, func(s *Session) error { return s.EditStep(n, o.now()) })
}

// Skip skips the current optional question.
func (o *Orchestrator) Skip(ctx context.Context, id string) (Turn, error) {
	return o.apply(ctx, id, func(s *Session) error { return s.Skip(o.now()) })
}

// Finish returns the campaign draft of a completed session and discards it.
func (o *Orchestrator) Finish(ctx context.Context, id string) (CampaignDraft, error) {
	s, err := o.store.Get(ctx, id)
	if err != nil {
		return CampaignDraft{}, err
	}
	d, err := s.Draft(o.bounds)
	if err != nil {
		return CampaignDraft{}, err
	}
	if err := o.store.Delete(ctx, id); err != nil {
		logger.Warn("failed to discard onboarding session", "session_id", id, "error", err.Error())
	}
	logger.Info("onboarding session finished", "session_id", id, "organization_id", s.OrganizationID)
	return d, nil
}

func (o *Orchestrator) apply(ctx context.Context, id string, action func(*Session) error) (Turn, error) {
	s, err := o.store.Get(ctx, id)
	if err != nil {
		return Turn{}, err
	}
	if err := action(s); err != nil {
		var ae *AnswerError
		if errors.As(err, &ae) {
			return Turn{Session: s, Prompt: s.Prompt(), Problem: ae}, nil
		}
		return Turn{}, err
	}
	if err := o.store.Save(ctx, s); err != nil {
		return Turn{}, err
	}
	return Turn{Session: s, Prompt: s.Prompt()}, nil
}
