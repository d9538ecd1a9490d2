package campaign

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/derive"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/onboarding"
	"github.com/ignite/outreach-engine/internal/ratelimit"
	"github.com/ignite/outreach-engine/internal/sequencer"
)

// Service implements campaign business logic. It coordinates between the
// repository, the activity ledger and the rate limiter. All public methods
// are safe for concurrent use if the underlying repository is
// concurrency-safe.
type Service struct {
	repo    Repository
	ledger  Ledger
	limiter ratelimit.Limiter
	now     func() time.Time
}

// NewService creates a campaign service.
func NewService(repo Repository, ledger Ledger, limiter ratelimit.Limiter) *Service {
	return &Service{repo: repo, ledger: ledger, limiter: limiter, now: time.Now}
}

// transitions lists the allowed status changes. Stop is one-way.
var transitions = map[domain.CampaignStatus][]domain.CampaignStatus{
	domain.CampaignDraft:   {domain.CampaignRunning, domain.CampaignStopped},
	domain.CampaignRunning: {domain.CampaignPaused, domain.CampaignStopped},
	domain.CampaignPaused:  {domain.CampaignRunning, domain.CampaignStopped},
}

func canTransition(from, to domain.CampaignStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, orgID, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, orgID, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, orgID string, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, orgID, f)
}

// Create persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, orgID string, input CreateInput) (*domain.Campaign, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	now := s.now()
	c := &domain.Campaign{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Name:           input.Name,
		Status:         domain.CampaignDraft,
		AccountIDs:     input.AccountIDs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id

	if len(input.Steps) > 0 {
		if _, err := s.RegisterSequence(ctx, orgID, c.ID, input.Steps); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CreateFromDraft creates a draft campaign from a finished onboarding
// session, with a default sequence for the chosen platforms.
func (s *Service) CreateFromDraft(ctx context.Context, d onboarding.CampaignDraft, accountIDs []string) (*domain.Campaign, error) {
	return s.Create(ctx, d.OrganizationID, CreateInput{
		Name:       d.Name,
		AccountIDs: accountIDs,
		Steps:      DefaultSequence(d.Platforms),
	})
}

// RegisterSequence validates and stores a campaign's sequence. Invalid
// sequences are rejected with a *derive.ValidationError before anything can
// be planned against them.
func (s *Service) RegisterSequence(ctx context.Context, orgID, campaignID string, steps []domain.StepDefinition) ([]domain.StepDefinition, error) {
	c, err := s.repo.Get(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	if c.IsTerminal() {
		return nil, ErrCampaignStopped
	}

	sorted, err := derive.Validate(steps)
	if err != nil {
		return nil, err
	}
	for i := range sorted {
		sorted[i].CampaignID = campaignID
		if sorted[i].ID == "" {
			sorted[i].ID = uuid.NewString()
		}
	}
	if err := s.repo.ReplaceSteps(ctx, campaignID, sorted); err != nil {
		return nil, fmt.Errorf("store sequence: %w", err)
	}
	log.Printf("[campaign.Service] Campaign %s: registered %d steps", campaignID, len(sorted))
	return sorted, nil
}

// Steps returns the campaign's sequence.
func (s *Service) Steps(ctx context.Context, orgID, campaignID string) ([]domain.StepDefinition, error) {
	if _, err := s.repo.Get(ctx, orgID, campaignID); err != nil {
		return nil, err
	}
	return s.repo.GetSteps(ctx, campaignID)
}

// Launch moves a draft campaign to running once it has a valid sequence.
func (s *Service) Launch(ctx context.Context, orgID, id string) error {
	steps, err := s.repo.GetSteps(ctx, id)
	if err != nil {
		return fmt.Errorf("load sequence: %w", err)
	}
	if len(steps) == 0 {
		return ErrNoSequence
	}
	if _, err := derive.Validate(steps); err != nil {
		return err
	}
	return s.transition(ctx, orgID, id, domain.CampaignDraft, domain.CampaignRunning)
}

// Pause stops new work from being planned for the campaign on the next
// sweep. Work already dispatched is not rolled back.
func (s *Service) Pause(ctx context.Context, orgID, id string) error {
	return s.transition(ctx, orgID, id, domain.CampaignRunning, domain.CampaignPaused)
}

// Resume returns a paused campaign to running.
func (s *Service) Resume(ctx context.Context, orgID, id string) error {
	return s.transition(ctx, orgID, id, domain.CampaignPaused, domain.CampaignRunning)
}

// Stop permanently ends a campaign and marks its active enrollments
// stopped. There is no way back.
func (s *Service) Stop(ctx context.Context, orgID, id string) (int, error) {
	c, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return 0, err
	}
	if !canTransition(c.Status, domain.CampaignStopped) {
		return 0, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, domain.CampaignStopped)
	}
	if err := s.repo.UpdateStatus(ctx, orgID, id, domain.CampaignStopped); err != nil {
		return 0, fmt.Errorf("transition to stopped: %w", err)
	}
	n, err := s.repo.StopEnrollments(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("stop enrollments: %w", err)
	}
	log.Printf("[campaign.Service] Campaign %s stopped: %d enrollments ended", id, n)
	return n, nil
}

func (s *Service) transition(ctx context.Context, orgID, id string, from, to domain.CampaignStatus) error {
	c, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return err
	}
	if c.Status != from || !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	if err := s.repo.UpdateStatus(ctx, orgID, id, to); err != nil {
		return fmt.Errorf("transition to %s: %w", to, err)
	}
	log.Printf("[campaign.Service] Campaign %s: %s -> %s", id, from, to)
	return nil
}

// Enroll adds a lead to a campaign.
func (s *Service) Enroll(ctx context.Context, orgID, campaignID string, input EnrollInput) (*domain.LeadEnrollment, error) {
	c, err := s.repo.Get(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	if c.IsTerminal() {
		return nil, ErrCampaignStopped
	}
	if input.LeadID == "" {
		return nil, fmt.Errorf("%w: lead_id is required", ErrInvalidInput)
	}
	if input.Platform == "" {
		input.Platform = domain.PlatformLinkedIn
	}
	if !input.Platform.Valid() {
		return nil, fmt.Errorf("%w: unknown platform %q", ErrInvalidInput, input.Platform)
	}

	e := &domain.LeadEnrollment{
		LeadID:     input.LeadID,
		CampaignID: campaignID,
		Platform:   input.Platform,
		AccountID:  input.AccountID,
		Status:     domain.EnrollmentActive,
		EnrolledAt: s.now(),
	}
	if err := s.repo.Enroll(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// RemoveLead soft-removes a lead from a campaign. Its ledger rows stay.
func (s *Service) RemoveLead(ctx context.Context, orgID, campaignID, leadID string) error {
	if _, err := s.repo.Get(ctx, orgID, campaignID); err != nil {
		return err
	}
	return s.repo.SetEnrollmentStatus(ctx, campaignID, leadID, domain.EnrollmentRemoved)
}

// RetryFailed re-admits a lead whose step derives to FAILED or SKIPPED by
// appending a RETRY row for that step.
func (s *Service) RetryFailed(ctx context.Context, orgID, campaignID, leadID, stepID string) error {
	c, err := s.repo.Get(ctx, orgID, campaignID)
	if err != nil {
		return err
	}
	if c.IsTerminal() {
		return ErrCampaignStopped
	}
	e, err := s.repo.GetEnrollment(ctx, campaignID, leadID)
	if err != nil {
		return err
	}
	steps, err := s.repo.GetSteps(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("load sequence: %w", err)
	}
	var step *domain.StepDefinition
	for i := range steps {
		if steps[i].ID == stepID {
			step = &steps[i]
			break
		}
	}
	if step == nil {
		return fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
	}
	if step.Type.Structural() {
		return fmt.Errorf("%w: %s has no action", ErrNotRetryable, step.Type)
	}

	activities, err := s.ledger.GetActivities(ctx, leadID, campaignID)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	facts := derive.Fold(steps, activities)
	r := derive.Evaluate(derive.Input{Facts: facts, Step: *step, EnteredAt: e.EnrolledAt, Now: s.now()})
	if r.State != domain.StateFailed && r.State != domain.StateSkipped {
		return fmt.Errorf("%w: %s is %s", ErrNotRetryable, stepID, r.State)
	}

	err = s.ledger.AppendActivity(ctx, domain.Activity{
		ID:         uuid.NewString(),
		LeadID:     leadID,
		CampaignID: campaignID,
		StepID:     stepID,
		ActionType: step.Type.Action(),
		Platform:   e.Platform,
		Status:     domain.ActivityRetry,
		Timestamp:  s.now(),
	})
	if err != nil {
		return fmt.Errorf("append retry: %w", err)
	}
	if e.Status == domain.EnrollmentCompleted {
		if err := s.repo.SetEnrollmentStatus(ctx, campaignID, leadID, domain.EnrollmentActive); err != nil {
			return fmt.Errorf("reactivate enrollment: %w", err)
		}
	}
	log.Printf("[campaign.Service] Lead %s: retry of step %s in campaign %s", leadID, stepID, campaignID)
	return nil
}

// LeadProgress is the derived per-lead view shown to operators.
type LeadProgress struct {
	Enrollment domain.LeadEnrollment   `json:"enrollment"`
	Facts      domain.LeadFacts        `json:"facts"`
	Milestones []derive.MilestoneState `json:"milestones"`
	Steps      []sequencer.StepView    `json:"steps"`
}

// LeadProgress derives a lead's progress from the ledger.
func (s *Service) LeadProgress(ctx context.Context, orgID, campaignID, leadID string) (*LeadProgress, error) {
	if _, err := s.repo.Get(ctx, orgID, campaignID); err != nil {
		return nil, err
	}
	e, err := s.repo.GetEnrollment(ctx, campaignID, leadID)
	if err != nil {
		return nil, err
	}
	steps, err := s.repo.GetSteps(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load sequence: %w", err)
	}
	activities, err := s.ledger.GetActivities(ctx, leadID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	facts := derive.Fold(steps, activities)
	return &LeadProgress{
		Enrollment: *e,
		Facts:      facts,
		Milestones: derive.Progress(facts),
		Steps:      sequencer.Timeline(steps, activities, e.EnrolledAt, s.now()),
	}, nil
}

// Capacity reports the campaign's aggregate rate-limit capacity.
func (s *Service) Capacity(ctx context.Context, orgID, campaignID string) (ratelimit.CampaignCapacity, error) {
	c, err := s.repo.Get(ctx, orgID, campaignID)
	if err != nil {
		return ratelimit.CampaignCapacity{}, err
	}
	return ratelimit.Capacity(ctx, s.limiter, c.AccountIDs, s.now())
}

// Admit runs an admission check for a channel worker about to send.
func (s *Service) Admit(ctx context.Context, accountID string, class domain.ActionClass) (domain.Admission, error) {
	adm, err := s.limiter.TryAdmit(ctx, accountID, class, s.now())
	if errors.Is(err, ratelimit.ErrEmptyAccount) {
		return domain.Admission{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return adm, err
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name       string                  `json:"name"`
	AccountIDs []string                `json:"account_ids"`
	Steps      []domain.StepDefinition `json:"steps,omitempty"`
}

// EnrollInput holds the fields for enrolling a lead.
type EnrollInput struct {
	LeadID    string          `json:"lead_id"`
	Platform  domain.Platform `json:"platform"`
	AccountID string          `json:"account_id,omitempty"`
}
