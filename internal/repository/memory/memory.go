// Package memory provides in-process implementations of the campaign
// repository and activity ledger. It backs the single-binary dev mode and
// the service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/campaign"
)

type enrollmentKey struct{ campaignID, leadID string }

// Store implements campaign.Repository and campaign.Ledger.
type Store struct {
	mu          sync.RWMutex
	campaigns   map[string]*domain.Campaign
	steps       map[string][]domain.StepDefinition
	enrollments map[enrollmentKey]*domain.LeadEnrollment
	activities  []domain.Activity
	now         func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		campaigns:   make(map[string]*domain.Campaign),
		steps:       make(map[string][]domain.StepDefinition),
		enrollments: make(map[enrollmentKey]*domain.LeadEnrollment),
		now:         time.Now,
	}
}

func (s *Store) Get(_ context.Context, orgID, id string) (*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok || c.OrganizationID != orgID {
		return nil, campaign.ErrNotFound
	}
	return copyCampaign(c), nil
}

func (s *Store) List(_ context.Context, orgID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Campaign
	for _, c := range s.campaigns {
		if c.OrganizationID != orgID {
			continue
		}
		if f.Status != "" && string(c.Status) != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, *copyCampaign(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(out) || f.Limit <= 0 {
		end = len(out)
	}
	return out[f.Offset:end], total, nil
}

func (s *Store) ListByStatus(_ context.Context, status domain.CampaignStatus) ([]domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Campaign
	for _, c := range s.campaigns {
		if c.Status == status {
			out = append(out, *copyCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Create(_ context.Context, c *domain.Campaign) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = copyCampaign(c)
	return c.ID, nil
}

func (s *Store) UpdateStatus(_ context.Context, orgID, id string, status domain.CampaignStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.OrganizationID != orgID {
		return campaign.ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = s.now()
	return nil
}

func (s *Store) GetSteps(_ context.Context, campaignID string) ([]domain.StepDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.StepDefinition(nil), s.steps[campaignID]...), nil
}

func (s *Store) ReplaceSteps(_ context.Context, campaignID string, steps []domain.StepDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]domain.StepDefinition(nil), steps...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Order < cp[j].Order })
	s.steps[campaignID] = cp
	return nil
}

func (s *Store) Enroll(_ context.Context, e *domain.LeadEnrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := enrollmentKey{e.CampaignID, e.LeadID}
	if _, ok := s.enrollments[k]; ok {
		return campaign.ErrAlreadyEnrolled
	}
	cp := *e
	s.enrollments[k] = &cp
	return nil
}

func (s *Store) GetEnrollment(_ context.Context, campaignID, leadID string) (*domain.LeadEnrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.enrollments[enrollmentKey{campaignID, leadID}]
	if !ok {
		return nil, campaign.ErrEnrollmentNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) ListEnrollments(_ context.Context, campaignID string, f campaign.EnrollmentFilter) ([]domain.LeadEnrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.LeadEnrollment
	for k, e := range s.enrollments {
		if k.campaignID != campaignID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnrolledAt.Equal(out[j].EnrolledAt) {
			return out[i].LeadID < out[j].LeadID
		}
		return out[i].EnrolledAt.Before(out[j].EnrolledAt)
	})
	if f.Offset >= len(out) {
		return nil, nil
	}
	end := f.Offset + f.Limit
	if end > len(out) || f.Limit <= 0 {
		end = len(out)
	}
	return out[f.Offset:end], nil
}

func (s *Store) SetEnrollmentStatus(_ context.Context, campaignID, leadID string, status domain.EnrollmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[enrollmentKey{campaignID, leadID}]
	if !ok {
		return campaign.ErrEnrollmentNotFound
	}
	e.Status = status
	return nil
}

func (s *Store) StopEnrollments(_ context.Context, campaignID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.enrollments {
		if k.campaignID == campaignID && e.Status == domain.EnrollmentActive {
			e.Status = domain.EnrollmentStopped
			n++
		}
	}
	return n, nil
}

// GetActivities returns the lead's rows in timestamp order.
func (s *Store) GetActivities(_ context.Context, leadID, campaignID string) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Activity
	for _, a := range s.activities {
		if a.LeadID == leadID && a.CampaignID == campaignID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) AppendActivity(_ context.Context, a domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, a)
	return nil
}

// OpenDispatches returns DISPATCHED rows older than before with no later row
// for the same lead, campaign and step.
func (s *Store) OpenDispatches(_ context.Context, before time.Time, limit int) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type stepKey struct{ lead, campaign, step string }
	latest := make(map[stepKey]domain.Activity)
	for _, a := range s.activities {
		k := stepKey{a.LeadID, a.CampaignID, a.StepID}
		if prev, ok := latest[k]; !ok || !a.Timestamp.Before(prev.Timestamp) {
			latest[k] = a
		}
	}

	var out []domain.Activity
	for _, a := range latest {
		if a.Status == domain.ActivityDispatched && a.Timestamp.Before(before) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyCampaign(c *domain.Campaign) *domain.Campaign {
	cp := *c
	cp.AccountIDs = append([]string(nil), c.AccountIDs...)
	return &cp
}
