package campaign

import (
	"context"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Repository defines the data access contract for campaigns, their
// sequences and their lead enrollments. Implementations must be safe for
// concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, orgID, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, ordered by created_at DESC.
	List(ctx context.Context, orgID string, filter ListFilter) ([]domain.Campaign, int, error)

	// ListByStatus returns campaigns of every organization in the given status.
	ListByStatus(ctx context.Context, status domain.CampaignStatus) ([]domain.Campaign, error)

	// Create inserts a new campaign and returns its ID.
	Create(ctx context.Context, c *domain.Campaign) (string, error)

	// UpdateStatus sets a campaign's status. Transition rules are enforced by
	// the service.
	UpdateStatus(ctx context.Context, orgID, id string, status domain.CampaignStatus) error

	// GetSteps returns the campaign's sequence ordered by step order.
	GetSteps(ctx context.Context, campaignID string) ([]domain.StepDefinition, error)

	// ReplaceSteps atomically replaces the campaign's sequence.
	ReplaceSteps(ctx context.Context, campaignID string, steps []domain.StepDefinition) error

	// Enroll inserts an enrollment. Returns ErrAlreadyEnrolled if the lead is
	// already in the campaign.
	Enroll(ctx context.Context, e *domain.LeadEnrollment) error

	// GetEnrollment returns ErrEnrollmentNotFound if the lead is not enrolled.
	GetEnrollment(ctx context.Context, campaignID, leadID string) (*domain.LeadEnrollment, error)

	// ListEnrollments returns the campaign's enrollments ordered by enrolled_at.
	ListEnrollments(ctx context.Context, campaignID string, filter EnrollmentFilter) ([]domain.LeadEnrollment, error)

	// SetEnrollmentStatus updates one enrollment.
	SetEnrollmentStatus(ctx context.Context, campaignID, leadID string, status domain.EnrollmentStatus) error

	// StopEnrollments marks every active enrollment stopped and returns how
	// many changed.
	StopEnrollments(ctx context.Context, campaignID string) (int, error)
}

// Ledger is the activity ledger: append-only rows per lead and campaign.
type Ledger interface {
	// GetActivities returns the lead's rows ordered by timestamp.
	GetActivities(ctx context.Context, leadID, campaignID string) ([]domain.Activity, error)

	// AppendActivity inserts one row. Rows are never updated.
	AppendActivity(ctx context.Context, a domain.Activity) error

	// OpenDispatches returns DISPATCHED rows older than before that have no
	// later row for the same lead and step.
	OpenDispatches(ctx context.Context, before time.Time, limit int) ([]domain.Activity, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// EnrollmentFilter controls pagination and filtering for enrollment lists.
type EnrollmentFilter struct {
	Status domain.EnrollmentStatus
	Limit  int
	Offset int
}
