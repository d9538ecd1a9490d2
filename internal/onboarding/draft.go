package onboarding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ignite/outreach-engine/internal/domain"
)

var (
	ErrSessionNotFound = errors.New("onboarding session not found")
	ErrSessionComplete = errors.New("onboarding session already complete")
	ErrSessionOpen     = errors.New("onboarding session not complete")
	ErrAtFirstState    = errors.New("already at the first question")
	ErrInvalidState    = errors.New("no such question")
	ErrSkipNotAllowed  = errors.New("question cannot be skipped")
	ErrSessionConflict = errors.New("onboarding session changed concurrently")
)

// CampaignDraft is the validated answer set handed to campaign creation.
type CampaignDraft struct {
	OrganizationID string            `json:"organization_id" validate:"required"`
	Name           string            `json:"name" validate:"required,max=120"`
	Industries     []string          `json:"industries" validate:"required,min=1,dive,required"`
	Locations      []string          `json:"locations" validate:"required,min=1,dive,required"`
	Roles          []string          `json:"roles" validate:"dive,required"`
	Platforms      []domain.Platform `json:"platforms" validate:"required,min=1,dive,oneof=linkedin email whatsapp call sms instagram voice"`
	Goal           string            `json:"goal" validate:"required,max=500"`
	LeadsPerDay    int               `json:"leads_per_day" validate:"gte=1"`
	CampaignDays   int               `json:"campaign_days" validate:"gte=1"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Draft converts a completed session into a campaign draft. Skipped
// platforms default to LinkedIn.
func (s *Session) Draft(b Bounds) (CampaignDraft, error) {
	if !s.Complete() || !s.Answers.Confirmed {
		return CampaignDraft{}, ErrSessionOpen
	}
	a := s.Answers
	platforms := a.Platforms
	if len(platforms) == 0 {
		platforms = []domain.Platform{domain.PlatformLinkedIn}
	}
	d := CampaignDraft{
		OrganizationID: s.OrganizationID,
		Name:           draftName(a),
		Industries:     a.Industries,
		Locations:      a.Locations,
		Roles:          a.Roles,
		Platforms:      platforms,
		Goal:           a.Goal,
		LeadsPerDay:    a.LeadsPerDay,
		CampaignDays:   a.CampaignDays,
	}
	if err := validate.Struct(d); err != nil {
		return CampaignDraft{}, fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
	}
	if d.LeadsPerDay > b.MaxLeadsPerDay || d.CampaignDays > b.MaxCampaignDays {
		return CampaignDraft{}, fmt.Errorf("%w: settings exceed configured bounds", ErrInvalidAnswer)
	}
	return d, nil
}

// maxDraftName is in characters, not bytes.
const maxDraftName = 120

func draftName(a Answers) string {
	name := strings.Join(a.Industries, ", ")
	if len(a.Locations) > 0 {
		name += " in " + a.Locations[0]
	}
	if r := []rune(name); len(r) > maxDraftName {
		name = string(r[:maxDraftName])
	}
	return name
}
