package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of an outreach campaign.
type CampaignStatus string

const (
	CampaignDraft   CampaignStatus = "draft"
	CampaignRunning CampaignStatus = "running"
	CampaignPaused  CampaignStatus = "paused"
	CampaignStopped CampaignStatus = "stopped"
)

// Campaign is the execution-time view of a campaign: its status and the
// sending accounts leads may be admitted on.
type Campaign struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"organization_id" db:"organization_id"`
	Name           string         `json:"name" db:"name"`
	Status         CampaignStatus `json:"status" db:"status"`
	AccountIDs     []string       `json:"account_ids" db:"account_ids"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign can never be planned again.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignStopped
}

// AcceptsPlanning returns true if the sweeper may produce new work for the
// campaign's leads.
func (c *Campaign) AcceptsPlanning() bool {
	return c.Status == CampaignRunning
}

// Platform is the primary channel an enrollment runs its connection
// sub-sequence on.
type Platform string

const (
	PlatformLinkedIn  Platform = "linkedin"
	PlatformEmail     Platform = "email"
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformCall      Platform = "call"
	PlatformSMS       Platform = "sms"
	PlatformInstagram Platform = "instagram"
	PlatformVoice     Platform = "voice"
)

// Platforms lists every supported platform in display order.
var Platforms = []Platform{
	PlatformLinkedIn, PlatformEmail, PlatformWhatsApp, PlatformCall,
	PlatformSMS, PlatformInstagram, PlatformVoice,
}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// EnrollmentStatus is the stored lifecycle of a lead enrollment. Step-level
// progress is never stored; it is derived from the activity ledger.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentStopped   EnrollmentStatus = "stopped"
	EnrollmentRemoved   EnrollmentStatus = "removed"
)

// LeadEnrollment binds one lead to one campaign. (LeadID, CampaignID) is
// unique.
type LeadEnrollment struct {
	LeadID     string           `json:"lead_id" db:"lead_id"`
	CampaignID string           `json:"campaign_id" db:"campaign_id"`
	Platform   Platform         `json:"platform" db:"platform"`
	AccountID  string           `json:"account_id,omitempty" db:"account_id"`
	Status     EnrollmentStatus `json:"status" db:"status"`
	EnrolledAt time.Time        `json:"enrolled_at" db:"enrolled_at"`
}

// Plannable returns true if the sweeper should evaluate the enrollment.
func (e *LeadEnrollment) Plannable() bool {
	return e.Status == EnrollmentActive
}

// CampaignSnapshot is the aggregate counter set for a campaign, computed by
// counting enrollments by their furthest-reached terminal or blocking state.
type CampaignSnapshot struct {
	CampaignID string    `json:"campaign_id"`
	Delivered  int       `json:"delivered"`
	Failed     int       `json:"failed"`
	Pending    int       `json:"pending"`
	Paused     int       `json:"paused"`
	Total      int       `json:"total"`
	TakenAt    time.Time `json:"taken_at"`
}
