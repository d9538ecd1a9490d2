package derive

import (
	"github.com/ignite/outreach-engine/internal/domain"
)

// Milestone names the canonical LinkedIn outreach milestones shown per lead.
type Milestone string

const (
	MilestoneProfileVisit Milestone = "profile_visit"
	MilestoneConnect      Milestone = "connect"
	MilestoneAccepted     Milestone = "accepted"
	MilestoneMessage      Milestone = "message"
	MilestoneReply        Milestone = "reply_received"
)

// MilestoneState is one row of a lead's progress view.
type MilestoneState struct {
	Milestone Milestone        `json:"milestone"`
	State     domain.StepState `json:"state"`
	Reason    string           `json:"reason"`
}

// Progress derives the five canonical milestones from the lead facts.
func Progress(f domain.LeadFacts) []MilestoneState {
	visit := profileVisit(f, domain.StepFacts{})
	conn := connect(f, domain.StepFacts{})
	msg := messageAfterAccept(f, firstMessageFacts(f))

	return []MilestoneState{
		{MilestoneProfileVisit, visit.State, visit.Reason},
		{MilestoneConnect, conn.State, conn.Reason},
		accepted(f),
		{MilestoneMessage, msg.State, msg.Reason},
		replyReceived(f),
	}
}

// connectBlocked reports whether the connection request is paused or failed.
func connectBlocked(f domain.LeadFacts) bool {
	return f.ConnectionStatus == domain.ConnectionPaused || f.ConnectionStatus == domain.ConnectionFailed
}

func accepted(f domain.LeadFacts) MilestoneState {
	m := MilestoneState{Milestone: MilestoneAccepted}
	switch {
	case f.ConnectionStatus == domain.ConnectionSent && f.ConnectionAccepted:
		m.State, m.Reason = domain.StateCompleted, "Connection accepted"
	case connectBlocked(f):
		m.State, m.Reason = domain.StateSkipped, "Skipped: connection request not sent"
	case f.ConnectionStatus == domain.ConnectionSent:
		m.State, m.Reason = domain.StatePending, "Waiting for connection acceptance"
	default:
		m.State, m.Reason = domain.StatePending, "Connection request not sent yet"
	}
	return m
}

func replyReceived(f domain.LeadFacts) MilestoneState {
	m := MilestoneState{Milestone: MilestoneReply}
	switch {
	case f.Contacted && f.LeadReplied:
		m.State, m.Reason = domain.StateCompleted, "Lead replied"
	case connectBlocked(f):
		m.State, m.Reason = domain.StateSkipped, "Skipped: connection request not sent"
	case f.Contacted:
		m.State, m.Reason = domain.StatePending, "Waiting for reply"
	default:
		m.State, m.Reason = domain.StatePending, "Lead not contacted yet"
	}
	return m
}

// firstMessageFacts rebuilds the first message's facts from the named lead
// facts, for views that have no sequence at hand.
func firstMessageFacts(f domain.LeadFacts) domain.StepFacts {
	sf := domain.StepFacts{Dispatched: f.MessageDispatched}
	switch f.ContactedStatus {
	case domain.ContactedSent:
		sf.Status, sf.CompletedAt = domain.ActivitySent, f.ContactedAt
	case domain.ContactedFailed:
		sf.Status = domain.ActivityFailed
	case domain.ContactedSkipped:
		sf.Status = domain.ActivitySkipped
	}
	return sf
}
