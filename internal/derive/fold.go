// Package derive turns a lead's append-only activity ledger into step
// states. Everything here is pure: the same ledger snapshot, sequence and
// instant always produce the same result, so the scheduler and any display
// layer can call it independently and never disagree.
package derive

import (
	"sort"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Fold replays a lead's ledger rows in timestamp order and returns the
// accumulated facts. steps is the campaign sequence; it is used to attach
// rows that carry no step id to the first step of the matching action type.
//
// Folding is forward-only: a SENT outcome is never undone, and a FAILED or
// SKIPPED outcome only clears on an explicit RETRY row.
func Fold(steps []domain.StepDefinition, activities []domain.Activity) domain.LeadFacts {
	facts := domain.LeadFacts{
		ConnectionStatus: domain.ConnectionNotSent,
		Steps:            make(map[string]domain.StepFacts),
	}

	rows := make([]domain.Activity, len(activities))
	copy(rows, activities)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})

	byID := make(map[string]bool, len(steps))
	firstOfAction := make(map[domain.ActionType]string)
	ordered := make([]domain.StepDefinition, len(steps))
	copy(ordered, steps)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	for _, s := range ordered {
		byID[s.ID] = true
		if a := s.Type.Action(); a != "" {
			if _, seen := firstOfAction[a]; !seen {
				firstOfAction[a] = s.ID
			}
		}
	}

	var connect, contact domain.StepFacts
	for _, row := range rows {
		// A LinkedIn message cannot reach a lead who has not accepted.
		if row.ActionType == domain.ActionMessage && row.Status == domain.ActivitySent && !facts.ConnectionAccepted {
			continue
		}

		stepID := row.StepID
		if !byID[stepID] {
			stepID = firstOfAction[row.ActionType]
		}
		if stepID != "" {
			facts.Steps[stepID] = apply(facts.Steps[stepID], row)
		}

		if row.Status == domain.ActivityFailed && row.ErrorMessage != "" {
			facts.LastError = row.ErrorMessage
		}

		switch row.ActionType {
		case domain.ActionProfileVisit:
			if row.Status == domain.ActivitySent && !facts.ProfileVisited {
				facts.ProfileVisited = true
				facts.VisitedAt = row.Timestamp
			}

		case domain.ActionConnectionRequest:
			// The account that carried the request out stays the sender for
			// the rest of the conversation.
			if row.AccountID != "" && connect.Status != domain.ActivitySent &&
				(row.Status == domain.ActivityDispatched || row.Status == domain.ActivitySent) {
				facts.ConnectAccountID = row.AccountID
			}
			connect = apply(connect, row)

		case domain.ActionConnectionAccepted:
			if row.Status == domain.ActivitySent || row.Status == "" {
				if !facts.ConnectionAccepted {
					facts.ConnectionAccepted = true
					facts.AcceptedAt = row.Timestamp
				}
			}

		case domain.ActionMessage, domain.ActionEmail, domain.ActionWhatsApp,
			domain.ActionSMS, domain.ActionVoiceCall, domain.ActionInstagramDM:
			contact = apply(contact, row)
			if contact.Status == domain.ActivitySent && !facts.Contacted {
				facts.Contacted = true
				facts.ContactedAt = row.Timestamp
			}

		case domain.ActionReply:
			if facts.Contacted && !facts.LeadReplied {
				facts.LeadReplied = true
				facts.RepliedAt = row.Timestamp
			}
		}
	}

	switch connect.Status {
	case domain.ActivitySent:
		facts.ConnectionStatus = domain.ConnectionSent
		facts.ConnectSentAt = connect.CompletedAt
	case domain.ActivityFailed:
		facts.ConnectionStatus = domain.ConnectionFailed
	case domain.ActivityPaused:
		facts.ConnectionStatus = domain.ConnectionPaused
		facts.PauseReason = domain.PauseReason(connect.Error)
	}
	facts.ConnectDispatched = connect.Dispatched

	// An acceptance proves the request went out, whatever the ledger says
	// about the attempt.
	if facts.ConnectionAccepted && facts.ConnectionStatus != domain.ConnectionSent {
		facts.ConnectionStatus = domain.ConnectionSent
		facts.ConnectSentAt = facts.AcceptedAt
		facts.PauseReason = domain.PauseNone
		facts.ConnectDispatched = false
	}

	switch contact.Status {
	case domain.ActivitySent:
		facts.ContactedStatus = domain.ContactedSent
	case domain.ActivityFailed:
		facts.ContactedStatus = domain.ContactedFailed
	case domain.ActivitySkipped:
		facts.ContactedStatus = domain.ContactedSkipped
	}
	facts.MessageDispatched = contact.Dispatched

	return facts
}

// apply folds one ledger row into the facts of a single step or action.
func apply(f domain.StepFacts, row domain.Activity) domain.StepFacts {
	switch row.Status {
	case domain.ActivityDispatched:
		if !resolved(f.Status) {
			f.Dispatched = true
			f.Status = ""
			f.Error = ""
		}
	case domain.ActivitySent:
		if f.Status != domain.ActivitySent {
			f = domain.StepFacts{Status: domain.ActivitySent, CompletedAt: row.Timestamp}
		}
	case domain.ActivityFailed:
		if !resolved(f.Status) {
			f = domain.StepFacts{Status: domain.ActivityFailed, CompletedAt: row.Timestamp, Error: row.ErrorMessage}
		}
	case domain.ActivitySkipped:
		if !resolved(f.Status) {
			f = domain.StepFacts{Status: domain.ActivitySkipped, CompletedAt: row.Timestamp, Error: row.ErrorMessage}
		}
	case domain.ActivityPaused:
		if !resolved(f.Status) && !f.Dispatched {
			f.Status = domain.ActivityPaused
			f.Error = row.ErrorMessage
		}
	case domain.ActivityRetry:
		if f.Status == domain.ActivityFailed || f.Status == domain.ActivitySkipped {
			f = domain.StepFacts{}
		}
	}
	return f
}

func resolved(s domain.ActivityStatus) bool {
	return s == domain.ActivitySent || s == domain.ActivityFailed || s == domain.ActivitySkipped
}

// latest returns the later of two instants.
func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
