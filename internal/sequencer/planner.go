// Package sequencer decides, per lead and per sweep, what happens next in a
// campaign sequence: run a step now, defer, block, or finish. It reads lead
// state only through the derive package, so planning and display always
// agree on where a lead is.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/derive"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/flow"
	"github.com/ignite/outreach-engine/internal/ratelimit"
)

// Disposition is the kind of planning decision.
type Disposition string

const (
	RunNow  Disposition = "run_now"
	Defer   Disposition = "defer"
	Blocked Disposition = "blocked"
	Done    Disposition = "done"
)

// Decision is the outcome of planning one lead.
type Decision struct {
	Disposition Disposition            `json:"disposition"`
	Step        *domain.StepDefinition `json:"step,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
	// RetryAfter is the earliest instant a Defer or rate-limit Blocked can
	// change. Zero when unknown.
	RetryAfter time.Time `json:"retry_after,omitempty"`
	// AccountID is the admitted sending account of a RunNow on a capped step.
	AccountID string `json:"account_id,omitempty"`
	// PauseReason is set when the lead is blocked by rate limits.
	PauseReason domain.PauseReason `json:"pause_reason,omitempty"`
}

// RateLimited reports whether the decision is a transient rate-limit block.
func (d Decision) RateLimited() bool {
	return d.Disposition == Blocked && d.PauseReason != domain.PauseNone
}

// Input is everything the planner needs for one lead.
type Input struct {
	Campaign   domain.Campaign
	Enrollment domain.LeadEnrollment
	// Steps must already have passed derive.Validate.
	Steps      []domain.StepDefinition
	Activities []domain.Activity
	Now        time.Time
}

// LedgerWriter appends rows to the activity ledger.
type LedgerWriter interface {
	AppendActivity(ctx context.Context, a domain.Activity) error
}

// Planner plans leads against the rate limiter. It writes only PAUSED rows;
// all other ledger rows come from dispatch and channel workers.
type Planner struct {
	limiter ratelimit.Limiter
	ledger  LedgerWriter
}

// NewPlanner creates a planner.
func NewPlanner(limiter ratelimit.Limiter, ledger LedgerWriter) *Planner {
	return &Planner{limiter: limiter, ledger: ledger}
}

var errNoAccount = errors.New("no sending account available")

func stepID(s domain.StepDefinition) string { return s.ID }

// Plan walks the sequence in order and returns the decision for the first
// step that is not complete.
func (p *Planner) Plan(ctx context.Context, in Input) (Decision, error) {
	switch {
	case in.Campaign.IsTerminal():
		return Decision{Disposition: Done, Reason: "Campaign stopped"}, nil
	case !in.Campaign.AcceptsPlanning():
		return Decision{Disposition: Defer, Reason: fmt.Sprintf("Campaign %s", in.Campaign.Status)}, nil
	case !in.Enrollment.Plannable():
		return Decision{Disposition: Done, Reason: fmt.Sprintf("Enrollment %s", in.Enrollment.Status)}, nil
	}

	seq, err := flow.New(in.Steps, stepID)
	if err != nil {
		return Decision{}, fmt.Errorf("plan lead %s: %w", in.Enrollment.LeadID, err)
	}
	facts := derive.Fold(in.Steps, in.Activities)

	// Nothing new is planned while any step has an open dispatch.
	for i := 0; i < seq.Len(); i++ {
		s := seq.At(i)
		if facts.Step(s.ID).Dispatched {
			return Decision{Disposition: Defer, Step: &s, Reason: "Step in progress"}, nil
		}
	}

	var (
		decision Decision
		admitErr error
		entered  = in.Enrollment.EnrolledAt
	)
	halted, err := seq.Walk(0, func(_ int, s domain.StepDefinition) flow.Verdict {
		r := derive.Evaluate(derive.Input{Facts: facts, Step: s, EnteredAt: entered, Now: in.Now})
		step := s

		switch r.State {
		case domain.StateCompleted:
			if !r.CompletedAt.IsZero() && r.CompletedAt.After(entered) {
				entered = r.CompletedAt
			}
			if s.Type == domain.StepEnd {
				decision = Decision{Disposition: Done, Step: &step, Reason: r.Reason}
				return flow.Halt()
			}
			if r.Branch == derive.BranchTarget {
				cfg, _ := s.ConditionConfig()
				return flow.Goto(cfg.BranchTargetStepID)
			}
			return flow.Next()

		case domain.StateSkipped:
			return flow.Next()

		case domain.StateFailed:
			decision = Decision{Disposition: Blocked, Step: &step, Reason: r.Reason}
			return flow.Halt()

		case domain.StateInProgress, domain.StateWaiting:
			decision = Decision{Disposition: Defer, Step: &step, Reason: r.Reason, RetryAfter: r.ReadyAt}
			return flow.Halt()
		}

		// PENDING or PAUSED: the step is the lead's current position.
		switch {
		case s.Type == domain.StepDelay || s.Type == domain.StepCondition:
			decision = Decision{Disposition: Defer, Step: &step, Reason: r.Reason, RetryAfter: r.ReadyAt}
		case s.Type == domain.StepMessage && !facts.ConnectionAccepted:
			decision = Decision{Disposition: Blocked, Step: &step, Reason: "Message requires an accepted connection"}
		case s.Type.ActionClass().Capped():
			decision, admitErr = p.admit(ctx, in, facts, step)
		default:
			decision = Decision{Disposition: RunNow, Step: &step, AccountID: senderAccount(in, facts)}
		}
		return flow.Halt()
	})
	if err != nil {
		return Decision{}, fmt.Errorf("plan lead %s: %w", in.Enrollment.LeadID, err)
	}
	if admitErr != nil {
		return Decision{}, admitErr
	}
	if halted == seq.Len() {
		return Decision{Disposition: Done, Reason: "Sequence complete"}, nil
	}
	return decision, nil
}

// accounts returns the accounts a lead may be admitted on, in trial order.
func accounts(in Input) []string {
	if in.Enrollment.AccountID != "" {
		return []string{in.Enrollment.AccountID}
	}
	return in.Campaign.AccountIDs
}

// senderAccount picks the account for an uncapped step: the pinned one, or
// the account the connection request went out on.
func senderAccount(in Input, facts domain.LeadFacts) string {
	if in.Enrollment.AccountID != "" {
		return in.Enrollment.AccountID
	}
	return facts.ConnectAccountID
}

// admit tries each candidate account until one admits the step. When all
// reject, the lead is blocked and the pause reason is recorded.
func (p *Planner) admit(ctx context.Context, in Input, facts domain.LeadFacts, step domain.StepDefinition) (Decision, error) {
	candidates := accounts(in)
	if len(candidates) == 0 {
		return Decision{Disposition: Blocked, Step: &step, Reason: "Blocked: " + errNoAccount.Error()}, nil
	}

	var (
		reason     = domain.PauseWeeklyLimit
		retryAfter time.Time
	)
	for _, acct := range candidates {
		adm, err := p.limiter.TryAdmit(ctx, acct, step.Type.ActionClass(), in.Now)
		if err != nil {
			return Decision{}, fmt.Errorf("admit lead %s on %s: %w", in.Enrollment.LeadID, acct, err)
		}
		if adm.Admitted {
			return Decision{Disposition: RunNow, Step: &step, AccountID: acct}, nil
		}
		if adm.Reason == domain.PauseDailyLimit {
			reason = domain.PauseDailyLimit
		}
		if retryAfter.IsZero() || (!adm.RetryAfter.IsZero() && adm.RetryAfter.Before(retryAfter)) {
			retryAfter = adm.RetryAfter
		}
	}

	if err := p.recordPause(ctx, in, facts, step, reason); err != nil {
		return Decision{}, err
	}
	return Decision{
		Disposition: Blocked,
		Step:        &step,
		Reason:      "Paused: " + reason.Describe(),
		RetryAfter:  retryAfter,
		PauseReason: reason,
	}, nil
}

// recordPause appends a PAUSED row unless the ledger already derives the
// same pause.
func (p *Planner) recordPause(ctx context.Context, in Input, facts domain.LeadFacts, step domain.StepDefinition, reason domain.PauseReason) error {
	if p.ledger == nil {
		return nil
	}
	if facts.ConnectionStatus == domain.ConnectionPaused && facts.PauseReason == reason {
		return nil
	}
	err := p.ledger.AppendActivity(ctx, domain.Activity{
		ID:           uuid.NewString(),
		LeadID:       in.Enrollment.LeadID,
		CampaignID:   in.Enrollment.CampaignID,
		StepID:       step.ID,
		ActionType:   step.Type.Action(),
		Platform:     in.Enrollment.Platform,
		Status:       domain.ActivityPaused,
		Timestamp:    in.Now,
		ErrorMessage: string(reason),
	})
	if err != nil {
		return fmt.Errorf("record pause for lead %s: %w", in.Enrollment.LeadID, err)
	}
	return nil
}
