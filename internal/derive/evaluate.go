package derive

import (
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Branch is the outcome of a resolved condition step.
type Branch int

const (
	BranchNone Branch = iota
	// BranchContinue follows the sequence order.
	BranchContinue
	// BranchTarget jumps to the condition's branchTargetStepId.
	BranchTarget
)

// Input is everything Evaluate needs to derive one step's state.
type Input struct {
	Facts domain.LeadFacts
	Step  domain.StepDefinition
	// EnteredAt is when the lead reached this step (completion time of the
	// previous step, or enrollment time for the first one).
	EnteredAt time.Time
	Now       time.Time
}

// Result is a derived step state with its operator-facing reason.
type Result struct {
	State  domain.StepState `json:"state"`
	Reason string           `json:"reason"`
	// CompletedAt is set for COMPLETED results and feeds the next step's
	// EnteredAt.
	CompletedAt time.Time `json:"completed_at,omitempty"`
	// ReadyAt is set when the step is waiting on time alone.
	ReadyAt time.Time `json:"ready_at,omitempty"`
	Branch  Branch    `json:"-"`
}

func result(state domain.StepState, reason string) Result {
	return Result{State: state, Reason: reason}
}

func completed(reason string, at time.Time) Result {
	return Result{State: domain.StateCompleted, Reason: reason, CompletedAt: at}
}

// Evaluate derives the state of in.Step. A step's state depends only on
// itself and its immediate dependency, never on steps further downstream.
func Evaluate(in Input) Result {
	f := in.Facts
	switch in.Step.Type {
	case domain.StepStart:
		return completed("Sequence started", in.EnteredAt)
	case domain.StepEnd:
		return completed("Sequence complete", in.EnteredAt)
	case domain.StepProfileVisit:
		return profileVisit(f, f.Step(in.Step.ID))
	case domain.StepConnect:
		return connect(f, f.Step(in.Step.ID))
	case domain.StepMessage:
		return messageAfterAccept(f, f.Step(in.Step.ID))
	case domain.StepDelay:
		return delay(in)
	case domain.StepCondition:
		return condition(in)
	}
	return channelSend(in.Step.Type, f.Step(in.Step.ID))
}

func profileVisit(f domain.LeadFacts, sf domain.StepFacts) Result {
	switch {
	case f.ProfileVisited:
		return completed("Profile visited", f.VisitedAt)
	case sf.Status == domain.ActivityFailed:
		return result(domain.StateFailed, failedReason(sf.Error))
	case sf.Dispatched:
		return result(domain.StateInProgress, "Visiting profile")
	}
	return result(domain.StatePending, "Waiting to visit profile")
}

func connect(f domain.LeadFacts, sf domain.StepFacts) Result {
	switch f.ConnectionStatus {
	case domain.ConnectionSent:
		return completed("Connection request sent", f.ConnectSentAt)
	case domain.ConnectionPaused:
		reason := f.PauseReason.Describe()
		if reason == "" {
			reason = "Rate limit reached"
		}
		return result(domain.StatePaused, "Paused: "+reason)
	case domain.ConnectionFailed:
		msg := sf.Error
		if msg == "" {
			msg = f.LastError
		}
		return result(domain.StateFailed, failedReason(msg))
	}
	if f.ConnectDispatched {
		return result(domain.StateInProgress, "Sending connection request")
	}
	return result(domain.StatePending, "Waiting to send connection request")
}

// messageAfterAccept derives a LinkedIn message that depends on an accepted
// connection. A paused or failed connection leaves the message PENDING
// rather than SKIPPED.
func messageAfterAccept(f domain.LeadFacts, sf domain.StepFacts) Result {
	switch {
	case f.ConnectionAccepted && sf.Status == domain.ActivitySent:
		return completed("Message sent", sf.CompletedAt)
	case sf.Status == domain.ActivityFailed:
		return result(domain.StateFailed, failedReason(sf.Error))
	case sf.Status == domain.ActivitySkipped:
		return result(domain.StateSkipped, skippedReason(sf.Error))
	case f.ConnectionAccepted && sf.Dispatched:
		return result(domain.StateInProgress, "Message queued")
	case f.ConnectionStatus == domain.ConnectionSent && !f.ConnectionAccepted:
		return result(domain.StateWaiting, "Waiting for connection acceptance")
	case f.ConnectionStatus == domain.ConnectionPaused || f.ConnectionStatus == domain.ConnectionFailed:
		return result(domain.StatePending, "Waiting for connection")
	}
	return result(domain.StatePending, "Waiting to send message")
}

func channelSend(t domain.StepType, sf domain.StepFacts) Result {
	label := stepLabel(t)
	switch {
	case sf.Status == domain.ActivitySent:
		return completed(label+" done", sf.CompletedAt)
	case sf.Status == domain.ActivityFailed:
		return result(domain.StateFailed, failedReason(sf.Error))
	case sf.Status == domain.ActivitySkipped:
		return result(domain.StateSkipped, skippedReason(sf.Error))
	case sf.Status == domain.ActivityPaused:
		return result(domain.StatePaused, "Paused: "+domain.PauseRateLimit.Describe())
	case sf.Dispatched:
		return result(domain.StateInProgress, label+" in progress")
	}
	return result(domain.StatePending, "Waiting: "+label)
}

func delay(in Input) Result {
	cfg, err := in.Step.DelayConfig()
	if err != nil {
		return result(domain.StateFailed, "Invalid delay configuration")
	}
	ready := in.EnteredAt.Add(cfg.Duration())
	if !in.Now.Before(ready) {
		return completed("Delay elapsed", ready)
	}
	r := result(domain.StatePending, "Waiting until "+ready.UTC().Format(time.RFC3339))
	r.ReadyAt = ready
	return r
}

func condition(in Input) Result {
	cfg, err := in.Step.ConditionConfig()
	if err != nil {
		return result(domain.StateFailed, "Invalid condition configuration")
	}
	f := in.Facts

	resolve := func(ok bool, at time.Time) Result {
		r := completed("Condition met", latest(at, in.EnteredAt))
		r.Branch = BranchContinue
		if !ok {
			r.Reason = "Condition not met"
			r.Branch = BranchTarget
		}
		return r
	}
	// wait resolves to false once the configured timeout has elapsed since
	// the dependency completed.
	wait := func(since time.Time, reason string) Result {
		if cfg.Timeout() > 0 && !since.IsZero() {
			deadline := latest(since, in.EnteredAt).Add(cfg.Timeout())
			if !in.Now.Before(deadline) {
				return resolve(false, deadline)
			}
			r := result(domain.StateWaiting, reason)
			r.ReadyAt = deadline
			return r
		}
		return result(domain.StateWaiting, reason)
	}

	switch cfg.ConditionType {
	case domain.ConditionConnectionAccepted:
		switch {
		case f.ConnectionAccepted:
			return resolve(true, f.AcceptedAt)
		case f.ConnectionStatus == domain.ConnectionFailed:
			return resolve(false, in.EnteredAt)
		case f.ConnectionStatus == domain.ConnectionSent:
			return wait(f.ConnectSentAt, "Waiting for connection acceptance")
		}
		return result(domain.StatePending, "Connection request not sent yet")

	case domain.ConditionLeadReplied:
		switch {
		case f.LeadReplied:
			return resolve(true, f.RepliedAt)
		case f.ContactedStatus == domain.ContactedFailed || f.ContactedStatus == domain.ContactedSkipped:
			return resolve(false, in.EnteredAt)
		case f.Contacted:
			return wait(f.ContactedAt, "Waiting for reply")
		}
		return result(domain.StatePending, "Lead not contacted yet")

	case domain.ConditionProfileVisited:
		return resolve(f.ProfileVisited, f.VisitedAt)

	case domain.ConditionContacted:
		return resolve(f.Contacted, f.ContactedAt)
	}
	return result(domain.StateFailed, fmt.Sprintf("Unknown condition %q", cfg.ConditionType))
}

func failedReason(msg string) string {
	if msg == "" {
		return "Failed"
	}
	return "Failed: " + msg
}

func skippedReason(msg string) string {
	if msg == "" {
		return "Skipped"
	}
	return "Skipped: " + msg
}

func stepLabel(t domain.StepType) string {
	switch t {
	case domain.StepFollow:
		return "Follow"
	case domain.StepSendEmail:
		return "Email"
	case domain.StepSendWhatsApp:
		return "WhatsApp message"
	case domain.StepSendSMS:
		return "SMS"
	case domain.StepSendVoice:
		return "Voice call"
	case domain.StepSendInstagram:
		return "Instagram message"
	case domain.StepLeadGeneration:
		return "Lead generation"
	}
	return string(t)
}
