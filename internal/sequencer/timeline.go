package sequencer

import (
	"time"

	"github.com/ignite/outreach-engine/internal/derive"
	"github.com/ignite/outreach-engine/internal/domain"
)

// StepView is one row of a lead's per-step timeline.
type StepView struct {
	StepID  string           `json:"step_id"`
	Order   int              `json:"order"`
	Type    domain.StepType  `json:"type"`
	State   domain.StepState `json:"state"`
	Reason  string           `json:"reason"`
	ReadyAt time.Time        `json:"ready_at,omitempty"`
}

// Timeline derives every step of a lead's sequence for display. Steps passed
// over by a condition branch show as SKIPPED. It uses the same evaluation as
// Plan and has no side effects.
func Timeline(steps []domain.StepDefinition, activities []domain.Activity, enrolledAt, now time.Time) []StepView {
	facts := derive.Fold(steps, activities)
	views := make([]StepView, 0, len(steps))

	entered := enrolledAt
	jumpTo := ""
	for _, s := range steps {
		v := StepView{StepID: s.ID, Order: s.Order, Type: s.Type}
		if jumpTo != "" && s.ID != jumpTo {
			v.State, v.Reason = domain.StateSkipped, "Skipped: not on the taken branch"
			views = append(views, v)
			continue
		}
		jumpTo = ""

		r := derive.Evaluate(derive.Input{Facts: facts, Step: s, EnteredAt: entered, Now: now})
		v.State, v.Reason, v.ReadyAt = r.State, r.Reason, r.ReadyAt
		views = append(views, v)

		if r.State == domain.StateCompleted {
			if r.CompletedAt.After(entered) {
				entered = r.CompletedAt
			}
			if r.Branch == derive.BranchTarget {
				cfg, _ := s.ConditionConfig()
				jumpTo = cfg.BranchTargetStepID
			}
		}
	}
	return views
}
