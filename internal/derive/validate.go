package derive

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/osteele/liquid"

	"github.com/ignite/outreach-engine/internal/domain"
)

// ErrInvalidSequence is wrapped by every sequence validation failure.
var ErrInvalidSequence = errors.New("invalid sequence definition")

// Problem is one configuration inconsistency in a sequence.
type Problem struct {
	StepID string `json:"step_id,omitempty"`
	Detail string `json:"detail"`
}

// ValidationError lists every problem found in a sequence definition.
type ValidationError struct {
	Problems []Problem `json:"problems"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		if p.StepID != "" {
			parts = append(parts, fmt.Sprintf("step %s: %s", p.StepID, p.Detail))
		} else {
			parts = append(parts, p.Detail)
		}
	}
	return fmt.Sprintf("%s: %s", ErrInvalidSequence, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidSequence }

var (
	validate     = validator.New(validator.WithRequiredStructEnabled())
	liquidEngine = liquid.NewEngine()
)

// Validate checks a sequence definition before anything is planned against
// it. It returns the steps sorted by order, or a *ValidationError.
func Validate(steps []domain.StepDefinition) ([]domain.StepDefinition, error) {
	sorted := make([]domain.StepDefinition, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	var problems []Problem
	add := func(stepID, format string, args ...any) {
		problems = append(problems, Problem{StepID: stepID, Detail: fmt.Sprintf(format, args...)})
	}

	if len(sorted) < 2 {
		return nil, &ValidationError{Problems: []Problem{{Detail: "sequence needs a start and an end step"}}}
	}

	ids := make(map[string]int, len(sorted))
	orders := make(map[int]string, len(sorted))
	starts, ends := 0, 0
	connectSeen := false

	for i, s := range sorted {
		if s.ID == "" {
			add("", "step at order %d has no id", s.Order)
		} else if _, dup := ids[s.ID]; dup {
			add(s.ID, "duplicate step id")
		}
		ids[s.ID] = s.Order
		if other, dup := orders[s.Order]; dup {
			add(s.ID, "order %d already used by step %s", s.Order, other)
		}
		orders[s.Order] = s.ID

		if !s.Type.Known() {
			add(s.ID, "unknown step type %q", s.Type)
			continue
		}

		switch s.Type {
		case domain.StepStart:
			starts++
			if i != 0 {
				add(s.ID, "start must be the first step")
			}
		case domain.StepEnd:
			ends++
			if i != len(sorted)-1 {
				add(s.ID, "end must be the last step")
			}
		case domain.StepConnect:
			connectSeen = true
			checkTemplate(s, add)
		case domain.StepMessage:
			if !connectSeen {
				add(s.ID, "message step has no preceding connect step")
			}
			checkTemplate(s, add)
		case domain.StepDelay:
			cfg, err := s.DelayConfig()
			if err != nil {
				add(s.ID, "delay config: %v", err)
			} else if err := validate.Struct(cfg); err != nil {
				add(s.ID, "delay config: %v", err)
			} else if cfg.Duration() <= 0 {
				add(s.ID, "delay must be longer than zero")
			}
		}
	}

	if starts != 1 {
		add("", "sequence needs exactly one start step, found %d", starts)
	}
	if ends != 1 {
		add("", "sequence needs exactly one end step, found %d", ends)
	}

	// Branch targets can only be checked once every id is known.
	for _, s := range sorted {
		if s.Type != domain.StepCondition {
			continue
		}
		cfg, err := s.ConditionConfig()
		if err != nil {
			add(s.ID, "condition config: %v", err)
			continue
		}
		if err := validate.Struct(cfg); err != nil {
			add(s.ID, "condition config: %v", err)
			continue
		}
		if !producedBefore(sorted, s.Order, cfg.ConditionType) {
			add(s.ID, "condition %s has no earlier step that can satisfy it", cfg.ConditionType)
		}
		targetOrder, ok := ids[cfg.BranchTargetStepID]
		if !ok {
			add(s.ID, "branch target %q does not exist", cfg.BranchTargetStepID)
		} else if targetOrder <= s.Order {
			add(s.ID, "branch target %q must come after the condition", cfg.BranchTargetStepID)
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return sorted, nil
}

// producedBefore reports whether a step ordered before the condition records
// the fact the condition reads. Without one the condition could never move.
func producedBefore(sorted []domain.StepDefinition, order int, ct domain.ConditionType) bool {
	for _, s := range sorted {
		if s.Order >= order {
			break
		}
		switch ct {
		case domain.ConditionConnectionAccepted:
			if s.Type == domain.StepConnect {
				return true
			}
		case domain.ConditionProfileVisited:
			if s.Type == domain.StepProfileVisit {
				return true
			}
		case domain.ConditionContacted, domain.ConditionLeadReplied:
			if contactStep(s.Type) {
				return true
			}
		}
	}
	return false
}

func contactStep(t domain.StepType) bool {
	switch t {
	case domain.StepMessage, domain.StepSendEmail, domain.StepSendWhatsApp,
		domain.StepSendSMS, domain.StepSendVoice, domain.StepSendInstagram:
		return true
	}
	return false
}

func checkTemplate(s domain.StepDefinition, add func(string, string, ...any)) {
	tmpl := s.Template()
	if tmpl == "" {
		return
	}
	if _, err := liquidEngine.ParseString(tmpl); err != nil {
		add(s.ID, "template does not parse: %v", err)
	}
}
