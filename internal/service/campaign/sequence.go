package campaign

import (
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
)

// DefaultSequence builds the starter sequence for a set of platforms:
// LinkedIn gets visit, connect, a one-day delay and a follow-up message;
// every other platform gets a single send step, in the order given.
func DefaultSequence(platforms []domain.Platform) []domain.StepDefinition {
	steps := []domain.StepDefinition{{ID: "start", Type: domain.StepStart}}
	add := func(t domain.StepType, cfg map[string]any) {
		steps = append(steps, domain.StepDefinition{
			ID:     fmt.Sprintf("%s-%d", t, len(steps)),
			Type:   t,
			Config: cfg,
		})
	}

	for _, p := range platforms {
		switch p {
		case domain.PlatformLinkedIn:
			add(domain.StepProfileVisit, nil)
			add(domain.StepConnect, nil)
			add(domain.StepDelay, map[string]any{"days": 1})
			add(domain.StepMessage, nil)
		case domain.PlatformEmail:
			add(domain.StepSendEmail, nil)
		case domain.PlatformWhatsApp:
			add(domain.StepSendWhatsApp, nil)
		case domain.PlatformSMS:
			add(domain.StepSendSMS, nil)
		case domain.PlatformCall, domain.PlatformVoice:
			add(domain.StepSendVoice, nil)
		case domain.PlatformInstagram:
			add(domain.StepSendInstagram, nil)
		}
	}
	steps = append(steps, domain.StepDefinition{ID: "end", Type: domain.StepEnd})

	for i := range steps {
		steps[i].Order = i
	}
	return steps
}
