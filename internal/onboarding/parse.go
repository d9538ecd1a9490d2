package onboarding

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ignite/outreach-engine/internal/domain"
)

// ErrInvalidAnswer is wrapped by every rejected answer.
var ErrInvalidAnswer = errors.New("invalid answer")

// AnswerError explains why an answer was not accepted. The session stays on
// the same question.
type AnswerError struct {
	State   int    `json:"state"`
	Field   Field  `json:"field"`
	Message string `json:"message"`
}

func (e *AnswerError) Error() string {
	return fmt.Sprintf("%s for %s: %s", ErrInvalidAnswer, e.Field, e.Message)
}

func (e *AnswerError) Unwrap() error { return ErrInvalidAnswer }

const maxGoalLength = 500

var platformAliases = map[string]domain.Platform{
	"linkedin":  domain.PlatformLinkedIn,
	"li":        domain.PlatformLinkedIn,
	"email":     domain.PlatformEmail,
	"mail":      domain.PlatformEmail,
	"e-mail":    domain.PlatformEmail,
	"whatsapp":  domain.PlatformWhatsApp,
	"wa":        domain.PlatformWhatsApp,
	"call":      domain.PlatformCall,
	"phone":     domain.PlatformCall,
	"sms":       domain.PlatformSMS,
	"text":      domain.PlatformSMS,
	"instagram": domain.PlatformInstagram,
	"ig":        domain.PlatformInstagram,
	"voice":     domain.PlatformVoice,
}

var confirmKeywords = map[string]bool{
	"yes": true, "y": true, "confirm": true, "ok": true, "launch": true, "start": true,
}

// parseList splits a comma, semicolon or newline separated answer and drops
// blanks and case-insensitive duplicates.
func parseList(answer string) ([]string, error) {
	parts := strings.FieldsFunc(answer, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		key := strings.ToLower(p)
		if p == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, errors.New("enter at least one value, separated by commas")
	}
	return out, nil
}

// parsePlatforms accepts platform names or aliases separated by commas,
// spaces or "and".
func parsePlatforms(answer string) ([]domain.Platform, error) {
	words := strings.FieldsFunc(strings.ToLower(answer), func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '/'
	})
	seen := make(map[domain.Platform]bool)
	var out []domain.Platform
	var unknown []string
	for _, w := range words {
		if w == "and" || w == "&" {
			continue
		}
		p, ok := platformAliases[w]
		if !ok {
			unknown = append(unknown, w)
			continue
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown platform %s", strings.Join(unknown, ", "))
	}
	if len(out) == 0 {
		return nil, errors.New("name at least one platform")
	}
	return out, nil
}

func parseGoal(answer string) (string, error) {
	goal := strings.TrimSpace(answer)
	if goal == "" {
		return "", errors.New("describe the campaign goal")
	}
	if len(goal) > maxGoalLength {
		return "", fmt.Errorf("keep the goal under %d characters", maxGoalLength)
	}
	return goal, nil
}

// parseBoundedInt reads the leading integer of the answer ("50", "50 leads").
func parseBoundedInt(answer string, lo, hi int) (int, error) {
	fields := strings.Fields(answer)
	if len(fields) == 0 {
		return 0, errors.New("enter a number")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, errors.New("enter a whole number")
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("enter a number between %d and %d", lo, hi)
	}
	return n, nil
}

func parseConfirmation(answer string) error {
	if confirmKeywords[strings.ToLower(strings.TrimSpace(answer))] {
		return nil
	}
	return errors.New(`reply "yes" to launch, or edit a step`)
}
