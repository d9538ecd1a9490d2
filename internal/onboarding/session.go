// Package onboarding drives the campaign-setup questionnaire: seven fixed
// questions answered in order, with back navigation, direct edits and
// optional questions that can be skipped. It shares the flow package's
// step-machine with the campaign sequencer but moves over conversation
// state instead of lead state.
package onboarding

import (
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/flow"
)

// Field names one collected answer.
type Field string

const (
	FieldIndustries   Field = "industries"
	FieldLocations    Field = "locations"
	FieldRoles        Field = "roles"
	FieldPlatforms    Field = "platforms"
	FieldGoal         Field = "goal"
	FieldLeadsPerDay  Field = "leads_per_day"
	FieldCampaignDays Field = "campaign_days"
	FieldConfirmed    Field = "confirmed"
)

const (
	FirstState = 1
	LastState  = 7
	// SettingsState asks leads per day (sub-step 0) then campaign days
	// (sub-step 1).
	SettingsState = 6
)

// Bounds limits the numeric answers.
type Bounds struct {
	MaxLeadsPerDay  int `yaml:"max_leads_per_day"`
	MaxCampaignDays int `yaml:"max_campaign_days"`
}

// DefaultBounds are used when no bounds are configured.
var DefaultBounds = Bounds{MaxLeadsPerDay: 500, MaxCampaignDays: 365}

// Question is one state of the questionnaire.
type Question struct {
	ID        string   `json:"id"`
	State     int      `json:"state"`
	AllowSkip bool     `json:"allow_skip"`
	Fields    []Field  `json:"fields"`
	Prompts   []string `json:"prompts"`
}

var questions = mustQuestions([]Question{
	{ID: "industries", State: 1, Fields: []Field{FieldIndustries},
		Prompts: []string{"Which industries do your ideal customers work in?"}},
	{ID: "locations", State: 2, Fields: []Field{FieldLocations},
		Prompts: []string{"Which locations should we target?"}},
	{ID: "roles", State: 3, AllowSkip: true, Fields: []Field{FieldRoles},
		Prompts: []string{"Which decision-maker roles should we reach?"}},
	{ID: "platforms", State: 4, AllowSkip: true, Fields: []Field{FieldPlatforms},
		Prompts: []string{"Which platforms should the campaign use?"}},
	{ID: "goal", State: 5, Fields: []Field{FieldGoal},
		Prompts: []string{"What is the goal of this campaign?"}},
	{ID: "settings", State: 6, Fields: []Field{FieldLeadsPerDay, FieldCampaignDays},
		Prompts: []string{"How many leads per day?", "How many days should the campaign run?"}},
	{ID: "confirm", State: 7, Fields: []Field{FieldConfirmed},
		Prompts: []string{"Ready to launch?"}},
})

func mustQuestions(qs []Question) *flow.Sequence[Question] {
	seq, err := flow.New(qs, func(q Question) string { return q.ID })
	if err != nil {
		panic(err)
	}
	return seq
}

// Answers is the accumulated answer set.
type Answers struct {
	Industries   []string          `json:"industries"`
	Locations    []string          `json:"locations"`
	Roles        []string          `json:"roles"`
	Platforms    []domain.Platform `json:"platforms"`
	Goal         string            `json:"goal"`
	LeadsPerDay  int               `json:"leads_per_day"`
	CampaignDays int               `json:"campaign_days"`
	Confirmed    bool              `json:"confirmed"`
}

// Session is one onboarding conversation.
type Session struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	State          int     `json:"state"`
	SubStep        int     `json:"sub_step"`
	Answers        Answers `json:"answers"`
	// Answered marks fields that were answered or explicitly skipped, so a
	// skipped field is distinguishable from one never asked.
	Answered  map[Field]bool `json:"answered"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	// Version counts saves. A save must name the version it was read at.
	Version int64 `json:"version"`
}

// NewSession starts a session at the first question.
func NewSession(id, orgID string, now time.Time) *Session {
	return &Session{
		ID:             id,
		OrganizationID: orgID,
		State:          FirstState,
		Answered:       make(map[Field]bool),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *Session) mark(f Field) {
	if s.Answered == nil {
		s.Answered = make(map[Field]bool)
	}
	s.Answered[f] = true
}

func (s *Session) cursor() flow.Cursor {
	return flow.Restore(FirstState, LastState, s.State, s.SubStep)
}

func (s *Session) store(c flow.Cursor, now time.Time) {
	s.State, s.SubStep = c.Pos, c.Sub
	s.UpdatedAt = now
}

// Complete reports whether every question has been answered.
func (s *Session) Complete() bool {
	return s.cursor().Done()
}

// Question returns the current question. ok is false once complete.
func (s *Session) Question() (Question, bool) {
	if s.Complete() {
		return Question{}, false
	}
	return questions.At(s.State - FirstState), true
}

// Prompt returns the text of the current question or sub-question.
func (s *Session) Prompt() string {
	q, ok := s.Question()
	if !ok {
		return ""
	}
	if s.SubStep < len(q.Prompts) {
		return q.Prompts[s.SubStep]
	}
	return q.Prompts[len(q.Prompts)-1]
}

// Advance parses answer for the current question, stores it and moves on.
// An invalid answer returns an *AnswerError and leaves the session where it
// was.
func (s *Session) Advance(answer string, b Bounds, now time.Time) error {
	c := s.cursor()
	if c.Done() {
		return ErrSessionComplete
	}
	fail := func(f Field, err error) error {
		return &AnswerError{State: s.State, Field: f, Message: err.Error()}
	}

	switch s.State {
	case 1:
		v, err := parseList(answer)
		if err != nil {
			return fail(FieldIndustries, err)
		}
		s.Answers.Industries = v
		s.mark(FieldIndustries)
	case 2:
		v, err := parseList(answer)
		if err != nil {
			return fail(FieldLocations, err)
		}
		s.Answers.Locations = v
		s.mark(FieldLocations)
	case 3:
		v, err := parseList(answer)
		if err != nil {
			return fail(FieldRoles, err)
		}
		s.Answers.Roles = v
		s.mark(FieldRoles)
	case 4:
		v, err := parsePlatforms(answer)
		if err != nil {
			return fail(FieldPlatforms, err)
		}
		s.Answers.Platforms = v
		s.mark(FieldPlatforms)
	case 5:
		v, err := parseGoal(answer)
		if err != nil {
			return fail(FieldGoal, err)
		}
		s.Answers.Goal = v
		s.mark(FieldGoal)
	case SettingsState:
		if s.SubStep == 0 {
			v, err := parseBoundedInt(answer, 1, b.MaxLeadsPerDay)
			if err != nil {
				return fail(FieldLeadsPerDay, err)
			}
			s.Answers.LeadsPerDay = v
			s.mark(FieldLeadsPerDay)
			c.ForwardSub()
			s.store(c, now)
			return nil
		}
		v, err := parseBoundedInt(answer, 1, b.MaxCampaignDays)
		if err != nil {
			return fail(FieldCampaignDays, err)
		}
		s.Answers.CampaignDays = v
		s.mark(FieldCampaignDays)
	case LastState:
		if err := parseConfirmation(answer); err != nil {
			return fail(FieldConfirmed, err)
		}
		s.Answers.Confirmed = true
		s.mark(FieldConfirmed)
	}

	c.Forward()
	s.store(c, now)
	return nil
}

// Back returns to the previous question. Leaving the settings question
// resets its sub-step.
func (s *Session) Back(now time.Time) error {
	c := s.cursor()
	if !c.Back() {
		return ErrAtFirstState
	}
	s.store(c, now)
	return nil
}

// EditStep jumps to question n without discarding other answers.
func (s *Session) EditStep(n int, now time.Time) error {
	c := s.cursor()
	if !c.Jump(n) {
		return fmt.Errorf("%w: %d", ErrInvalidState, n)
	}
	s.store(c, now)
	return nil
}

// Skip records the current optional field as explicitly empty and advances.
func (s *Session) Skip(now time.Time) error {
	q, ok := s.Question()
	if !ok {
		return ErrSessionComplete
	}
	if !q.AllowSkip {
		return fmt.Errorf("%w: %s", ErrSkipNotAllowed, q.ID)
	}
	switch s.State {
	case 3:
		s.Answers.Roles = []string{}
		s.mark(FieldRoles)
	case 4:
		s.Answers.Platforms = []domain.Platform{}
		s.mark(FieldPlatforms)
	}
	c := s.cursor()
	c.Forward()
	s.store(c, now)
	return nil
}
