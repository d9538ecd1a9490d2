// Package flow is the ordered step-machine shared by the campaign sequencer
// and the onboarding questionnaire: an id-indexed list of typed steps that
// can be walked forward with branches, plus a bounded cursor for
// conversational back/forward navigation.
package flow

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateStep = errors.New("duplicate step id")
	ErrUnknownTarget = errors.New("unknown branch target")
	ErrCycle         = errors.New("step revisited during walk")
)

// Sequence is an immutable ordered list of steps of type S.
type Sequence[S any] struct {
	steps []S
	index map[string]int
}

// New builds a sequence from steps already sorted in execution order. idOf
// extracts each step's unique id.
func New[S any](steps []S, idOf func(S) string) (*Sequence[S], error) {
	q := &Sequence[S]{
		steps: make([]S, len(steps)),
		index: make(map[string]int, len(steps)),
	}
	copy(q.steps, steps)
	for i, s := range q.steps {
		id := idOf(s)
		if _, dup := q.index[id]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStep, id)
		}
		q.index[id] = i
	}
	return q, nil
}

// Len returns the number of steps.
func (q *Sequence[S]) Len() int { return len(q.steps) }

// At returns the step at position i.
func (q *Sequence[S]) At(i int) S { return q.steps[i] }

// IndexOf returns the position of the step with the given id.
func (q *Sequence[S]) IndexOf(id string) (int, bool) {
	i, ok := q.index[id]
	return i, ok
}

type verdictKind int

const (
	verdictNext verdictKind = iota
	verdictHalt
	verdictGoto
)

// Verdict tells Walk what to do after visiting a step.
type Verdict struct {
	kind   verdictKind
	target string
}

// Next continues with the following step.
func Next() Verdict { return Verdict{kind: verdictNext} }

// Halt stops the walk at the current step.
func Halt() Verdict { return Verdict{kind: verdictHalt} }

// Goto continues with the step whose id is target.
func Goto(target string) Verdict { return Verdict{kind: verdictGoto, target: target} }

// Walk visits steps from position start until visit halts or the sequence
// runs out. It returns the position of the halting step, or Len() when the
// walk fell off the end. A step is never visited twice in one walk.
func (q *Sequence[S]) Walk(start int, visit func(i int, s S) Verdict) (int, error) {
	seen := make(map[int]bool, len(q.steps))
	i := start
	for i >= 0 && i < len(q.steps) {
		if seen[i] {
			return i, fmt.Errorf("%w: position %d", ErrCycle, i)
		}
		seen[i] = true

		v := visit(i, q.steps[i])
		switch v.kind {
		case verdictHalt:
			return i, nil
		case verdictGoto:
			next, ok := q.index[v.target]
			if !ok {
				return i, fmt.Errorf("%w: %q", ErrUnknownTarget, v.target)
			}
			i = next
		default:
			i++
		}
	}
	return len(q.steps), nil
}
