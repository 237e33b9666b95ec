// Package steps derives the checkout wizard's step sequence from wizard state
// and enforces the navigation rules: advance only through validation, revisit
// but never skip ahead.
//
// Steps are a derived view. Compute rebuilds them from scratch on every state
// change; nothing here is mutated in place.
package steps

import (
	"context"
	"fmt"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/apperr"
)

// Name identifies a step.
type Name string

const (
	Details Name = "details"
	Profile Name = "profile"
	Summary Name = "summary"
	Payment Name = "payment"
)

// rank is the canonical position of each step. Visited-ness is tracked by
// rank so that inserting or dropping Summary does not shift it.
var rank = map[Name]int{
	Details: 0,
	Profile: 1,
	Summary: 2,
	Payment: 3,
}

var labels = map[Name]string{
	Details: "Contribution",
	Profile: "Profile",
	Summary: "Summary",
	Payment: "Payment",
}

// Rank returns the canonical position of n, or -1 for an unknown step.
func Rank(n Name) int {
	r, ok := rank[n]
	if !ok {
		return -1
	}
	return r
}

// Parse returns the step named s.
func Parse(s string) (Name, bool) {
	n := Name(s)
	_, ok := rank[n]
	return n, ok
}

// ValidateFunc checks a step before leaving it. It may block, e.g. to create
// a guest profile server-side.
type ValidateFunc func(ctx context.Context) error

// Step is one entry of the sequence.
type Step struct {
	Name      Name         `json:"name"`
	Label     string       `json:"label"`
	Completed bool         `json:"isCompleted"`
	Visited   bool         `json:"isVisited"`
	Disabled  bool         `json:"disabled"`
	Validate  ValidateFunc `json:"-"`
}

// Input is the wizard state the sequence is derived from.
type Input struct {
	DetailsComplete bool
	ProfileComplete bool
	SummaryComplete bool
	PaymentComplete bool
	// TaxApplicable inserts the Summary step.
	TaxApplicable bool
	// PaymentRequired is false for free contributions, which skip Payment.
	PaymentRequired bool
	LastVisited     Name
	Submitted       bool
	Validators      map[Name]ValidateFunc
}

// Steps is an ordered step sequence.
type Steps []Step

// Compute derives the sequence for in.
func Compute(in Input) Steps {
	names := []Name{Details, Profile}
	if in.TaxApplicable {
		names = append(names, Summary)
	}
	if in.PaymentRequired {
		names = append(names, Payment)
	}

	completed := map[Name]bool{
		Details: in.DetailsComplete,
		Profile: in.ProfileComplete,
		Summary: in.SummaryComplete,
		Payment: in.PaymentComplete,
	}
	lastRank := rank[in.LastVisited]

	out := make(Steps, 0, len(names))
	priorComplete := true
	for _, n := range names {
		visited := rank[n] <= lastRank
		s := Step{
			Name:      n,
			Label:     labels[n],
			Completed: completed[n],
			Visited:   visited,
			Disabled:  in.Submitted || !(visited || priorComplete),
			Validate:  in.Validators[n],
		}
		out = append(out, s)
		priorComplete = priorComplete && s.Completed
	}
	return out
}

// Index returns the position of name, or -1.
func (s Steps) Index(name Name) int {
	for i, st := range s {
		if st.Name == name {
			return i
		}
	}
	return -1
}

// LastVisitedIndex returns the index of the furthest visited step.
func (s Steps) LastVisitedIndex() int {
	last := 0
	for i, st := range s {
		if st.Visited {
			last = i
		}
	}
	return last
}

// FirstIncomplete returns the first step that is not completed, or the last
// step when all are.
func (s Steps) FirstIncomplete() Name {
	for _, st := range s {
		if !st.Completed {
			return st.Name
		}
	}
	return s[len(s)-1].Name
}

// Resolve maps the step requested by route state to the step that may
// actually be active. A step is reachable when it was visited or every step
// before it is completed; otherwise the first incomplete step wins.
func (s Steps) Resolve(requested Name) Name {
	i := s.Index(requested)
	if i < 0 {
		if st, ok := s.nearestBefore(requested); ok {
			return s.Resolve(st)
		}
		return s[0].Name
	}
	if s[i].Visited {
		return requested
	}
	for _, prev := range s[:i] {
		if !prev.Completed {
			return s.FirstIncomplete()
		}
	}
	return requested
}

// nearestBefore returns the last present step ranked before name, used when
// name has dropped out of the sequence (e.g. Summary after tax vanished).
func (s Steps) nearestBefore(name Name) (Name, bool) {
	r, ok := rank[name]
	if !ok {
		return "", false
	}
	var best Name
	found := false
	for _, st := range s {
		if rank[st.Name] < r {
			best, found = st.Name, true
		}
	}
	return best, found
}

// CanGoTo permits explicit navigation only to steps at or before the last
// visited one. It never changes the sequence.
func (s Steps) CanGoTo(target Name) error {
	i := s.Index(target)
	if i < 0 {
		return fmt.Errorf("goto %s: unknown step: %w", target, apperr.ErrStepNotReachable)
	}
	if s.allDisabled() {
		return apperr.ErrAlreadySubmitted
	}
	if i > s.LastVisitedIndex() {
		return fmt.Errorf("goto %s: %w", target, apperr.ErrStepNotReachable)
	}
	return nil
}

func (s Steps) allDisabled() bool {
	for _, st := range s {
		if !st.Disabled {
			return false
		}
	}
	return true
}

// Next returns the step after current. ok is false on the last step.
func (s Steps) Next(current Name) (Name, bool) {
	i := s.Index(current)
	if i < 0 || i+1 >= len(s) {
		return "", false
	}
	return s[i+1].Name, true
}

// Previous returns the step before current. ok is false on the first step.
func (s Steps) Previous(current Name) (Name, bool) {
	i := s.Index(current)
	if i <= 0 {
		return "", false
	}
	return s[i-1].Name, true
}

// Advance validates current and returns the step to move to. A failed
// validation returns its error and no step. On the last step a successful
// validation returns current itself with last set.
func (s Steps) Advance(ctx context.Context, current Name) (next Name, last bool, err error) {
	i := s.Index(current)
	if i < 0 {
		return "", false, fmt.Errorf("advance from %s: %w", current, apperr.ErrStepNotReachable)
	}
	if v := s[i].Validate; v != nil {
		if err := v(ctx); err != nil {
			return "", false, err
		}
	}
	n, ok := s.Next(current)
	if !ok {
		return current, true, nil
	}
	return n, false, nil
}
