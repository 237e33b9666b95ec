package steps

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/apperr"
)

func names(s Steps) []Name {
	out := make([]Name, len(s))
	for i, st := range s {
		out[i] = st.Name
	}
	return out
}

func TestCompute_Sequence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   Input
		want []Name
	}{
		{name: "default", in: Input{PaymentRequired: true}, want: []Name{Details, Profile, Payment}},
		{name: "with_tax", in: Input{PaymentRequired: true, TaxApplicable: true}, want: []Name{Details, Profile, Summary, Payment}},
		{name: "free", in: Input{PaymentRequired: false}, want: []Name{Details, Profile}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := names(Compute(tt.in)); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCompute_VisitedAndDisabled(t *testing.T) {
	t.Parallel()

	s := Compute(Input{
		DetailsComplete: true,
		PaymentRequired: true,
		LastVisited:     Profile,
	})

	if !s[0].Visited || !s[1].Visited || s[2].Visited {
		t.Fatalf("unexpected visited flags: %+v", s)
	}
	if s[0].Disabled || s[1].Disabled {
		t.Fatalf("visited steps must be enabled: %+v", s)
	}
	if !s[2].Disabled {
		t.Fatalf("payment must be disabled while profile is incomplete: %+v", s[2])
	}
}

func TestCompute_SubmittedDisablesAll(t *testing.T) {
	t.Parallel()

	s := Compute(Input{DetailsComplete: true, ProfileComplete: true, PaymentComplete: true, PaymentRequired: true, LastVisited: Payment, Submitted: true})
	for _, st := range s {
		if !st.Disabled {
			t.Fatalf("expected %s disabled after submission", st.Name)
		}
	}
	if err := s.CanGoTo(Details); !errors.Is(err, apperr.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestCanGoTo(t *testing.T) {
	t.Parallel()

	s := Compute(Input{DetailsComplete: true, ProfileComplete: true, PaymentRequired: true, LastVisited: Profile})
	before := make(Steps, len(s))
	copy(before, s)

	if err := s.CanGoTo(Details); err != nil {
		t.Fatalf("expected details reachable, got %v", err)
	}
	if err := s.CanGoTo(Profile); err != nil {
		t.Fatalf("expected profile reachable, got %v", err)
	}
	err := s.CanGoTo(Payment)
	if !errors.Is(err, apperr.ErrStepNotReachable) {
		t.Fatalf("expected ErrStepNotReachable, got %v", err)
	}
	for i := range s {
		if s[i].Name != before[i].Name || s[i].Visited != before[i].Visited || s[i].Completed != before[i].Completed || s[i].Disabled != before[i].Disabled {
			t.Fatalf("rejection mutated step %d: %+v -> %+v", i, before[i], s[i])
		}
	}
	if err := s.CanGoTo(Summary); !errors.Is(err, apperr.ErrStepNotReachable) {
		t.Fatalf("expected absent step to be unreachable, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        Input
		requested Name
		want      Name
	}{
		{
			name:      "skip_ahead_blocked",
			in:        Input{PaymentRequired: true},
			requested: Payment,
			want:      Details,
		},
		{
			name:      "all_prior_complete",
			in:        Input{DetailsComplete: true, ProfileComplete: true, PaymentRequired: true},
			requested: Payment,
			want:      Payment,
		},
		{
			name:      "visited_step_reachable",
			in:        Input{PaymentRequired: true, LastVisited: Payment},
			requested: Profile,
			want:      Profile,
		},
		{
			name:      "summary_dropped",
			in:        Input{DetailsComplete: true, ProfileComplete: true, PaymentRequired: true, LastVisited: Summary},
			requested: Summary,
			want:      Profile,
		},
		{
			name:      "unknown",
			in:        Input{PaymentRequired: true},
			requested: "nope",
			want:      Details,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Compute(tt.in).Resolve(tt.requested); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestAdvance(t *testing.T) {
	t.Parallel()

	errInvalid := apperr.Validation("profile", "email", "required")
	s := Compute(Input{
		PaymentRequired: true,
		Validators: map[Name]ValidateFunc{
			Details: func(context.Context) error { return nil },
			Profile: func(context.Context) error { return errInvalid },
		},
	})

	next, last, err := s.Advance(context.Background(), Details)
	if err != nil || last || next != Profile {
		t.Fatalf("expected profile, got %s last=%v err=%v", next, last, err)
	}

	next, _, err = s.Advance(context.Background(), Profile)
	if !errors.Is(err, errInvalid) || next != "" {
		t.Fatalf("expected validation error, got %s %v", next, err)
	}

	next, last, err = s.Advance(context.Background(), Payment)
	if err != nil || !last || next != Payment {
		t.Fatalf("expected last step, got %s last=%v err=%v", next, last, err)
	}
}

func TestNextPrevious(t *testing.T) {
	t.Parallel()

	s := Compute(Input{PaymentRequired: true, TaxApplicable: true})
	if n, ok := s.Next(Profile); !ok || n != Summary {
		t.Fatalf("expected summary, got %s", n)
	}
	if _, ok := s.Next(Payment); ok {
		t.Fatal("expected no step after payment")
	}
	if p, ok := s.Previous(Payment); !ok || p != Summary {
		t.Fatalf("expected summary, got %s", p)
	}
	if _, ok := s.Previous(Details); ok {
		t.Fatal("expected no step before details")
	}
}

func TestRankAndParse(t *testing.T) {
	t.Parallel()

	if Rank(Details) >= Rank(Profile) || Rank(Summary) >= Rank(Payment) {
		t.Fatal("ranks out of order")
	}
	if Rank("nope") != -1 {
		t.Fatal("expected -1 for unknown step")
	}
	if n, ok := Parse("summary"); !ok || n != Summary {
		t.Fatalf("expected summary, got %s %v", n, ok)
	}
	if _, ok := Parse("confirm"); ok {
		t.Fatal("expected unknown step to fail parsing")
	}
}
