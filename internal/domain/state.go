package domain

import (
	"fmt"

	"github.com/amplimindcc/backend-sub000/internal/errdefs"
)

type SubmissionState string

const (
	StateUnspecified      SubmissionState = "UNSPECIFIED"
	StateInit             SubmissionState = "INIT"
	StateInImplementation SubmissionState = "IN_IMPLEMENTATION"
	StateSubmitted        SubmissionState = "SUBMITTED"
	// StateInReview is reserved for a future manual review step. It sits
	// between SUBMITTED and REVIEWED in the transition table but no
	// operation currently enters or leaves it.
	StateInReview SubmissionState = "IN_REVIEW"
	StateReviewed SubmissionState = "REVIEWED"
)

// transitions is the single source of truth for legal state changes.
var transitions = map[SubmissionState][]SubmissionState{
	StateInit:             {StateInImplementation},
	StateInImplementation: {StateSubmitted},
	StateSubmitted:        {StateInReview, StateReviewed},
	StateInReview:         {StateReviewed},
	StateReviewed:         {},
}

func (s SubmissionState) canTransitionTo(to SubmissionState) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s SubmissionState) IsValid() bool {
	switch s {
	case StateInit, StateInImplementation, StateSubmitted, StateInReview, StateReviewed:
		return true
	default:
		return false
	}
}

func ToSubmissionState(s string) SubmissionState {
	switch s {
	case "INIT":
		return StateInit
	case "IN_IMPLEMENTATION":
		return StateInImplementation
	case "SUBMITTED":
		return StateSubmitted
	case "IN_REVIEW":
		return StateInReview
	case "REVIEWED":
		return StateReviewed
	default:
		return StateUnspecified
	}
}

// IllegalTransitionError reports a rejected state change. It distinguishes
// "already there" from "not ready yet" in its message so callers can surface
// a meaningful conflict to the client.
type IllegalTransitionError struct {
	From SubmissionState
	To   SubmissionState
}

func (e *IllegalTransitionError) Error() string {
	if e.From == e.To {
		return fmt.Sprintf("submission is already %s", e.From)
	}
	return fmt.Sprintf("cannot move submission from %s to %s", e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error {
	return errdefs.ErrConflict
}
