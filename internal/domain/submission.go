package domain

import (
	"time"

	"github.com/google/uuid"
)

// Submission tracks one candidate's coding challenge from invitation to
// review. There is exactly one submission per user, keyed by email.
type Submission struct {
	UserEmail      string
	ProjectID      uuid.UUID
	State          SubmissionState
	ExpirationTime time.Time
	TurnInTime     *time.Time
	Late           bool
	Version        int64
	CreatedAt      time.Time
	EditedAt       time.Time
}

// Transition moves the submission to the target state if the move is legal,
// otherwise it returns an IllegalTransitionError naming the current state.
// All state changes must go through here; no caller mutates State directly.
func (s *Submission) Transition(to SubmissionState) error {
	if !s.State.canTransitionTo(to) {
		return &IllegalTransitionError{From: s.State, To: to}
	}
	s.State = to
	return nil
}
