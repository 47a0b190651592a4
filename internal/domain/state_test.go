package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amplimindcc/backend-sub000/internal/errdefs"
)

func TestTransition_ForwardChain(t *testing.T) {
	s := &Submission{State: StateInit}

	require.NoError(t, s.Transition(StateInImplementation))
	require.NoError(t, s.Transition(StateSubmitted))
	require.NoError(t, s.Transition(StateReviewed))
	assert.Equal(t, StateReviewed, s.State)
}

func TestTransition_RejectsIllegalMoves(t *testing.T) {
	tests := []struct {
		name string
		from SubmissionState
		to   SubmissionState
	}{
		{"submit before registration", StateInit, StateSubmitted},
		{"review before submit", StateInit, StateReviewed},
		{"review during implementation", StateInImplementation, StateReviewed},
		{"skip implementation", StateInit, StateReviewed},
		{"backwards", StateSubmitted, StateInImplementation},
		{"resubmit after review", StateReviewed, StateSubmitted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Submission{State: tt.from}
			err := s.Transition(tt.to)

			require.Error(t, err)
			assert.True(t, errors.Is(err, errdefs.ErrConflict))
			assert.Equal(t, tt.from, s.State, "state must be unchanged after a rejected transition")

			var illegal *IllegalTransitionError
			require.True(t, errors.As(err, &illegal))
			assert.Equal(t, tt.from, illegal.From)
			assert.Equal(t, tt.to, illegal.To)
		})
	}
}

func TestTransition_RepeatNamesCurrentState(t *testing.T) {
	s := &Submission{State: StateReviewed}

	err := s.Transition(StateReviewed)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already REVIEWED")
}

func TestTransition_ReservedReviewStateIsReachable(t *testing.T) {
	s := &Submission{State: StateSubmitted}

	require.NoError(t, s.Transition(StateInReview))
	require.NoError(t, s.Transition(StateReviewed))
}

func TestToSubmissionState(t *testing.T) {
	assert.Equal(t, StateInImplementation, ToSubmissionState("IN_IMPLEMENTATION"))
	assert.Equal(t, StateUnspecified, ToSubmissionState("bogus"))
	assert.False(t, StateUnspecified.IsValid())
	assert.True(t, StateSubmitted.IsValid())
}
