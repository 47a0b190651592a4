package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amplimindcc/backend-sub000/internal/errdefs"
)

func TestAdmit_RejectsOverThreshold(t *testing.T) {
	now := time.Now()
	l := New(5, time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Admit(ctx, "user@example.com"), "call %d should be admitted", i+1)
	}

	err := l.Admit(ctx, "user@example.com")
	assert.True(t, errors.Is(err, errdefs.ErrTooManyRequests))
}

func TestAdmit_IdentitiesAreIndependent(t *testing.T) {
	now := time.Now()
	l := New(1, time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, l.Admit(ctx, "a@example.com"))
	require.NoError(t, l.Admit(ctx, "b@example.com"))

	assert.Error(t, l.Admit(ctx, "a@example.com"))
}

func TestAdmit_WindowSlides(t *testing.T) {
	now := time.Now()
	l := New(2, time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, l.Admit(ctx, "user@example.com"))
	require.NoError(t, l.Admit(ctx, "user@example.com"))
	require.Error(t, l.Admit(ctx, "user@example.com"))

	now = now.Add(2 * time.Minute)

	assert.NoError(t, l.Admit(ctx, "user@example.com"))
}

func TestReset_ClearsOneIdentity(t *testing.T) {
	now := time.Now()
	l := New(1, time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, l.Admit(ctx, "user@example.com"))
	require.Error(t, l.Admit(ctx, "user@example.com"))

	l.Reset(ctx, "user@example.com")

	assert.NoError(t, l.Admit(ctx, "user@example.com"))
}

func TestPruneIdle_DropsQuietIdentities(t *testing.T) {
	now := time.Now()
	l := New(5, time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, l.Admit(ctx, "user@example.com"))

	now = now.Add(2 * time.Minute)
	l.pruneIdle()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.hits)
}
