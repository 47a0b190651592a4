package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amplimindcc/backend-sub000/internal/errdefs"
)

const (
	DefaultLimit  = 5
	DefaultWindow = time.Minute
)

// Limiter bounds requests per caller identity inside a trailing window.
// Each call appends the current instant, lazily prunes entries older than
// the window and compares the remaining count against the threshold, so
// memory stays bounded by recent activity per identity.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(limit int, window time.Duration, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Admit(_ context.Context, identity string) error {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := append(l.prune(l.hits[identity], cutoff), now)
	l.hits[identity] = recent

	if len(recent) > l.limit {
		return fmt.Errorf("identity %q exceeded %d requests per %s: %w",
			identity, l.limit, l.window, errdefs.ErrTooManyRequests)
	}
	return nil
}

// Reset clears the counter for one identity, e.g. after a successful login
// that should stop counting against a failed-attempt budget.
func (l *Limiter) Reset(_ context.Context, identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hits, identity)
}

func (l *Limiter) prune(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// StartPruner drops identities that have gone quiet so the map does not
// accumulate one entry per caller forever.
func (l *Limiter) StartPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.pruneIdle()
		}
	}
}

func (l *Limiter) pruneIdle() {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for identity, hits := range l.hits {
		if kept := l.prune(hits, cutoff); len(kept) == 0 {
			delete(l.hits, identity)
		} else {
			l.hits[identity] = kept
		}
	}
}
