package retry

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Policy describes how a fallible remote call is retried: how many attempts,
// how long to wait between them, and which errors are worth retrying at all.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Retryable   func(error) bool
}

// Do runs fn under the policy. A non-retryable error is returned immediately;
// once attempts are exhausted the error names the exhausted operation.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts <= 0 {
		return zero, fmt.Errorf("%s: maxAttempts must be > 0, got %d", op, p.MaxAttempts)
	}
	var lastErr error

	for i := 0; i < p.MaxAttempts; i++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return zero, fmt.Errorf("%s: %w", op, err)
		}

		if i < p.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(p.Delay):
			}
		}
	}
	return zero, fmt.Errorf("%s: exhausted %d attempts: %w", op, p.MaxAttempts, lastErr)
}

// DoVoid is Do for operations without a result value.
func DoVoid(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

var ErrCircuitOpen = fmt.Errorf("circuit breaker is open")

// CircuitBreaker trips open after a run of retryable failures and rejects
// calls until the reset timeout has elapsed.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            CircuitState
	failureCount     int
	failureThreshold int
	resetTimeout     time.Duration
	lastFailureTime  time.Time
	countable        func(error) bool
}

func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration, countable func(error) bool) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		countable:        countable,
	}
}

func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if time.Since(cb.lastFailureTime) > cb.resetTimeout {
			cb.state = StateHalfOpen
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && (cb.countable == nil || cb.countable(err)) {
		cb.failureCount++
		cb.lastFailureTime = time.Now()
		if cb.failureCount >= cb.failureThreshold {
			cb.state = StateOpen
		}
		return err
	}

	if err == nil {
		cb.failureCount = 0
		cb.state = StateClosed
	}

	return err
}
