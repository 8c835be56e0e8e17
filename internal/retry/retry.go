package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// State identifies a step of the retry state machine.
type State int

const (
	StateAttempting State = iota
	StateBackingOff
	StateSucceeded
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateBackingOff:
		return "backing_off"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event describes one transition. Err is set on BackingOff and Exhausted.
type Event struct {
	State   State
	Attempt int
	Delay   time.Duration
	Err     error
}

// Policy configures Do.
type Policy struct {
	MaxAttempts int
	// Backoff returns the wait after the given failed attempt (1-based).
	Backoff func(attempt int) time.Duration
	// Sleep waits for d or until ctx is done. Defaults to SleepContext.
	Sleep func(ctx context.Context, d time.Duration) error
	// Retryable reports whether a failed attempt may be retried. Nil retries
	// every error.
	Retryable func(err error) bool
	OnEvent   func(Event)
}

// ExhaustedError is returned once every attempt in the budget has failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Linear returns a backoff of attempt*step (1s, 2s, ... for step=1s).
func Linear(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt <= 0 || step <= 0 {
			return 0
		}
		return time.Duration(attempt) * step
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, the budget is
// spent, or ctx is done. Backoff never follows the final attempt.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	if ctx == nil {
		return zero, errors.New("retry: nil context")
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		p.emit(Event{State: StateAttempting, Attempt: attempt})
		value, err := fn(ctx, attempt)
		if err == nil {
			p.emit(Event{State: StateSucceeded, Attempt: attempt})
			return value, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			p.emit(Event{State: StateExhausted, Attempt: attempt, Err: err})
			return zero, &ExhaustedError{Attempts: attempt, Err: err}
		}
		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		p.emit(Event{State: StateBackingOff, Attempt: attempt, Delay: delay, Err: err})
		if serr := sleep(ctx, delay); serr != nil {
			return zero, serr
		}
	}
	return zero, errors.New("retry: unreachable")
}

func (p Policy) emit(ev Event) {
	if p.OnEvent != nil {
		p.OnEvent(ev)
	}
}

// SleepContext waits for d unless ctx finishes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Sleeper adapts a plain func(time.Duration), typically a test recorder, into
// a Policy.Sleep that still honours cancellation.
func Sleeper(sleeper func(time.Duration)) func(context.Context, time.Duration) error {
	if sleeper == nil {
		return SleepContext
	}
	return func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return ctx.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		sleeper(d)
		return ctx.Err()
	}
}
