package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platescan/internal/retry"
)

type recorder struct {
	delays []time.Duration
	events []retry.Event
}

func (r *recorder) policy(max int) retry.Policy {
	return retry.Policy{
		MaxAttempts: max,
		Backoff:     retry.Linear(time.Second),
		Sleep:       retry.Sleeper(func(d time.Duration) { r.delays = append(r.delays, d) }),
		OnEvent:     func(ev retry.Event) { r.events = append(r.events, ev) },
	}
}

func (r *recorder) states() []retry.State {
	out := make([]retry.State, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.State)
	}
	return out
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	rec := &recorder{}
	calls := 0
	got, err := retry.Do(context.Background(), rec.policy(3), func(context.Context, int) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
	assert.Equal(t, []retry.State{
		retry.StateAttempting, retry.StateBackingOff,
		retry.StateAttempting, retry.StateBackingOff,
		retry.StateAttempting, retry.StateSucceeded,
	}, rec.states())
}

func TestDoShortCircuitsOnSuccess(t *testing.T) {
	rec := &recorder{}
	calls := 0
	_, err := retry.Do(context.Background(), rec.policy(3), func(context.Context, int) (int, error) {
		calls++
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestDoExhaustsWithoutTrailingBackoff(t *testing.T) {
	rec := &recorder{}
	calls := 0
	boom := errors.New("boom")
	_, err := retry.Do(context.Background(), rec.policy(3), func(context.Context, int) (int, error) {
		calls++
		return 0, boom
	})
	require.Error(t, err)
	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
	assert.Equal(t, retry.StateExhausted, rec.events[len(rec.events)-1].State)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	rec := &recorder{}
	policy := rec.policy(3)
	fatal := errors.New("fatal")
	policy.Retryable = func(err error) bool { return !errors.Is(err, fatal) }
	calls := 0
	_, err := retry.Do(context.Background(), policy, func(context.Context, int) (int, error) {
		calls++
		return 0, fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestDoHonoursCancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := retry.Policy{
		MaxAttempts: 3,
		Backoff:     retry.Linear(time.Second),
		Sleep:       retry.Sleeper(func(time.Duration) { cancel() }),
	}
	calls := 0
	_, err := retry.Do(ctx, policy, func(context.Context, int) (int, error) {
		calls++
		return 0, errors.New("flaky")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestLinear(t *testing.T) {
	backoff := retry.Linear(time.Second)
	assert.Equal(t, time.Duration(0), backoff(0))
	assert.Equal(t, time.Second, backoff(1))
	assert.Equal(t, 2*time.Second, backoff(2))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "backing_off", retry.StateBackingOff.String())
	assert.Equal(t, "state(9)", retry.State(9).String())
}
