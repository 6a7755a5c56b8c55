package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = []time.Duration{time.Millisecond, time.Millisecond}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fast, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fast, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	})

	assert.EqualError(t, err, "down")
	assert.Equal(t, len(fast)+1, calls)
}

func TestRetry_Permanent(t *testing.T) {
	calls := 0
	sentinel := errors.New("not found")
	_, err := Retry(context.Background(), fast, func(ctx context.Context) (int, error) {
		calls++
		return 0, Permanent(sentinel)
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestRetry_NoDelays(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), nil, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("once")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_DelaySchedule(t *testing.T) {
	delays := []time.Duration{10 * time.Millisecond, 150 * time.Millisecond, 300 * time.Millisecond}

	var attempts []time.Time
	_, err := Retry(context.Background(), delays, func(ctx context.Context) (int, error) {
		attempts = append(attempts, time.Now())
		return 0, errors.New("down")
	})
	require.Error(t, err)
	require.Len(t, attempts, len(delays)+1)

	for i, want := range delays {
		gap := attempts[i+1].Sub(attempts[i])
		assert.GreaterOrEqual(t, gap, want, "wait before attempt %d", i+2)
	}
	assert.Less(t, attempts[1].Sub(attempts[0]), delays[1], "first retry must use the first delay")
}

func TestDelayAt(t *testing.T) {
	delays := []time.Duration{time.Second, 2 * time.Second}

	tests := []struct {
		n    uint
		want time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{5, 2 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, delayAt(delays, tt.n), "n=%d", tt.n)
	}
}
