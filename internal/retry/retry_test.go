package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/analyst/internal/retry"
)

func fastConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 2

	calls := 0
	err := retry.Do(context.Background(), cfg, func() error {
		calls++
		return errors.New("i/o timeout")
	})

	assert.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	assert.Equal(t, 2, calls)
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	permanent := errors.New("constraint violation")

	calls := 0
	err := retry.Do(context.Background(), fastConfig(), func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.Do(ctx, fastConfig(), func() error {
		return errors.New("timeout")
	})

	assert.ErrorIs(t, err, retry.ErrContextCancelled)
}

func TestDefaultIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", errors.New("request timeout"), true},
		{"rate limit", errors.New("429 rate limit exceeded"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"validation", errors.New("invalid payload"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retry.DefaultIsRetryable(tt.err))
		})
	}
}
