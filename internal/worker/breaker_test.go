package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy/studybuddy-api/internal/queue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBreakerPassesThroughWhenClosed(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test"}, testLogger())
	ctx := context.Background()

	calls := 0
	err := b.Call(ctx, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	err = b.Call(ctx, func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom, "callee errors pass through unchanged")
	assert.Equal(t, 2, calls)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 5}, testLogger())
	ctx := context.Background()

	boom := errors.New("boom")
	calls := 0
	for i := 0; i < 5; i++ {
		err := b.Call(ctx, func(ctx context.Context) error {
			calls++
			return boom
		})
		require.ErrorIs(t, err, boom)
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	// The open breaker short-circuits without invoking the callee.
	err := b.Call(ctx, func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, queue.ErrExternalService)
	assert.Equal(t, 5, calls)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 3}, testLogger())
	ctx := context.Background()

	boom := errors.New("boom")
	fail := func(ctx context.Context) error { return boom }
	ok := func(ctx context.Context) error { return nil }

	require.Error(t, b.Call(ctx, fail))
	require.Error(t, b.Call(ctx, fail))
	require.NoError(t, b.Call(ctx, ok))
	require.Error(t, b.Call(ctx, fail))
	require.Error(t, b.Call(ctx, fail))

	assert.Equal(t, gobreaker.StateClosed, b.State(),
		"a success between failures resets the consecutive count")
}

func TestBreakerHalfOpensAfterResetWindow(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{
		Name:        "test",
		Threshold:   2,
		ResetWindow: 50 * time.Millisecond,
	}, testLogger())
	ctx := context.Background()

	boom := errors.New("boom")
	require.Error(t, b.Call(ctx, func(ctx context.Context) error { return boom }))
	require.Error(t, b.Call(ctx, func(ctx context.Context) error { return boom }))
	require.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(80 * time.Millisecond)

	// First probe after the cool-down reaches the callee; its success
	// closes the breaker.
	calls := 0
	err := b.Call(ctx, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
