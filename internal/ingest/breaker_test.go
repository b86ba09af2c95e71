// v0
// internal/ingest/breaker_test.go
package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBreakerTripsAndRecovers(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var states []State
	b := NewBreaker("test", BreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute}, discardLogger(), func(s State) {
		states = append(states, s)
	})
	b.now = func() time.Time { return now }

	boom := errors.New("broker down")
	fail := func(context.Context) error { return boom }
	ok := func(context.Context) error { return nil }
	ctx := context.Background()

	assert.ErrorIs(t, b.Execute(ctx, fail), boom)
	assert.Equal(t, Closed, b.State())
	assert.ErrorIs(t, b.Execute(ctx, fail), boom)
	assert.Equal(t, Open, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called, "open breaker must not run the operation")

	now = now.Add(time.Minute)
	assert.ErrorIs(t, b.Execute(ctx, fail), boom)
	assert.Equal(t, Open, b.State(), "a failed trial reopens immediately")

	now = now.Add(time.Minute)
	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, Closed, b.State())

	assert.Equal(t, []State{Open, HalfOpen, Open, HalfOpen, Closed}, states)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute}, discardLogger(), nil)
	ctx := context.Background()
	boom := errors.New("boom")

	_ = b.Execute(ctx, func(context.Context) error { return boom })
	require.NoError(t, b.Execute(ctx, func(context.Context) error { return nil }))
	_ = b.Execute(ctx, func(context.Context) error { return boom })
	assert.Equal(t, Closed, b.State())
}

func TestBreakerDefaults(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{}, nil, nil)
	assert.Equal(t, 5, b.cfg.MaxFailures)
	assert.Equal(t, 30*time.Second, b.cfg.ResetTimeout)
	assert.Equal(t, "half_open", HalfOpen.String())
}
