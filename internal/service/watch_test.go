package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatcher_PollsUntilStopped(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := NewWatcher(context.Background(), clock, zap.NewNop())

	var calls atomic.Int32
	w.Every("notifications", 30*time.Second, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	w.Stop()
	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWatcher_ZeroIntervalIsDisabled(t *testing.T) {
	w := NewWatcher(context.Background(), clockwork.NewFakeClock(), zap.NewNop())
	w.Every("off", 0, func(context.Context) error {
		t.Fatal("disabled loop ran")
		return nil
	})
	w.Stop()
}
