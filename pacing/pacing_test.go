package pacing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/recoveryfinder/config"
)

func recording(c *Controller) *[]time.Duration {
	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return &slept
}

func TestAfterRowPausesEveryNthRow(t *testing.T) {
	c := New(config.PacingConfig{RowDelay: 1500 * time.Millisecond, PauseEvery: 10, PauseFor: 5 * time.Second})
	slept := recording(c)

	for i := 0; i < 20; i++ {
		require.NoError(t, c.AfterRow(context.Background(), i))
	}

	pauses := 0
	for _, d := range *slept {
		if d == 5*time.Second {
			pauses++
		}
	}
	assert.Equal(t, 2, pauses)
	assert.Len(t, *slept, 22)
	// the pause comes right after the 10th row, before its row delay
	assert.Equal(t, 5*time.Second, (*slept)[9])
	assert.Equal(t, 1500*time.Millisecond, (*slept)[10])
}

func TestAfterRowWithoutPause(t *testing.T) {
	c := New(config.PacingConfig{RowDelay: time.Second})
	slept := recording(c)
	for i := 0; i < 12; i++ {
		require.NoError(t, c.AfterRow(context.Background(), i))
	}
	assert.Len(t, *slept, 12)
}

func TestAfterRowCanceled(t *testing.T) {
	c := New(config.PacingConfig{RowDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.AfterRow(ctx, 0), context.Canceled)
}

func TestThrottle(t *testing.T) {
	unlimited := New(config.PacingConfig{})
	for i := 0; i < 100; i++ {
		require.NoError(t, unlimited.Throttle(context.Background()))
	}

	slow := New(config.PacingConfig{NavigationsPerSecond: 0.001, NavigationBurst: 1})
	require.NoError(t, slow.Throttle(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, slow.Throttle(ctx))
}
