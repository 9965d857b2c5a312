package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)

	require.NoError(t, f.Sleep(context.Background(), 4*time.Second))
	assert.Equal(t, start.Add(4*time.Second), f.Now())

	f.Advance(time.Minute)
	assert.Equal(t, start.Add(time.Minute+4*time.Second), f.Now())

	t.Run("cancelled context does not advance", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		before := f.Now()
		assert.ErrorIs(t, f.Sleep(ctx, time.Second), context.Canceled)
		assert.Equal(t, before, f.Now())
	})
}

func TestRealSleep(t *testing.T) {
	c := Real()

	t.Run("returns after duration", func(t *testing.T) {
		start := time.Now()
		require.NoError(t, c.Sleep(context.Background(), 10*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()
		err := c.Sleep(ctx, time.Minute)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
