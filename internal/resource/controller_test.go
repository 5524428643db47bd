package resource

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryBudgetBytes: 100})

	c.AcquireMemory(50)
	assert.Equal(t, int64(50), c.MemoryUsage())
	assert.False(t, c.Exceeds(50))
	assert.True(t, c.Exceeds(51))

	// The budget is soft: acquiring past it still succeeds.
	c.AcquireMemory(80)
	assert.Equal(t, int64(130), c.MemoryUsage())
	assert.True(t, c.Exceeds(0))

	c.ReleaseMemory(80)
	c.AdjustMemory(-10)
	assert.Equal(t, int64(40), c.MemoryUsage())

	c.AdjustMemory(5)
	assert.Equal(t, int64(45), c.MemoryUsage())
	assert.Equal(t, int64(100), c.MemoryBudget())
}

func TestController_Nil(t *testing.T) {
	var c *Controller

	c.AcquireMemory(10)
	c.ReleaseMemory(10)
	assert.Equal(t, int64(0), c.MemoryUsage())
	assert.False(t, c.Exceeds(1))
	assert.NoError(t, c.AcquireBackground(context.Background()))
	c.ReleaseBackground()
	assert.NoError(t, c.AcquireIO(context.Background(), 10))
}

func TestController_Concurrency(t *testing.T) {
	c := NewController(Config{MaxBackgroundWorkers: 2})

	require.NoError(t, c.AcquireBackground(t.Context()))
	require.NoError(t, c.AcquireBackground(t.Context()))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireBackground(ctx), context.DeadlineExceeded)

	c.ReleaseBackground()

	require.NoError(t, c.AcquireBackground(t.Context()))
}

func TestRateLimitedWriter(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	var buf bytes.Buffer
	w := NewRateLimitedWriter(context.Background(), &buf, c)

	payload := bytes.Repeat([]byte("x"), 4096)
	n, err := w.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, buf.Bytes())
}

func TestRateLimitedWriter_Canceled(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 16})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	w := NewRateLimitedWriter(ctx, &buf, c)

	_, err := w.Write(bytes.Repeat([]byte("x"), 64))
	assert.Error(t, err)
}
