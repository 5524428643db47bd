package resource

import (
	"context"
	"io"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config bounds the resources a database may consume.
type Config struct {
	// MemoryBudgetBytes caps resident item bytes. Zero means every positive
	// request exceeds the budget.
	MemoryBudgetBytes int64

	// MaxBackgroundWorkers caps concurrent page replays. Defaults to 1.
	MaxBackgroundWorkers int64

	// IOLimitBytesPerSec throttles writers built with NewRateLimitedWriter.
	// Zero disables throttling.
	IOLimitBytesPerSec int64
}

// Controller tracks resident memory against a soft budget and hands out
// worker slots and IO tokens. A nil *Controller imposes no limits.
type Controller struct {
	budget  int64
	used    atomic.Int64
	workers *semaphore.Weighted
	limiter *rate.Limiter
}

// NewController returns a Controller enforcing cfg.
func NewController(cfg Config) *Controller {
	workers := cfg.MaxBackgroundWorkers
	if workers <= 0 {
		workers = 1
	}

	c := &Controller{
		budget:  cfg.MemoryBudgetBytes,
		workers: semaphore.NewWeighted(workers),
	}
	if bps := cfg.IOLimitBytesPerSec; bps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(bps), int(bps))
	}
	return c
}

// AcquireMemory adds bytes to the resident total. The budget is soft, so this
// never blocks or fails.
func (c *Controller) AcquireMemory(bytes int64) {
	if bytes > 0 {
		c.AdjustMemory(bytes)
	}
}

// ReleaseMemory subtracts bytes from the resident total.
func (c *Controller) ReleaseMemory(bytes int64) {
	if bytes > 0 {
		c.AdjustMemory(-bytes)
	}
}

// AdjustMemory applies a signed delta, as when a resident item changes size.
func (c *Controller) AdjustMemory(delta int64) {
	if c == nil || delta == 0 {
		return
	}
	c.used.Add(delta)
}

// Exceeds reports whether usage plus incoming would be over budget.
func (c *Controller) Exceeds(incoming int64) bool {
	if c == nil {
		return false
	}
	return c.used.Load()+incoming > c.budget
}

// MemoryUsage returns the resident total in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.used.Load()
}

// MemoryBudget returns the configured budget in bytes.
func (c *Controller) MemoryBudget() int64 {
	if c == nil {
		return 0
	}
	return c.budget
}

// AcquireBackground blocks until a worker slot is free or ctx is done.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.workers.Acquire(ctx, 1)
}

// ReleaseBackground returns a worker slot.
func (c *Controller) ReleaseBackground() {
	if c != nil {
		c.workers.Release(1)
	}
}

// AcquireIO waits for n bytes worth of IO tokens.
func (c *Controller) AcquireIO(ctx context.Context, n int) error {
	if c == nil || c.limiter == nil {
		return nil
	}
	return c.limiter.WaitN(ctx, n)
}

func (c *Controller) burst(n int) int {
	if c == nil || c.limiter == nil {
		return n
	}
	return c.limiter.Burst()
}

// RateLimitedWriter paces writes to an underlying writer.
type RateLimitedWriter struct {
	ctx context.Context
	dst io.Writer
	rc  *Controller
}

// NewRateLimitedWriter paces writes to dst with rc's IO limit. Writes larger
// than the limiter burst go out in burst-sized pieces.
func NewRateLimitedWriter(ctx context.Context, dst io.Writer, rc *Controller) *RateLimitedWriter {
	return &RateLimitedWriter{ctx: ctx, dst: dst, rc: rc}
}

func (w *RateLimitedWriter) Write(p []byte) (int, error) {
	step := w.rc.burst(len(p))

	var total int
	for len(p) > 0 {
		chunk := p[:min(len(p), step)]
		if err := w.rc.AcquireIO(w.ctx, len(chunk)); err != nil {
			return total, err
		}
		n, err := w.dst.Write(chunk)
		total += n
		if err != nil {
			return total, err
		}
		p = p[len(chunk):]
	}
	return total, nil
}
