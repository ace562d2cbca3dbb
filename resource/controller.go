package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when a reservation would exceed the memory budget.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// DefaultMaxTransfers is used when Config.MaxTransfers is not set.
const DefaultMaxTransfers = 4

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for in-memory sequence storage.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// IOLimitBytesPerSec caps shard write throughput.
	// If 0, unlimited.
	IOLimitBytesPerSec int64

	// MaxTransfers is the maximum number of concurrent blob transfers.
	// If 0, defaults to DefaultMaxTransfers.
	MaxTransfers int64
}

// Controller enforces a Config.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Transfers
	xferSem *semaphore.Weighted

	// IO
	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxTransfers <= 0 {
		cfg.MaxTransfers = DefaultMaxTransfers
	}

	c := &Controller{
		cfg:     cfg,
		xferSem: semaphore.NewWeighted(cfg.MaxTransfers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), burst(cfg.IOLimitBytesPerSec))
	}

	return c
}

func burst(limit int64) int {
	const maxBurst = 1 << 30
	if limit > maxBurst {
		return maxBurst
	}
	return int(limit)
}

// AcquireMemory reserves bytes against the budget.
// Returns ErrMemoryLimitExceeded if the limit would be exceeded.
// Non-blocking - callers control retry/backoff policy.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return ErrMemoryLimitExceeded
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory returns a reservation made with AcquireMemory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the currently reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
// Requests larger than the bucket are served in bucket-sized steps.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return ctx.Err()
	}
	b := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, b)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

// AcquireTransfer reserves a transfer slot, blocking until one is free
// or ctx is done.
func (c *Controller) AcquireTransfer(ctx context.Context) error {
	if c == nil {
		return ctx.Err()
	}
	return c.xferSem.Acquire(ctx, 1)
}

// ReleaseTransfer frees a slot taken with AcquireTransfer.
func (c *Controller) ReleaseTransfer() {
	if c == nil {
		return
	}
	c.xferSem.Release(1)
}

// MaxTransfers returns the number of transfer slots.
func (c *Controller) MaxTransfers() int {
	if c == nil {
		return DefaultMaxTransfers
	}
	return int(c.cfg.MaxTransfers)
}
