// Package resource bounds the resources a percolator spends on requests: memory held
// by ephemeral candidate indexes, verification worker slots, the request admission
// rate and snapshot IO throughput.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for candidate documents held by in-flight
	// percolation requests. If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxVerificationWorkers is the maximum number of stored queries evaluated
	// concurrently across all requests. If 0, defaults to 1.
	MaxVerificationWorkers int64

	// RequestsPerSecond limits how many percolation requests are admitted.
	// If 0, unlimited.
	RequestsPerSecond float64

	// RequestBurst is the admission burst size. If 0, defaults to 1.
	RequestBurst int

	// IOLimitBytesPerSec is the maximum throughput for snapshot IO.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages shared resources (memory, concurrency, rates).
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Concurrency
	workerSem *semaphore.Weighted

	// Rates
	admission *rate.Limiter // nil if unlimited
	ioLimiter *rate.Limiter // nil if unlimited
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxVerificationWorkers <= 0 {
		cfg.MaxVerificationWorkers = 1
	}
	if cfg.RequestBurst <= 0 {
		cfg.RequestBurst = 1
	}

	c := &Controller{
		cfg:       cfg,
		workerSem: semaphore.NewWeighted(cfg.MaxVerificationWorkers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.RequestsPerSecond > 0 {
		c.admission = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestBurst)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// AcquireMemory attempts to reserve memory.
// If a hard limit is configured and usage would exceed it,
// this blocks until memory is available or ctx is canceled.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil {
		return nil
	}
	if bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireMemory attempts to reserve memory without blocking.
// Returns true if acquired, false if limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil {
		return true
	}
	if bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireWorker reserves a verification worker slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.workerSem.Acquire(ctx, 1)
}

// TryAcquireWorker attempts to reserve a verification worker slot without blocking.
func (c *Controller) TryAcquireWorker() bool {
	if c == nil {
		return true
	}
	return c.workerSem.TryAcquire(1)
}

// ReleaseWorker releases a verification worker slot.
func (c *Controller) ReleaseWorker() {
	if c == nil {
		return
	}
	c.workerSem.Release(1)
}

// Admit waits until the admission rate allows one more request.
func (c *Controller) Admit(ctx context.Context) error {
	if c == nil || c.admission == nil {
		return nil
	}
	return c.admission.Wait(ctx)
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	for bytes > 0 {
		n := min(bytes, c.ioLimiter.Burst())
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
