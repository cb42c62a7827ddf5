// Package resource provides global limits for memory held by address spaces
// and for snapshot IO.
//
// A single Controller can be shared by several AddressSpace instances to cap
// the total bytes of materialized segments, bound the number of concurrent
// snapshot operations, and throttle snapshot IO throughput.
package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimit is returned when a reservation would exceed the configured
// memory limit.
var ErrMemoryLimit = errors.New("resource: memory limit exceeded")

// Config holds resource limits. Zero values mean unlimited.
type Config struct {
	// MemoryLimitBytes caps the total bytes of materialized segment data.
	// The limit is enforced for explicit inserts and snapshot loads; lazy
	// materialization on the write path is tracked but never refused — a
	// write must not fail.
	MemoryLimitBytes int64

	// MaxSnapshotOps bounds concurrent snapshot save/load operations.
	// Defaults to 1.
	MaxSnapshotOps int64

	// SnapshotIOBytesPerSec throttles snapshot read/write throughput.
	SnapshotIOBytesPerSec int64
}

// Controller tracks and limits resources across address spaces.
type Controller struct {
	cfg Config

	memUsed atomic.Int64

	snapSem   *semaphore.Weighted
	ioLimiter *rate.Limiter
}

// NewController creates a controller with the given limits.
func NewController(cfg Config) *Controller {
	if cfg.MaxSnapshotOps <= 0 {
		cfg.MaxSnapshotOps = 1
	}

	c := &Controller{
		cfg:     cfg,
		snapSem: semaphore.NewWeighted(cfg.MaxSnapshotOps),
	}
	if cfg.SnapshotIOBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.SnapshotIOBytesPerSec), int(cfg.SnapshotIOBytesPerSec))
	}
	return c
}

// CheckMemory reports whether additional bytes fit under the memory limit.
// It does not reserve anything; callers follow up with AddMemory once the
// allocation has actually happened.
func (c *Controller) CheckMemory(additional int64) error {
	if c == nil || c.cfg.MemoryLimitBytes <= 0 || additional <= 0 {
		return nil
	}
	if c.memUsed.Load()+additional > c.cfg.MemoryLimitBytes {
		return ErrMemoryLimit
	}
	return nil
}

// AddMemory records a change in materialized bytes. delta may be negative.
// Unlike CheckMemory this never refuses: lazy materialization must always
// proceed, even past the limit.
func (c *Controller) AddMemory(delta int64) {
	if c == nil || delta == 0 {
		return
	}
	c.memUsed.Add(delta)
}

// MemoryUsage returns the currently tracked bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireSnapshotSlot blocks until a snapshot operation slot is free.
func (c *Controller) AcquireSnapshotSlot(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.snapSem.Acquire(ctx, 1)
}

// ReleaseSnapshotSlot releases a slot taken by AcquireSnapshotSlot.
func (c *Controller) ReleaseSnapshotSlot() {
	if c == nil {
		return
	}
	c.snapSem.Release(1)
}

// IOLimiter returns the snapshot IO rate limiter, or nil if unthrottled.
func (c *Controller) IOLimiter() *rate.Limiter {
	if c == nil {
		return nil
	}
	return c.ioLimiter
}

// WaitIO waits until n bytes of snapshot IO are admitted by the limiter.
func (c *Controller) WaitIO(ctx context.Context, n int) error {
	if c == nil || c.ioLimiter == nil || n <= 0 {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := c.ioLimiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
