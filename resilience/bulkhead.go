package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Common bulkhead errors.
var (
	ErrBulkheadFull    = errors.New("bulkhead is full")
	ErrBulkheadTimeout = errors.New("bulkhead wait timeout")
)

// BulkheadConfig configures a bulkhead.
type BulkheadConfig struct {
	// Name identifies this bulkhead for metrics/logging.
	Name string
	// MaxConcurrent is the number of slots.
	MaxConcurrent int
	// FailFast rejects with ErrBulkheadFull instead of queueing.
	FailFast bool
	// MaxWait bounds the time spent queueing. 0 waits until the context is done.
	MaxWait time.Duration
	// OnAcquire and OnRelease observe slot movement, for example to export gauges.
	OnAcquire func(name string, inUse int)
	OnRelease func(name string, inUse int)
}

// Bulkhead is a counting semaphore that hands out slots in request order.
// Waiters are served strictly FIFO, so a large backlog cannot starve the
// oldest waiter.
type Bulkhead struct {
	config  BulkheadConfig
	sem     *semaphore.Weighted
	inUse   atomic.Int64
	waiting atomic.Int64
}

// NewBulkhead creates a new bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}
	return &Bulkhead{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrent)),
	}
}

// Acquire takes one slot, queueing behind earlier callers. The caller must
// call Release exactly once after a nil return.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	if b.config.FailFast {
		if !b.sem.TryAcquire(1) {
			return ErrBulkheadFull
		}
		b.acquired()
		return nil
	}

	waitCtx := ctx
	if b.config.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, b.config.MaxWait)
		defer cancel()
	}

	b.waiting.Add(1)
	err := b.sem.Acquire(waitCtx, 1)
	b.waiting.Add(-1)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return ErrBulkheadTimeout
		}
		return err
	}
	b.acquired()
	return nil
}

// TryAcquire takes a slot only if one is free and nobody is queued.
func (b *Bulkhead) TryAcquire() bool {
	if !b.sem.TryAcquire(1) {
		return false
	}
	b.acquired()
	return true
}

// Release returns a slot taken by Acquire or TryAcquire.
func (b *Bulkhead) Release() {
	n := b.inUse.Add(-1)
	b.sem.Release(1)
	if b.config.OnRelease != nil {
		b.config.OnRelease(b.config.Name, int(n))
	}
}

func (b *Bulkhead) acquired() {
	n := b.inUse.Add(1)
	if b.config.OnAcquire != nil {
		b.config.OnAcquire(b.config.Name, int(n))
	}
}

// Execute runs fn while holding a slot.
func (b *Bulkhead) Execute(ctx context.Context, fn func() error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return fn()
}

// Available returns the number of free slots.
func (b *Bulkhead) Available() int {
	return b.config.MaxConcurrent - int(b.inUse.Load())
}

// InUse returns the number of slots currently held.
func (b *Bulkhead) InUse() int {
	return int(b.inUse.Load())
}

// Waiting returns the number of callers queued in Acquire.
func (b *Bulkhead) Waiting() int {
	return int(b.waiting.Load())
}

// MaxConcurrent returns the number of slots.
func (b *Bulkhead) MaxConcurrent() int {
	return b.config.MaxConcurrent
}
