package scheduler

import (
	"context"

	"github.com/kbukum/mediascribe/resilience"
)

// Slots is the pool of WorkerSlots. Acquire queues callers in FIFO order and
// returns ctx.Err() if the context ends first.
type Slots struct {
	bulkhead *resilience.Bulkhead
}

// NewSlots creates n slots. onChange, if set, observes every acquire and
// release with the resulting number of slots in use.
func NewSlots(n int, onChange func(inUse int)) *Slots {
	cfg := resilience.BulkheadConfig{Name: "worker-slots", MaxConcurrent: n}
	if onChange != nil {
		observe := func(_ string, inUse int) { onChange(inUse) }
		cfg.OnAcquire = observe
		cfg.OnRelease = observe
	}
	return &Slots{bulkhead: resilience.NewBulkhead(cfg)}
}

// Acquire blocks until a slot is free. The caller must Release exactly once
// after a nil return.
func (s *Slots) Acquire(ctx context.Context) error {
	return s.bulkhead.Acquire(ctx)
}

// Release returns a slot.
func (s *Slots) Release() { s.bulkhead.Release() }

// InUse returns the number of held slots.
func (s *Slots) InUse() int { return s.bulkhead.InUse() }

// Waiting returns the number of callers blocked in Acquire.
func (s *Slots) Waiting() int { return s.bulkhead.Waiting() }

// Capacity returns the total number of slots.
func (s *Slots) Capacity() int { return s.bulkhead.MaxConcurrent() }
