package scheduler

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kbukum/mediascribe/component"
	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/logger"
)

// Handler runs the pipeline of one job. ctx is cancelled only when the
// scheduler is forced down.
type Handler func(ctx context.Context, jobID string)

// Scheduler feeds queued job ids to a pool of workers.
type Scheduler struct {
	cfg     Config
	slots   *Slots
	handler Handler
	log     *logger.Logger

	mu       sync.Mutex
	queue    []string
	reserved int
	active   int
	ready   chan struct{}
	stop    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ component.Component = (*Scheduler)(nil)

// New creates a scheduler. The handler is set with SetHandler before Start
// because the job runner it calls is built on top of the scheduler's slots.
func New(cfg Config, slots *Slots, log *logger.Logger) *Scheduler {
	cfg.ApplyDefaults()
	if slots == nil {
		slots = NewSlots(cfg.Slots, nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		cfg:   cfg,
		slots: slots,
		log:   log.WithComponent("scheduler"),
		ready: make(chan struct{}, 1),
		stop:  make(chan struct{}),
	}
}

// SetHandler sets the function workers run for each job.
func (s *Scheduler) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Slots returns the scheduler's WorkerSlots.
func (s *Scheduler) Slots() *Slots { return s.slots }

// Config returns the effective configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Admit rejects new work with Overloaded once the backlog has reached the
// configured maximum.
func (s *Scheduler) Admit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admitLocked()
}

func (s *Scheduler) admitLocked() error {
	limit := s.cfg.MaxQueueDepth
	if limit <= 0 {
		return nil
	}
	if depth := s.depthLocked(); depth >= limit {
		return errors.Overloaded(depth, limit, s.cfg.RetryAfter)
	}
	return nil
}

// Reserve admits one job and holds its place in the backlog until the
// reservation is enqueued or released. Admission and the place in the
// backlog are taken under one lock, so concurrent submissions cannot push
// the depth past the maximum.
func (s *Scheduler) Reserve() (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.admitLocked(); err != nil {
		return nil, err
	}
	s.reserved++
	return &Reservation{s: s}, nil
}

// Reservation is a place in the backlog taken by Reserve.
type Reservation struct {
	s    *Scheduler
	once sync.Once
}

// Enqueue turns the reservation into a queued job.
func (r *Reservation) Enqueue(jobID string) {
	r.once.Do(func() {
		r.s.mu.Lock()
		r.s.reserved--
		r.s.queue = append(r.s.queue, jobID)
		r.s.mu.Unlock()
		r.s.signal()
	})
}

// Release gives the place back without queueing anything. It is a no-op
// after Enqueue.
func (r *Reservation) Release() {
	r.once.Do(func() {
		r.s.mu.Lock()
		r.s.reserved--
		r.s.mu.Unlock()
	})
}

// Enqueue appends a job to the queue.
func (s *Scheduler) Enqueue(jobID string) {
	s.mu.Lock()
	s.queue = append(s.queue, jobID)
	s.mu.Unlock()
	s.signal()
}

// Remove drops a job that no worker has picked up yet and reports whether it
// was found.
func (s *Scheduler) Remove(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.queue, jobID)
	if i < 0 {
		return false
	}
	s.queue = slices.Delete(s.queue, i, i+1)
	return true
}

// Depth is the number of jobs waiting for a worker, including admitted
// ones not yet queued, plus the jobs waiting for a slot.
func (s *Scheduler) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depthLocked()
}

func (s *Scheduler) depthLocked() int {
	return len(s.queue) + s.reserved + s.slots.Waiting()
}

// Queued is the number of jobs waiting for a worker.
func (s *Scheduler) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Active is the number of jobs being run by workers.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Pending returns a copy of the queued job ids in order.
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.queue)
}

func (s *Scheduler) Name() string { return "scheduler" }

// Start launches the workers.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if s.handler == nil {
		return fmt.Errorf("scheduler: no handler set")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.work(runCtx)
	}
	s.running = true
	s.log.Info("scheduler started", logger.Fields(
		"workers", s.cfg.Workers,
		"slots", s.slots.Capacity(),
		"max_queue_depth", s.cfg.MaxQueueDepth,
	))
	return nil
}

// Stop stops taking new jobs and waits for running ones to finish. If ctx
// ends first, running jobs are cancelled and Stop returns ctx.Err(). Jobs
// still queued stay queued; see Pending.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.log.Info("scheduler stopped", logger.Fields("queued", s.Queued()))
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		s.log.Warn("scheduler forced down; running jobs cancelled")
		return ctx.Err()
	}
}

// Health reports degraded when the backlog has reached the admission limit.
func (s *Scheduler) Health(_ context.Context) component.Health {
	h := component.Health{Name: s.Name(), Status: component.StatusHealthy}
	if err := s.Admit(); err != nil {
		h.Status = component.StatusDegraded
		h.Message = fmt.Sprintf("queue depth %d at limit %d", s.Depth(), s.cfg.MaxQueueDepth)
	}
	return h
}

// Describe returns summary info for the startup display.
func (s *Scheduler) Describe() component.Description {
	return component.Description{
		Name: "Scheduler",
		Type: "worker-pool",
		Details: fmt.Sprintf("workers=%d slots=%d max_queue=%d",
			s.cfg.Workers, s.slots.Capacity(), s.cfg.MaxQueueDepth),
	}
}

func (s *Scheduler) work(ctx context.Context) {
	defer s.wg.Done()
	for {
		jobID, ok := s.next()
		if !ok {
			return
		}
		s.run(ctx, jobID)
	}
}

// next blocks until a job is queued or the scheduler stops.
func (s *Scheduler) next() (string, bool) {
	for {
		select {
		case <-s.stop:
			return "", false
		default:
		}

		s.mu.Lock()
		if len(s.queue) > 0 {
			jobID := s.queue[0]
			s.queue = s.queue[1:]
			s.active++
			more := len(s.queue) > 0
			s.mu.Unlock()
			if more {
				s.signal()
			}
			return jobID, true
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-s.stop:
			return "", false
		}
	}
}

func (s *Scheduler) run(ctx context.Context, jobID string) {
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
		if r := recover(); r != nil {
			s.log.Error("job handler panicked", logger.Fields(logger.FieldJobID, jobID, "panic", fmt.Sprint(r)))
		}
	}()
	s.handler(ctx, jobID)
}

func (s *Scheduler) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}
