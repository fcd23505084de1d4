package jobs

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/mediascribe/cache"
	"github.com/kbukum/mediascribe/component"
	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/media"
	"github.com/kbukum/mediascribe/observability"
	"github.com/kbukum/mediascribe/scheduler"
	"github.com/kbukum/mediascribe/validation"
)

// SourceChecker is implemented by fetchers that can reject a source before
// a job is created for it.
type SourceChecker interface {
	Check(src media.Source) error
}

// Deps are the collaborators of a Manager.
type Deps struct {
	Store       Store
	Scheduler   *scheduler.Scheduler
	Fetcher     Fetcher
	Normalizer  Normalizer
	Transcriber Transcriber
	Cache       *cache.Cache
	Bus         *EventBus
	Metrics     *observability.Metrics
	Logger      *logger.Logger
	// Models lists the accepted model names; empty accepts any.
	Models       []string
	DefaultModel string
}

// SubmitRequest is a request to transcribe a source.
type SubmitRequest struct {
	Source   string `json:"source"`
	Model    string `json:"model" validate:"omitempty,max=64"`
	Language string `json:"language" validate:"omitempty,language"`
}

// Manager admits, tracks and cancels jobs and runs them on the scheduler.
type Manager struct {
	cfg          Config
	store        Store
	sched        *scheduler.Scheduler
	slots        *scheduler.Slots
	fetcher      Fetcher
	normalizer   Normalizer
	transcriber  Transcriber
	cache        *cache.Cache
	bus          *EventBus
	metrics      *observability.Metrics
	log          *logger.Logger
	models       []string
	defaultModel string
	signals      *signals
	now          func() time.Time

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

var _ component.Component = (*Manager)(nil)

// NewManager creates a Manager and installs it as the scheduler's handler.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil || deps.Scheduler == nil || deps.Cache == nil {
		return nil, fmt.Errorf("jobs: store, scheduler and cache are required")
	}
	if deps.Fetcher == nil || deps.Normalizer == nil || deps.Transcriber == nil {
		return nil, fmt.Errorf("jobs: fetcher, normalizer and transcriber are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NoopMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Bus == nil {
		deps.Bus = NewEventBus(deps.Logger)
	}
	m := &Manager{
		cfg:          cfg,
		store:        deps.Store,
		sched:        deps.Scheduler,
		slots:        deps.Scheduler.Slots(),
		fetcher:      deps.Fetcher,
		normalizer:   deps.Normalizer,
		transcriber:  deps.Transcriber,
		cache:        deps.Cache,
		bus:          deps.Bus,
		metrics:      deps.Metrics,
		log:          deps.Logger.WithComponent("jobs"),
		models:       deps.Models,
		defaultModel: deps.DefaultModel,
		signals:      newSignals(),
		now:          time.Now,
	}
	deps.Scheduler.SetHandler(m.run)
	return m, nil
}

// Bus returns the manager's event bus.
func (m *Manager) Bus() *EventBus { return m.bus }

// Submit validates req, applies backpressure and queues a new job. An
// OVERLOADED rejection happens before any job is created.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	src, err := media.ParseSource(req.Source)
	if err != nil {
		m.metrics.RecordRejected(ctx, string(errors.CodeOf(err)))
		return nil, err
	}
	if checker, ok := m.fetcher.(SourceChecker); ok {
		if err := checker.Check(src); err != nil {
			m.metrics.RecordRejected(ctx, string(errors.CodeOf(err)))
			return nil, err
		}
	}
	if err := validation.Validate(req); err != nil {
		m.metrics.RecordRejected(ctx, string(errors.CodeOf(err)))
		return nil, err
	}
	model := strings.TrimSpace(req.Model)
	if model != "" && len(m.models) > 0 && !slices.Contains(m.models, model) {
		return nil, errors.InvalidInput("model", fmt.Sprintf("must be one of %s", strings.Join(m.models, ", ")))
	}
	place, err := m.sched.Reserve()
	if err != nil {
		m.metrics.RecordRejected(ctx, string(errors.CodeOf(err)))
		m.log.WithContext(ctx).Warn("submission rejected", logger.Fields(
			logger.FieldErrorCode, errors.CodeOf(err),
			"queue_depth", m.sched.Depth(),
		))
		return nil, err
	}

	job := NewJob(uuid.NewString(), src.Raw, Options{Model: model, Language: strings.TrimSpace(req.Language)}, m.now())
	if err := m.store.Create(ctx, job); err != nil {
		place.Release()
		return nil, err
	}
	m.bus.Publish(ctx, eventOf(job, job.History[0]))
	place.Enqueue(job.ID)
	m.metrics.RecordSubmitted(ctx, string(src.Kind))
	m.log.WithContext(ctx).Info("job submitted", logger.Fields(
		logger.FieldJobID, job.ID,
		logger.FieldSource, src.Raw,
		"model", job.Options.Model,
	))
	return job, nil
}

// Get returns the current snapshot of a job.
func (m *Manager) Get(ctx context.Context, id string) (*Job, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.State.Terminal() && m.signals.raised(id) {
		job.CancelRequested = true
	}
	return job, nil
}

// List returns the newest jobs, at most limit (capped by the config).
func (m *Manager) List(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 || limit > m.cfg.ListLimit {
		limit = m.cfg.ListLimit
	}
	return m.store.List(ctx, limit)
}

// Cancel requests cancellation. A job still waiting in the queue is
// cancelled at once; a running job is cancelled by its worker at the next
// checkpoint. Cancelling a finished job is a no-op that returns it as is.
func (m *Manager) Cancel(ctx context.Context, id string) (*Job, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State.Terminal() {
		return job, nil
	}

	if m.sched.Remove(id) {
		// No worker owns the job, so the manager writes the final state.
		tr, err := job.Apply(StateCancelled, m.now(), NewJobError(errors.Cancelled(string(StateSubmitted)), StateSubmitted))
		if err != nil {
			return nil, errors.Internal(err)
		}
		if err := m.store.Update(ctx, job); err != nil {
			return nil, err
		}
		m.bus.Publish(ctx, eventOf(job, tr))
		m.metrics.RecordFinished(ctx, string(StateCancelled), string(errors.ErrCodeCancelled))
		m.log.WithContext(ctx).Info("queued job cancelled", logger.Fields(logger.FieldJobID, id))
		return job, nil
	}

	m.signals.raise(id)
	job.CancelRequested = true
	m.log.WithContext(ctx).Info("cancellation requested", logger.Fields(
		logger.FieldJobID, id,
		logger.FieldState, string(job.State),
	))
	return job, nil
}

// Wait blocks until the job is terminal or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (*Job, error) {
	events, unsubscribe := m.bus.Subscribe(64)
	defer unsubscribe()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, err := m.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.State.Terminal() {
			return job, nil
		}
		select {
		case <-events:
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Recover requeues jobs left unfinished by a previous process. Jobs that
// were mid-pipeline restart from the beginning.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	ids, err := m.store.Unfinished(ctx)
	if err != nil {
		return 0, err
	}
	queued := make(map[string]bool)
	for _, id := range m.sched.Pending() {
		queued[id] = true
	}

	var jobs []*Job
	for _, id := range ids {
		if queued[id] {
			continue
		}
		job, err := m.store.Get(ctx, id)
		if err != nil {
			if errors.HasCode(err, errors.ErrCodeNotFound) {
				continue
			}
			return 0, err
		}
		if job.State.Terminal() {
			continue
		}
		if job.State != StateSubmitted {
			tr, err := job.Apply(StateSubmitted, m.now(), nil)
			if err != nil {
				return 0, errors.Internal(err)
			}
			if err := m.store.Update(ctx, job); err != nil {
				return 0, err
			}
			m.bus.Publish(ctx, eventOf(job, tr))
		}
		jobs = append(jobs, job)
	}
	sortNewest(jobs)
	slices.Reverse(jobs)
	for _, job := range jobs {
		m.sched.Enqueue(job.ID)
	}
	if len(jobs) > 0 {
		m.log.Info("requeued unfinished jobs", logger.Fields("count", len(jobs)))
	}
	return len(jobs), nil
}

// Sweep deletes finished jobs older than the retention period and returns
// how many were removed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	list, err := m.store.List(ctx, 0)
	if err != nil {
		return 0, err
	}
	cutoff := m.now().Add(-m.cfg.Retention)
	removed := 0
	for _, job := range list {
		if !job.State.Terminal() || job.FinishedAt == nil || job.FinishedAt.After(cutoff) {
			continue
		}
		if err := m.store.Delete(ctx, job.ID); err != nil {
			return removed, err
		}
		m.signals.forget(job.ID)
		removed++
	}
	if removed > 0 {
		m.log.Info("expired jobs removed", logger.Fields("count", removed))
	}
	return removed, nil
}

func (m *Manager) Name() string { return "jobs" }

// Start requeues unfinished jobs and starts the retention sweeper.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	if _, err := m.Recover(ctx); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true
	go m.sweepLoop(m.stop, m.done)
	return nil
}

// Stop stops the sweeper.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health reports whether the job store answers.
func (m *Manager) Health(ctx context.Context) component.Health {
	h := component.Health{Name: m.Name(), Status: component.StatusHealthy}
	if _, err := m.store.List(ctx, 1); err != nil {
		h.Status = component.StatusUnhealthy
		h.Message = err.Error()
	}
	return h
}

func (m *Manager) sweepLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := m.Sweep(context.Background()); err != nil {
				m.log.Warn("sweep expired jobs", logger.ErrorFields("sweep", err))
			}
		}
	}
}
