package component

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/mediascribe/logger"
)

type componentEntry struct {
	component Component
	started   bool
}

// Registry manages component lifecycle with deterministic ordering.
// Components are started in registration order and stopped in reverse order.
type Registry struct {
	// StopTimeout bounds each component's Stop.
	StopTimeout time.Duration
	// HealthTimeout bounds each component's Health; a component that does
	// not answer in time is reported unhealthy.
	HealthTimeout time.Duration

	entries []*componentEntry
	lookup  map[string]*componentEntry
	mu      sync.RWMutex
	log     *logger.Logger
}

// NewRegistry creates a new component registry.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		StopTimeout:   30 * time.Second,
		HealthTimeout: 2 * time.Second,
		lookup:        make(map[string]*componentEntry),
		log:           log.WithComponent("components"),
	}
}

// Register adds a component to the registry. Register dependencies first.
func (r *Registry) Register(c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.lookup[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}

	entry := &componentEntry{component: c}
	r.entries = append(r.entries, entry)
	r.lookup[name] = entry
	r.log.Debug("Component registered", logger.Fields("component", name))
	return nil
}

// StartAll starts all components in registration order and stops at the
// first failure.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.entries {
		name := entry.component.Name()
		start := time.Now()
		if err := entry.component.Start(ctx); err != nil {
			r.log.Error("Component start failed", logger.Fields("component", name, logger.FieldError, err.Error()))
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		entry.started = true
		r.log.Debug("Component started", logger.Fields("component", name, logger.FieldDuration, time.Since(start).String()))
	}
	r.log.Info("All components started", logger.Fields("count", len(r.entries)))
	return nil
}

// StopAll stops started components in reverse registration order. Every
// component is attempted; failures are joined.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for i := len(r.entries) - 1; i >= 0; i-- {
		entry := r.entries[i]
		if !entry.started {
			continue
		}
		name := entry.component.Name()

		stopCtx, cancel := context.WithTimeout(ctx, r.StopTimeout)
		if err := entry.component.Stop(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop %s: %w", name, err))
			r.log.Error("Component stop failed", logger.Fields("component", name, logger.FieldError, err.Error()))
		} else {
			r.log.Info("Component stopped", logger.Fields("component", name))
		}
		entry.started = false
		cancel()
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// HealthAll checks every component concurrently and returns results in
// registration order.
func (r *Registry) HealthAll(ctx context.Context) []Health {
	r.mu.RLock()
	comps := make([]Component, len(r.entries))
	for i, e := range r.entries {
		comps[i] = e.component
	}
	timeout := r.HealthTimeout
	r.mu.RUnlock()

	results := make([]Health, len(comps))
	var wg sync.WaitGroup
	for i, c := range comps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan Health, 1)
			go func() { done <- c.Health(hctx) }()
			select {
			case h := <-done:
				results[i] = h
			case <-hctx.Done():
				results[i] = Health{Name: c.Name(), Status: StatusUnhealthy, Message: "health check timed out"}
			}
		}()
	}
	wg.Wait()
	return results
}

// Get returns a registered component by name, or nil if not found.
func (r *Registry) Get(name string) Component {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, exists := r.lookup[name]; exists {
		return entry.component
	}
	return nil
}

// All returns all registered components in registration order.
func (r *Registry) All() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Component, 0, len(r.entries))
	for _, entry := range r.entries {
		result = append(result, entry.component)
	}
	return result
}
