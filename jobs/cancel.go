package jobs

import (
	"context"
	"sync"
)

// signals holds the pending cancellation signal of each running job. A
// signal may be raised before the worker registers for it.
type signals struct {
	mu sync.Mutex
	m  map[string]*signal
}

type signal struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newSignals() *signals {
	return &signals{m: make(map[string]*signal)}
}

func (s *signals) get(id string) *signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.m[id]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		sig = &signal{ctx: ctx, cancel: cancel}
		s.m[id] = sig
	}
	return sig
}

// raise requests cancellation of id.
func (s *signals) raise(id string) { s.get(id).cancel() }

// raised reports whether cancellation of id was requested.
func (s *signals) raised(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.m[id]
	return ok && sig.ctx.Err() != nil
}

func (s *signals) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sig, ok := s.m[id]; ok {
		sig.cancel()
		delete(s.m, id)
	}
}

// lease guards a job's scratch directory while an inference the job started
// may still read from it. The directory is removed once the job has let go
// and no inference holds it.
type lease struct {
	mu       sync.Mutex
	users    int
	released bool
	remove   func()
}

func (l *lease) acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return false
	}
	l.users++
	return true
}

func (l *lease) done() {
	l.mu.Lock()
	l.users--
	last := l.users == 0 && l.released
	l.mu.Unlock()
	if last {
		l.remove()
	}
}

func (l *lease) release() {
	l.mu.Lock()
	l.released = true
	last := l.users == 0
	l.mu.Unlock()
	if last {
		l.remove()
	}
}
