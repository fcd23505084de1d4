package jobs

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/redis"
)

// Store persists job records. Implementations return copies; callers own
// what they get back.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, job *Job) error
	Delete(ctx context.Context, id string) error
	// List returns up to limit jobs, newest first.
	List(ctx context.Context, limit int) ([]*Job, error)
	// Unfinished returns the ids of jobs not in a terminal state.
	Unfinished(ctx context.Context) ([]string, error)
}

func sortNewest(list []*Job) {
	slices.SortFunc(list, func(a, b *Job) int {
		if c := b.SubmittedAt.Compare(a.SubmittedAt); c != 0 {
			return c
		}
		return compareStrings(a.ID, b.ID)
	})
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// MemoryStore keeps jobs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return errors.Conflict("job " + job.ID + " already exists")
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.NotFound("job", id)
	}
	return job.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return errors.NotFound("job", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]*Job, error) {
	s.mu.RLock()
	list := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		list = append(list, job.Clone())
	}
	s.mu.RUnlock()

	sortNewest(list)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *MemoryStore) Unfinished(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, job := range s.jobs {
		if !job.State.Terminal() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// RedisStore keeps job records as JSON under "<prefix>:job:<id>" and the ids
// of unfinished jobs in the set "<prefix>:jobs:active".
type RedisStore struct {
	client *redis.Client
	jobs   *redis.TypedStore[Job]
	active string
}

// NewRedisStore creates a store under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		jobs:   redis.NewTypedStore[Job](client, prefix+":job"),
		active: prefix + ":jobs:active",
	}
}

func (s *RedisStore) Create(ctx context.Context, job *Job) error {
	n, err := s.client.Exists(ctx, s.jobs.Key(job.ID))
	if err != nil {
		return errors.StorageError("redis", err)
	}
	if n > 0 {
		return errors.Conflict("job " + job.ID + " already exists")
	}
	return s.save(ctx, job)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	job, err := s.jobs.Load(ctx, id)
	if err != nil {
		return nil, errors.StorageError("redis", err)
	}
	if job == nil {
		return nil, errors.NotFound("job", id)
	}
	return job, nil
}

func (s *RedisStore) Update(ctx context.Context, job *Job) error {
	return s.save(ctx, job)
}

func (s *RedisStore) save(ctx context.Context, job *Job) error {
	stored := job.Clone()
	stored.CancelRequested = false
	if err := s.jobs.Save(ctx, job.ID, stored, 0); err != nil {
		return errors.StorageError("redis", err)
	}
	var err error
	if job.State.Terminal() {
		err = s.client.SRem(ctx, s.active, job.ID)
	} else {
		err = s.client.SAdd(ctx, s.active, job.ID)
	}
	if err != nil {
		return errors.StorageError("redis", fmt.Errorf("update active index: %w", err))
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.jobs.Delete(ctx, id); err != nil {
		return errors.StorageError("redis", err)
	}
	if err := s.client.SRem(ctx, s.active, id); err != nil {
		return errors.StorageError("redis", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, limit int) ([]*Job, error) {
	ids, err := s.jobs.Keys(ctx)
	if err != nil {
		return nil, errors.StorageError("redis", err)
	}
	list := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.jobs.Load(ctx, id)
		if err != nil {
			return nil, errors.StorageError("redis", err)
		}
		if job != nil {
			list = append(list, job)
		}
	}
	sortNewest(list)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *RedisStore) Unfinished(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.active)
	if err != nil {
		return nil, errors.StorageError("redis", err)
	}
	slices.Sort(ids)
	return ids, nil
}
