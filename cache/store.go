package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kbukum/mediascribe/redis"
	"github.com/kbukum/mediascribe/transcription"
)

// Store persists completed transcripts by key. Stored transcripts are shared
// between jobs and must be treated as read-only.
type Store interface {
	Get(ctx context.Context, key string) (*transcription.Transcript, bool, error)
	Put(ctx context.Context, key string, t *transcription.Transcript) error
	Delete(ctx context.Context, key string) error
	Len(ctx context.Context) (int, error)
}

// MemoryStore is an in-process LRU with per-entry TTL.
type MemoryStore struct {
	lru *expirable.LRU[string, *transcription.Transcript]
}

// NewMemoryStore creates a store holding at most size entries for ttl each.
// A zero ttl keeps entries until evicted by size.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{lru: expirable.NewLRU[string, *transcription.Transcript](size, nil, ttl)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*transcription.Transcript, bool, error) {
	t, ok := s.lru.Get(key)
	return t, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, t *transcription.Transcript) error {
	s.lru.Add(key, t)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.lru.Remove(key)
	return nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) { return s.lru.Len(), nil }

// RedisStore keeps transcripts in redis with a TTL, so they survive restarts
// and are shared by replicas.
type RedisStore struct {
	store *redis.TypedStore[transcription.Transcript]
	ttl   time.Duration
}

// NewRedisStore creates a store under "<prefix>:transcript".
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		store: redis.NewTypedStore[transcription.Transcript](client, prefix+":transcript"),
		ttl:   ttl,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*transcription.Transcript, bool, error) {
	t, err := s.store.Load(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return t, t != nil, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, t *transcription.Transcript) error {
	return s.store.Save(ctx, key, t, s.ttl)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	keys, err := s.store.Keys(ctx)
	return len(keys), err
}
