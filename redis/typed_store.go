package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// TypedStore stores JSON-encoded values of type C under a key prefix.
type TypedStore[C any] struct {
	client    *Client
	keyPrefix string
}

// NewTypedStore creates a TypedStore. Keys become "<keyPrefix>:<key>".
func NewTypedStore[C any](client *Client, keyPrefix string) *TypedStore[C] {
	return &TypedStore[C]{client: client, keyPrefix: keyPrefix}
}

// Key returns the full redis key for key.
func (s *TypedStore[C]) Key(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return s.keyPrefix + ":" + key
}

// Load decodes the value at key. Returns (nil, nil) if the key does not exist.
func (s *TypedStore[C]) Load(ctx context.Context, key string) (*C, error) {
	raw, err := s.client.Get(ctx, s.Key(key))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("typed store load %q: %w", key, err)
	}
	var val C
	if err := json.Unmarshal([]byte(raw), &val); err != nil {
		return nil, fmt.Errorf("typed store unmarshal %q: %w", key, err)
	}
	return &val, nil
}

// Save encodes val and stores it with ttl. A ttl of 0 means no expiry.
func (s *TypedStore[C]) Save(ctx context.Context, key string, val *C, ttl time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("typed store marshal %q: %w", key, err)
	}
	if err := s.client.Set(ctx, s.Key(key), data, ttl); err != nil {
		return fmt.Errorf("typed store save %q: %w", key, err)
	}
	return nil
}

// Delete removes the key.
func (s *TypedStore[C]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.Key(key)); err != nil {
		return fmt.Errorf("typed store delete %q: %w", key, err)
	}
	return nil
}

// Keys returns the unprefixed keys currently stored.
func (s *TypedStore[C]) Keys(ctx context.Context) ([]string, error) {
	full, err := s.client.Scan(ctx, s.Key("*"))
	if err != nil {
		return nil, fmt.Errorf("typed store scan: %w", err)
	}
	prefix := len(s.Key(""))
	keys := make([]string, len(full))
	for i, k := range full {
		keys[i] = k[prefix:]
	}
	return keys, nil
}
