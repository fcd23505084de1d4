package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when an object key does not exist.
var ErrNotFound = errors.New("storage: object not found")

// Object describes a stored object.
type Object struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Storage is an object store for uploaded media.
type Storage interface {
	// Put writes the contents of r under key and returns the byte count.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)

	// Get opens the object at key. The caller closes the reader.
	// Returns ErrNotFound when the key does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, Object, error)

	// Stat returns object metadata, or ErrNotFound.
	Stat(ctx context.Context, key string) (Object, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
