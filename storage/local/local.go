// Package local stores uploads on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/storage"
)

func init() {
	storage.RegisterFactory(storage.ProviderLocal, func(_ context.Context, cfg storage.Config, _ *logger.Logger) (storage.Storage, error) {
		return NewStorage(cfg.BasePath)
	})
}

// Storage implements storage.Storage under a base directory.
type Storage struct {
	basePath string
}

// NewStorage creates the base directory if needed.
func NewStorage(basePath string) (*Storage, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create base directory: %w", err)
	}
	return &Storage{basePath: abs}, nil
}

// resolve maps key into basePath, rejecting keys that would escape it.
func (s *Storage) resolve(key string) (string, error) {
	full := filepath.Join(s.basePath, filepath.FromSlash(key))
	if full != s.basePath && !strings.HasPrefix(full, s.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: key %q escapes base path", key)
	}
	return full, nil
}

// Put writes r to a temp file and renames it into place, so readers never
// observe a partial object.
func (s *Storage) Put(_ context.Context, key string, r io.Reader, _ string) (int64, error) {
	full, err := s.resolve(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return 0, fmt.Errorf("storage: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("storage: create file: %w", err)
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return n, fmt.Errorf("storage: write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return n, fmt.Errorf("storage: commit file: %w", err)
	}
	return n, nil
}

func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, storage.Object, error) {
	obj, err := s.Stat(ctx, key)
	if err != nil {
		return nil, storage.Object{}, err
	}
	full, _ := s.resolve(key)
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.Object{}, storage.ErrNotFound
		}
		return nil, storage.Object{}, fmt.Errorf("storage: open file: %w", err)
	}
	return f, obj, nil
}

func (s *Storage) Stat(_ context.Context, key string) (storage.Object, error) {
	full, err := s.resolve(key)
	if err != nil {
		return storage.Object{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return storage.Object{}, storage.ErrNotFound
		}
		return storage.Object{}, fmt.Errorf("storage: stat file: %w", err)
	}
	if info.IsDir() {
		return storage.Object{}, storage.ErrNotFound
	}
	return storage.Object{
		Key:          key,
		Size:         info.Size(),
		ContentType:  mime.TypeByExtension(filepath.Ext(full)),
		LastModified: info.ModTime(),
	}, nil
}

func (s *Storage) Delete(_ context.Context, key string) error {
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete file: %w", err)
	}
	return nil
}

var _ storage.Storage = (*Storage)(nil)
