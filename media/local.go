package media

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Scratch is a per-job working directory. Nothing else writes into it, so it
// needs no locking; Remove deletes everything the job produced.
type Scratch struct {
	Dir string
}

// NewScratch creates root/<name>. An empty name gets a random one.
func NewScratch(root, name string) (*Scratch, error) {
	if name == "" {
		name = uuid.NewString()
	}
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Scratch{Dir: dir}, nil
}

// Path returns the path of a file inside the scratch dir.
func (s *Scratch) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

// Remove deletes the scratch dir and its contents.
func (s *Scratch) Remove() error {
	if s == nil || s.Dir == "" {
		return nil
	}
	return os.RemoveAll(s.Dir)
}

// LocalMedia is a fetched, finite media file.
type LocalMedia struct {
	Path        string
	Size        int64
	ContentType string
}
