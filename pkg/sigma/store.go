package sigma

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
)

// Source supplies raw template text. Read returns an error wrapping
// ErrTemplateNotFound when no template exists under the given name.
type Source interface {
	Read(name string) ([]byte, error)
	ModTime(name string) (time.Time, error)
}

// DirSource reads templates from a directory root.
type DirSource struct {
	Root string
}

func (s DirSource) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.Root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
		}
		return nil, err
	}
	return data, nil
}

func (s DirSource) ModTime(name string) (time.Time, error) {
	info, err := os.Stat(filepath.Join(s.Root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
		}
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// ArtifactStore persists compiled artifacts keyed by source identity.
// WriteAtomic must be all-or-nothing: on failure the previous artifact, if
// any, stays intact and no temporary data leaks.
type ArtifactStore interface {
	ModTime(id string) (time.Time, error)
	Read(id string) ([]byte, error)
	WriteAtomic(id string, data []byte) error
	Chtimes(id string, mtime time.Time) error
}

// FileStore keeps one artifact file per source under Dir, written via a
// temporary file in the same directory renamed over the destination.
type FileStore struct {
	Dir    string
	Prefix string
}

func (s FileStore) path(id string) string {
	clean := strings.NewReplacer("/", "_", "\\", "_").Replace(id)
	return filepath.Join(s.Dir, s.Prefix+clean)
}

func (s FileStore) ModTime(id string) (time.Time, error) {
	info, err := os.Stat(s.path(id))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (s FileStore) Read(id string) ([]byte, error) {
	return os.ReadFile(s.path(id))
}

func (s FileStore) WriteAtomic(id string, data []byte) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheWrite, err)
	}
	if err := atomic.WriteFile(s.path(id), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheWrite, err)
	}
	return nil
}

func (s FileStore) Chtimes(id string, mtime time.Time) error {
	if err := os.Chtimes(s.path(id), mtime, mtime); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheWrite, err)
	}
	return nil
}
