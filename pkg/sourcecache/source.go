package sourcecache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/mrLexx/HTML-Template-Sigma/pkg/sigma"
)

// CachedSource is a sigma.Source that memoizes the reads of an inner source
// in a Store. Cache failures are logged and fall through to the inner source,
// so a broken cache never breaks template loading.
type CachedSource struct {
	inner  sigma.Source
	store  *Store
	logger *slog.Logger
}

// NewCachedSource wraps inner with read-through caching in store.
func NewCachedSource(inner sigma.Source, store *Store) *CachedSource {
	return &CachedSource{
		inner:  inner,
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger for the CachedSource. By default, all logs are
// discarded.
func (s *CachedSource) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *CachedSource) Read(name string) ([]byte, error) {
	ctx := context.Background()
	mtime, err := s.inner.ModTime(name)
	if err != nil {
		return nil, err
	}
	content, err := s.store.Get(ctx, name, mtime)
	if err == nil {
		return content, nil
	}
	if !errors.Is(err, ErrMiss) {
		s.logger.Warn("source cache read failed", "path", name, "error", err)
	}
	content, err = s.inner.Read(name)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, name, content, mtime); err != nil {
		s.logger.Warn("source cache write failed", "path", name, "error", err)
	}
	return content, nil
}

func (s *CachedSource) ModTime(name string) (time.Time, error) {
	return s.inner.ModTime(name)
}
