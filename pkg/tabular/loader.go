package tabular

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Loader caches fully loaded tables by path. Concurrent loads of the same
// path share one read. The cached frames never leave the Loader: Load hands
// out a copy the caller may modify.
type Loader struct {
	reader *Reader

	cache   map[string]*Frame
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewLoader creates a Loader on top of reader.
func NewLoader(reader *Reader) *Loader {
	return &Loader{
		reader: reader,
		cache:  make(map[string]*Frame),
	}
}

// Load returns the table at path, reading it at most once.
func (l *Loader) Load(ctx context.Context, path string) (*Frame, error) {
	l.cacheMu.RLock()
	if cached, ok := l.cache[path]; ok {
		l.cacheMu.RUnlock()
		return cached.Clone(), nil
	}
	l.cacheMu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err, _ := l.group.Do(path, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[path]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		f, err := l.reader.Load(path)
		if err != nil {
			return nil, err
		}

		l.cacheMu.Lock()
		l.cache[path] = f
		l.cacheMu.Unlock()
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Frame).Clone(), nil
}

// Forget drops every cached table. Later loads read from disk again.
func (l *Loader) Forget() {
	l.cacheMu.Lock()
	l.cache = make(map[string]*Frame)
	l.cacheMu.Unlock()
}
