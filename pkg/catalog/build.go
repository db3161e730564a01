// CLAUDE:SUMMARY Scans <root>/<collection>/*.{csv,xlsx} in parallel (ordered), profiling code columns; BuildOrLoad prefers the JSON cache.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hazyhaar/geolookup/pkg/tabular"
	"golang.org/x/sync/errgroup"
)

// DefaultCacheFile is the cache name used when Options.CacheFile is empty.
const DefaultCacheFile = "lookup_index.json"

// Options configures catalog construction.
type Options struct {
	Convention Convention
	// CacheFile is the cache path; relative paths are resolved against the root.
	CacheFile string
	// Workers bounds parallel file profiling (default GOMAXPROCS).
	Workers int
	Logger  *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// CachePath returns the absolute location of the cache for root.
func (o Options) CachePath(root string) string {
	name := o.CacheFile
	if name == "" {
		name = DefaultCacheFile
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(root, name)
}

// BuildOrLoad returns the catalog for root. A readable cache is used as is;
// otherwise the directory is scanned and the cache written. A cache that
// cannot be parsed triggers a rescan, and a cache that cannot be written is
// only logged.
func BuildOrLoad(ctx context.Context, root string, opts Options) (*Catalog, error) {
	logger := opts.logger()
	cachePath := opts.CachePath(root)

	cat, err := ReadCache(cachePath, root)
	switch {
	case err == nil:
		logger.Info("lookup index loaded", "cache", cachePath, "tables", len(cat.Tables()))
		return cat, nil
	case errors.Is(err, os.ErrNotExist):
		logger.Info("no lookup index, scanning lookup tables", "root", root)
	default:
		logger.Warn("lookup index unreadable, rescanning", "cache", cachePath, "error", err)
	}

	cat, err = Scan(ctx, root, opts)
	if err != nil {
		return nil, err
	}
	if err := WriteCache(cachePath, cat); err != nil {
		logger.Warn("could not write lookup index, continuing in memory", "cache", cachePath, "error", err)
	}
	return cat, nil
}

// Invalidate deletes the cache so the next BuildOrLoad rescans.
func Invalidate(root string, opts Options) error {
	err := os.Remove(opts.CachePath(root))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lookup index: %w", err)
	}
	return nil
}

// Scan reads every immediate subdirectory of root as a collection and every
// file within as a lookup table. Files that cannot be read are skipped with a
// warning. The result order does not depend on scheduling.
func Scan(ctx context.Context, root string, opts Options) (*Catalog, error) {
	conv := opts.Convention.WithDefaults()
	logger := opts.logger()
	reader := &tabular.Reader{Ignored: conv.IgnoredColumns, Logger: logger}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read lookups dir %s: %w", root, err)
	}

	type job struct {
		collection *Collection
		name       string
	}
	cat := &Catalog{Root: root}
	var jobs []job
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		col := &Collection{Name: entry.Name()}
		cat.Collections = append(cat.Collections, col)

		files, err := os.ReadDir(filepath.Join(root, entry.Name()))
		if err != nil {
			logger.Warn("skipping unreadable collection", "collection", entry.Name(), "error", err)
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			jobs = append(jobs, job{collection: col, name: f.Name()})
		}
	}

	results := make([]*LookupTable, len(jobs))
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(root, j.collection.Name, j.name)
			t, err := profileTable(reader, conv, path)
			if err != nil {
				logger.Warn("skipping lookup file", "collection", j.collection.Name, "file", j.name, "error", err)
				return nil
			}
			t.Name = j.name
			t.Collection = j.collection.Name
			results[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan lookups: %w", err)
	}

	for i, j := range jobs {
		if results[i] != nil {
			j.collection.Tables = append(j.collection.Tables, results[i])
		}
	}
	return cat, nil
}

func profileTable(reader *tabular.Reader, conv Convention, path string) (*LookupTable, error) {
	prof, err := reader.Profile(path, conv.IsCodeColumn)
	if err != nil {
		return nil, err
	}
	t := &LookupTable{
		Columns:                 append([]string{}, prof.Columns...),
		CodeColumns:             []string{},
		CodeColumnCardinalities: []int{},
	}
	for _, c := range prof.Columns {
		if conv.IsCodeColumn(c) {
			t.CodeColumns = append(t.CodeColumns, c)
			t.CodeColumnCardinalities = append(t.CodeColumnCardinalities, prof.Cardinality[c])
		}
	}
	return t, nil
}
