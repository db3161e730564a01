// CLAUDE:SUMMARY Fetcher: downloads registered lookup sources into <lookups>/<collection>/ and invalidates the catalog cache.
package sources

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/geolookup/pkg/catalog"
)

// Fetcher populates the lookup directory from the source registry.
type Fetcher struct {
	DB         *SourceDB
	Root       string
	Catalog    catalog.Options
	Downloader *Downloader
	Logger     *slog.Logger
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Fetch downloads one source and returns the lookup files it produced. The
// catalog cache is removed so the next load rescans.
func (f *Fetcher) Fetch(ctx context.Context, id string) ([]string, error) {
	src, err := f.DB.Get(id)
	if err != nil {
		return nil, err
	}
	paths, err := f.fetch(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}
	if err := f.DB.MarkFetched(id); err != nil {
		f.logger().Warn("could not record fetch", "source", id, "error", err)
	}
	if err := catalog.Invalidate(f.Root, f.Catalog); err != nil {
		return paths, err
	}
	f.logger().Info("lookup source fetched", "source", id, "collection", src.Collection, "files", len(paths))
	return paths, nil
}

// FetchAll fetches every registered source, optionally restricted to one
// collection. Failures are logged and counted; the first one is returned.
func (f *Fetcher) FetchAll(ctx context.Context, collection string) (int, error) {
	all, err := f.DB.ListSources()
	if err != nil {
		return 0, err
	}
	var (
		n        int
		firstErr error
	)
	for _, src := range all {
		if collection != "" && src.Collection != collection {
			continue
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, err := f.Fetch(ctx, src.ID); err != nil {
			f.logger().Error("fetch failed", "source", src.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		n++
	}
	return n, firstErr
}

func (f *Fetcher) fetch(ctx context.Context, src Source) ([]string, error) {
	dir := filepath.Join(f.Root, src.Collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create collection dir: %w", err)
	}

	dl := f.Downloader
	if dl == nil {
		dl = &Downloader{}
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := dl.Download(ctx, src.SourceURL, tmpPath); err != nil {
		return nil, err
	}

	if isArchive(src.SourceURL, src.File) {
		paths, err := Unzip(tmpPath, dir)
		if err != nil {
			return nil, err
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("archive holds no lookup tables")
		}
		return paths, nil
	}

	name := src.File
	if name == "" {
		name = fileNameFromURL(src.SourceURL)
	}
	if name == "" {
		return nil, fmt.Errorf("cannot derive a file name from %s", src.SourceURL)
	}
	dest := filepath.Join(dir, name)
	if err := os.Rename(tmpPath, dest); err != nil {
		return nil, fmt.Errorf("move download: %w", err)
	}
	return []string{dest}, nil
}

func fileNameFromURL(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	name := path.Base(u)
	if name == "." || name == "/" || !strings.Contains(name, ".") {
		return ""
	}
	return name
}
