// CLAUDE:SUMMARY HTTP download with bounded retries and backoff, ZIP extraction of lookup tables.
package sources

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/geolookup/pkg/tabular"
)

// DefaultAttempts is the number of tries Download makes before giving up.
const DefaultAttempts = 3

// ErrDuplicateEntry reports an archive whose flattened entries collide.
var ErrDuplicateEntry = errors.New("duplicate archive entry")

// Downloader fetches URLs, to disk or to memory, with retries.
type Downloader struct {
	// Client defaults to a client with a 10 minute timeout.
	Client   *http.Client
	Attempts int
	// Backoff is the base delay, doubled on each retry (default 1s).
	Backoff time.Duration
}

// Download writes url to dest. Transport errors, 5xx and 429 answers are
// retried; any other non-200 answer fails at once, as does ctx cancellation.
func (d *Downloader) Download(ctx context.Context, url, dest string) error {
	return d.do(ctx, url, func(body io.Reader) error {
		f, err := os.Create(dest)
		if err != nil {
			return permanent{fmt.Errorf("create file: %w", err)}
		}
		_, copyErr := io.Copy(f, body)
		closeErr := f.Close()
		if copyErr != nil {
			return copyErr
		}
		if closeErr != nil {
			return permanent{closeErr}
		}
		return nil
	})
}

// Get returns the body of url, with the same retries as Download.
func (d *Downloader) Get(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := d.do(ctx, url, func(body io.Reader) error {
		var err error
		data, err = io.ReadAll(body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// permanent marks a consume error that a new attempt cannot fix.
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// do GETs url until consume accepts a 200 body or the attempts run out.
func (d *Downloader) do(ctx context.Context, url string, consume func(io.Reader) error) error {
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	attempts := d.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	base := d.Backoff
	if base <= 0 {
		base = time.Second
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := base << uint(attempt-1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
			if !retryable(resp.StatusCode) {
				return fmt.Errorf("download %s: %w", url, lastErr)
			}
			continue
		}

		err = consume(resp.Body)
		resp.Body.Close()
		if err == nil {
			return nil
		}
		var p permanent
		if errors.As(err, &p) {
			return p.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}
	return fmt.Errorf("download %s failed after %d attempts: %w", url, attempts, lastErr)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Download fetches url to dest with the default Downloader.
func Download(ctx context.Context, url, dest string) error {
	return (&Downloader{}).Download(ctx, url, dest)
}

// Unzip extracts the lookup tables (.csv, .xlsx) of a ZIP archive into
// destDir, flattening directories, and returns the extracted paths. Two
// entries with the same base name are an error; nothing is written then.
func Unzip(src, destDir string) ([]string, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	var entries []*zip.File
	origin := make(map[string]string)
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !tabular.Supported(f.Name) {
			continue
		}
		base := filepath.Base(f.Name)
		if prev, ok := origin[base]; ok {
			return nil, fmt.Errorf("%w: %s and %s both extract to %s", ErrDuplicateEntry, prev, f.Name, base)
		}
		origin[base] = f.Name
		entries = append(entries, f)
	}

	var paths []string
	for _, f := range entries {
		destPath := filepath.Join(destDir, filepath.Base(f.Name))
		if err := extractOne(f, destPath); err != nil {
			return nil, err
		}
		paths = append(paths, destPath)
	}
	return paths, nil
}

func extractOne(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out.Close()
}
