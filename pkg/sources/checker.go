// CLAUDE:SUMMARY Periodic HEAD checks of lookup sources: reachability, upstream Last-Modified, and staleness against the last download.
package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckConcurrency bounds the HEAD requests a Checker runs at once.
const DefaultCheckConcurrency = 4

// Summary counts the outcome of one CheckAll pass. Stale sources are also
// counted as OK.
type Summary struct {
	OK     int
	Failed int
	Stale  []string
}

// Checker verifies every registered lookup source with a HEAD request,
// records the upstream Last-Modified, and reports sources whose published
// table is newer than the copy in the lookup directory.
type Checker struct {
	db          *SourceDB
	logger      *slog.Logger
	interval    time.Duration
	client      *http.Client
	concurrency int
}

// NewChecker creates a Checker that runs every interval once started.
func NewChecker(db *SourceDB, logger *slog.Logger, interval time.Duration) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		db:          db,
		logger:      logger,
		interval:    interval,
		concurrency: DefaultCheckConcurrency,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Start checks immediately, then every interval until ctx is done.
func (c *Checker) Start(ctx context.Context) {
	c.CheckAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckAll(ctx)
		}
	}
}

// CheckAll checks every source and persists each result.
func (c *Checker) CheckAll(ctx context.Context) Summary {
	list, err := c.db.ListSources()
	if err != nil {
		c.logger.Error("source check: cannot list sources", "error", err)
		return Summary{}
	}

	checks := make([]Check, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, src := range list {
		g.Go(func() error {
			checks[i] = c.check(gctx, src.SourceURL)
			return nil
		})
	}
	g.Wait()

	var sum Summary
	for i, src := range list {
		if ctx.Err() != nil {
			return sum
		}
		chk := checks[i]
		if err := c.db.UpdateCheck(src.ID, chk); err != nil {
			c.logger.Error("source check: update failed", "source", src.ID, "error", err)
			continue
		}

		if chk.Status < 200 || chk.Status >= 400 {
			sum.Failed++
			c.logger.Warn("lookup source unreachable",
				"source", src.ID, "url", src.SourceURL, "status", chk.Status, "error", chk.Err)
			continue
		}
		sum.OK++

		updated, err := c.db.Get(src.ID)
		if err != nil {
			c.logger.Error("source check: reload failed", "source", src.ID, "error", err)
			continue
		}
		if updated.Stale() {
			sum.Stale = append(sum.Stale, src.ID)
			c.logger.Info("lookup source changed upstream",
				"source", src.ID, "modified", time.Unix(*updated.LastModified, 0).UTC())
		}
	}

	c.logger.Info("source check complete",
		"total", len(list), "ok", sum.OK, "failed", sum.Failed, "stale", len(sum.Stale))
	return sum
}

// check sends one HEAD request. Redirects are followed so that the final
// resource's Last-Modified is the one recorded.
func (c *Checker) check(ctx context.Context, url string) Check {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return Check{Err: fmt.Sprintf("build request: %v", err)}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Check{Err: fmt.Sprintf("HEAD %s: %v", url, err)}
	}
	resp.Body.Close()

	chk := Check{Status: resp.StatusCode}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			chk.LastModified = t
		} else {
			c.logger.Debug("unparsable Last-Modified", "url", url, "value", lm)
		}
	}
	return chk
}
