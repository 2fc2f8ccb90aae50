// Package cache implements the CacheEngine (spec §4.3): a periodic tick
// that evicts over-budget cache entries and fetches+transforms fresh ones
// from the Provider. Modeled on the teacher's usecase.Synchronizer, whose
// errgroup-based parallel transfer loop this reworks into a settle-all
// download+transform pass.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"photoframe-sync/internal/domain"
	"photoframe-sync/internal/retry"
)

// Config parameterizes the tick (spec §4.3, canonical defaults noted).
type Config struct {
	TickInterval            time.Duration // 30s
	MaxCacheBytes           int64
	BatchSize               int           // 5
	EvictBatchSize          int           // 10
	OfflineFailureThreshold int           // 3
	OfflineCooldown         time.Duration // ~60s
	CacheDir                string
	BlobStorage             bool
	Transform               TransformOptions
	DownloadRetryAttempts   int           // 3
	DownloadRetryStep       time.Duration // 1s
}

// Engine runs the periodic cache-health tick. The Provider readiness check
// is delegated to a callback since provider lifecycle is owned by the
// SyncController (spec §4.4); Engine only needs to know whether it's safe
// to fetch right now.
type Engine struct {
	catalog  domain.Catalog
	provider domain.Provider
	ready    func() bool
	cfg      Config

	ticking             atomic.Bool
	consecutiveFailures int
	failuresMu          sync.Mutex
}

// New builds a CacheEngine. ready reports whether the Provider has
// completed initialization and fetching should be attempted this tick.
func New(catalog domain.Catalog, provider domain.Provider, ready func() bool, cfg Config) *Engine {
	return &Engine{catalog: catalog, provider: provider, ready: ready, cfg: cfg}
}

// Tick runs one pass. Safe to call from a timer; re-entrant calls while a
// previous tick is still running are a no-op (spec step 1).
func (e *Engine) Tick(ctx context.Context) {
	if !e.ticking.CompareAndSwap(false, true) {
		return
	}
	defer e.ticking.Store(false)

	if err := e.evictIfOverBudget(ctx); err != nil {
		log.WithError(err).Warn("cache: eviction pass failed")
	}

	if !e.ready() {
		return
	}

	if e.offlineGate(ctx) {
		return
	}

	e.fetchBatch(ctx)
}

// evictIfOverBudget implements step 2: if cache_bytes_total exceeds the
// budget, evict oldest-viewed-first candidates (§4.3.1) one at a time,
// rechecking the total after each so eviction stops as soon as the budget
// is satisfied rather than always draining a full batch.
func (e *Engine) evictIfOverBudget(ctx context.Context) error {
	for {
		total, err := e.catalog.CacheBytesTotal(ctx)
		if err != nil {
			return fmt.Errorf("cache bytes total: %w", err)
		}
		if total <= e.cfg.MaxCacheBytes {
			return nil
		}

		candidates, err := e.catalog.ListEvictionCandidates(ctx, e.cfg.EvictBatchSize)
		if err != nil {
			return fmt.Errorf("list eviction candidates: %w", err)
		}
		if len(candidates) == 0 {
			return nil
		}

		for _, c := range candidates {
			e.evictOne(ctx, c)
			total, err := e.catalog.CacheBytesTotal(ctx)
			if err != nil {
				return fmt.Errorf("cache bytes total: %w", err)
			}
			if total <= e.cfg.MaxCacheBytes {
				return nil
			}
		}
	}
}

// evictOne clears the row before unlinking the file, so a crash between
// the two steps leaves an orphaned file rather than a ghost row that would
// corrupt cache_bytes_total (SPEC_FULL.md's eviction-write-order decision).
// File unlink failures are logged but never retried inline — tolerated.
func (e *Engine) evictOne(ctx context.Context, c domain.EvictionCandidate) {
	path := c.Path
	if err := e.catalog.ClearCache(ctx, c.ID); err != nil {
		log.WithError(err).WithField("photo_id", c.ID).Warn("cache: evict clear row failed")
		return
	}
	if c.Form == domain.CacheFile && path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.WithError(err).WithField("path", path).Warn("cache: evict unlink failed, orphaned file tolerated")
		}
	}
}

// offlineGate implements step 4: after too many consecutive failed ticks,
// cool down instead of hammering an unreachable provider. Returns true if
// the tick should stop here.
func (e *Engine) offlineGate(ctx context.Context) bool {
	e.failuresMu.Lock()
	failed := e.consecutiveFailures > e.cfg.OfflineFailureThreshold
	e.failuresMu.Unlock()
	if !failed {
		return false
	}

	log.WithField("cooldown", e.cfg.OfflineCooldown).Warn("cache: too many consecutive failures, cooling down")
	select {
	case <-time.After(e.cfg.OfflineCooldown):
	case <-ctx.Done():
	}

	e.failuresMu.Lock()
	e.consecutiveFailures = 0
	e.failuresMu.Unlock()
	return true
}

// fetchBatch implements steps 5-7: pull a batch of uncached photos and
// download+transform them in parallel with settle-all semantics.
func (e *Engine) fetchBatch(ctx context.Context) {
	candidates, err := e.catalog.ListFetchCandidates(ctx, e.cfg.BatchSize)
	if err != nil {
		log.WithError(err).Warn("cache: list fetch candidates failed")
		return
	}
	if len(candidates) == 0 {
		return
	}

	var g errgroup.Group // zero-value group: no shared context, so one failure never cancels its siblings
	results := make([]bool, len(candidates))
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			ok := e.fetchOne(ctx, c)
			results[i] = ok
			return nil
		})
	}
	_ = g.Wait()

	anySucceeded := false
	for _, ok := range results {
		if ok {
			anySucceeded = true
			break
		}
	}

	e.failuresMu.Lock()
	if anySucceeded {
		e.consecutiveFailures = 0
	} else {
		e.consecutiveFailures++
	}
	e.failuresMu.Unlock()
}

func (e *Engine) fetchOne(ctx context.Context, c domain.FetchCandidate) bool {
	var result *TransformResult
	err := retry.Download(ctx, c.ID, func(ctx context.Context) error {
		src, err := e.provider.Download(ctx, c.ID)
		if err != nil {
			return err
		}
		defer src.Close()

		r, err := Transform(src, e.cfg.Transform)
		if err != nil {
			return err
		}
		result = r
		return nil
	}, e.cfg.DownloadRetryAttempts, e.cfg.DownloadRetryStep)

	if err != nil {
		log.WithError(err).WithField("photo_id", c.ID).Warn("cache: fetch failed, left unset")
		return false
	}

	width, height := transformedDims(result)

	if e.cfg.BlobStorage {
		mime := "image/jpeg"
		if !imagingAvailable {
			mime = "application/octet-stream"
		}
		if err := e.catalog.AttachBlob(ctx, c.ID, result.Data, mime, width, height); err != nil {
			log.WithError(err).WithField("photo_id", c.ID).Warn("cache: attach blob failed")
			return false
		}
		return true
	}

	path := filepath.Join(e.cfg.CacheDir, sanitizeFilename(c.ID)+".jpg")
	if err := os.WriteFile(path, result.Data, 0o644); err != nil {
		log.WithError(err).WithField("photo_id", c.ID).Warn("cache: write cache file failed")
		return false
	}
	if err := e.catalog.AttachFile(ctx, c.ID, path, int64(len(result.Data)), width, height); err != nil {
		log.WithError(err).WithField("photo_id", c.ID).Warn("cache: attach file failed")
		return false
	}
	return true
}

// transformedDims reports the post-transform dimensions as catalog-ready
// pointers, or nil when Transform didn't measure any (degraded build: the
// source is never decoded, so 0x0 would overwrite real provider-supplied
// metadata with a lie).
func transformedDims(r *TransformResult) (width, height *int) {
	if r.Width <= 0 || r.Height <= 0 {
		return nil, nil
	}
	return &r.Width, &r.Height
}

// sanitizeFilename collapses a provider photo ID (which may contain path
// separators, e.g. localdir's relative paths) into a single flat filename.
func sanitizeFilename(id string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(id)
}

// Stats reports the current cache health snapshot (spec §4.3 "Stats").
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	total, err := e.catalog.CacheBytesTotal(ctx)
	if err != nil {
		return Stats{}, err
	}
	cached, err := e.catalog.CachedCount(ctx)
	if err != nil {
		return Stats{}, err
	}
	totalCount, err := e.catalog.TotalCount(ctx)
	if err != nil {
		return Stats{}, err
	}

	e.failuresMu.Lock()
	failures := e.consecutiveFailures
	e.failuresMu.Unlock()

	return computeStats(total, e.cfg.MaxCacheBytes, cached, totalCount, failures, failures > e.cfg.OfflineFailureThreshold), nil
}
