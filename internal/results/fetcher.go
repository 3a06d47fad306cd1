// Package results performs the strongly-consistent read of a completed job's
// results past the job-result cache.
package results

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ripclass/lcvalidate/internal/cache"
	"github.com/ripclass/lcvalidate/internal/lchub"
	"github.com/ripclass/lcvalidate/pkg/models"
)

// DefaultTTL bounds how long a normalized result stays cached.
const DefaultTTL = 30 * time.Minute

// Source is the slice of the API client the fetcher needs.
type Source interface {
	RawResults(ctx context.Context, jobID string) ([]byte, error)
}

// Fetcher is the only writer of the job-result cache. Its write protocol is
// idempotent and convergent, so readers that observe the transitional
// invalidated state simply fall through to origin.
type Fetcher struct {
	source Source
	cache  cache.Cache
	ttl    time.Duration
}

// NewFetcher creates a Fetcher. A non-positive ttl falls back to DefaultTTL.
func NewFetcher(source Source, c cache.Cache, ttl time.Duration) *Fetcher {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Fetcher{source: source, cache: c, ttl: ttl}
}

// FreshResults guarantees the caller observes a result computed after the
// job's terminal transition, even when the cache holds an older
// representation. In order: invalidate the cached entry, force a read from
// origin, normalize, and store the normalized value as the new entry. It
// never serves from cache; reordering these steps reintroduces the
// stale-read race this method exists to prevent.
func (f *Fetcher) FreshResults(ctx context.Context, jobID string) (*models.ValidationResults, error) {
	key := cache.ResultKey(jobID)

	if err := f.cache.Delete(ctx, key); err != nil {
		// A failed invalidation cannot make the read stale, because the
		// read below bypasses the cache entirely.
		slog.Warn("invalidating cached results failed", "job_id", jobID, "error", err)
	}

	raw, err := f.source.RawResults(ctx, jobID)
	if err != nil {
		return nil, err
	}

	res, err := lchub.ParseResults(jobID, raw)
	if err != nil {
		return nil, err
	}

	if buf, merr := json.Marshal(res); merr == nil {
		if err := f.cache.Set(ctx, key, buf, f.ttl); err != nil {
			slog.Warn("caching results failed", "job_id", jobID, "error", err)
		}
	}

	return res, nil
}

// CachedResults is the ordinary read-through path for non-critical reads.
// A miss or an unreadable entry falls through to FreshResults.
func (f *Fetcher) CachedResults(ctx context.Context, jobID string) (*models.ValidationResults, error) {
	buf, found, err := f.cache.Get(ctx, cache.ResultKey(jobID))
	if err == nil && found {
		var res models.ValidationResults
		if uerr := json.Unmarshal(buf, &res); uerr == nil {
			return &res, nil
		}
	}
	return f.FreshResults(ctx, jobID)
}
