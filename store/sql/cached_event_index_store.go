package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/vitalbridge/go-healthsync/core"
)

const eventIndexCacheKeyPrefix = "healthsync::event_index::v1"

// CachedEventIndexStore puts a read-through cache in front of the event
// index so the deletion fast path usually resolves without touching the
// database. Writes go to the base store and invalidate the touched keys.
type CachedEventIndexStore struct {
	base  core.EventIndexStore
	cache repositorycache.CacheService
}

func NewCachedEventIndexStore(
	base core.EventIndexStore,
	cacheService repositorycache.CacheService,
) (*CachedEventIndexStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base event index store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: event index cache service is required")
	}
	return &CachedEventIndexStore{base: base, cache: cacheService}, nil
}

// EventIndexCacheKey returns the deterministic cache key for one source
// sample id: healthsync::event_index::v1::<source_sample_id> with the id
// URL-path escaped.
func EventIndexCacheKey(sourceSampleID string) (string, error) {
	trimmed := strings.TrimSpace(sourceSampleID)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: source sample id is required")
	}
	return eventIndexCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (s *CachedEventIndexStore) Lookup(ctx context.Context, sourceSampleIDs []string) (map[string]string, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached event index store is not configured")
	}
	out := map[string]string{}
	for _, sampleID := range sourceSampleIDs {
		cacheKey, err := EventIndexCacheKey(sampleID)
		if err != nil {
			continue
		}
		id := sampleID
		eventID, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (string, error) {
			matches, fetchErr := s.base.Lookup(ctx, []string{id})
			if fetchErr != nil {
				return "", fetchErr
			}
			found, ok := matches[id]
			if !ok {
				return "", core.ErrEventIndexEntryNotFound
			}
			return found, nil
		})
		if err != nil {
			// Misses are not cached; the slow path decides what to do.
			continue
		}
		out[sampleID] = eventID
	}
	return out, nil
}

func (s *CachedEventIndexStore) Replace(ctx context.Context, entries []core.EventIndexEntry) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached event index store is not configured")
	}
	if err := s.base.Replace(ctx, entries); err != nil {
		return err
	}
	for _, entry := range entries {
		cacheKey, err := EventIndexCacheKey(entry.SourceSampleID)
		if err != nil {
			continue
		}
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			return err
		}
	}
	return nil
}

func (s *CachedEventIndexStore) Watermark(ctx context.Context) (time.Time, bool, error) {
	if s == nil || s.base == nil {
		return time.Time{}, false, fmt.Errorf("sqlstore: cached event index store is not configured")
	}
	return s.base.Watermark(ctx)
}

func (s *CachedEventIndexStore) SaveWatermark(ctx context.Context, at time.Time) error {
	if s == nil || s.base == nil {
		return fmt.Errorf("sqlstore: cached event index store is not configured")
	}
	return s.base.SaveWatermark(ctx, at)
}

var _ core.EventIndexStore = (*CachedEventIndexStore)(nil)
