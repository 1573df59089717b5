package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/reelmatch/backend/internal/models"
)

type cacheEntry struct {
	items   []models.MediaItem
	expires time.Time
}

// CachingProvider wraps another Provider with a TTL-based in-memory cache
// keyed by library set plus media type, so concurrent participants of the
// same session share one upstream snapshot.
type CachingProvider struct {
	base Provider
	ttl  time.Duration

	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewCachingProvider returns a Provider that caches library snapshots for
// the provided TTL.
func NewCachingProvider(base Provider, ttl time.Duration) *CachingProvider {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingProvider{
		base:  base,
		ttl:   ttl,
		items: make(map[string]cacheEntry),
	}
}

// GetItems returns the cached snapshot when fresh, otherwise delegates to
// the underlying provider and stores the result.
func (c *CachingProvider) GetItems(ctx context.Context, libraryKeys []string, mediaType string) ([]models.MediaItem, error) {
	if c == nil || c.base == nil {
		return nil, ErrProviderUnavailable
	}

	key := cacheKey(libraryKeys, mediaType)
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.items, nil
	}

	items, err := c.base.GetItems(ctx, libraryKeys, mediaType)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.items[key] = cacheEntry{items: items, expires: now.Add(c.ttl)}
	c.mu.Unlock()

	return items, nil
}

// WatchedKeys passes through to the base provider when it supports watched
// lookups; per-user watched state is not cached.
func (c *CachingProvider) WatchedKeys(ctx context.Context, authToken, mediaType string) ([]string, error) {
	type watchedLister interface {
		WatchedKeys(ctx context.Context, authToken, mediaType string) ([]string, error)
	}
	if lister, ok := c.base.(watchedLister); ok {
		return lister.WatchedKeys(ctx, authToken, mediaType)
	}
	return nil, nil
}

func cacheKey(libraryKeys []string, mediaType string) string {
	keys := append([]string(nil), libraryKeys...)
	sort.Strings(keys)
	return strings.Join(keys, ",") + "|" + mediaType
}
