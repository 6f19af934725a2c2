package memberful

import (
	"context"
	"errors"
	"fmt"

	"github.com/Tinuki562/junior.guru/internal/cache"
	"github.com/Tinuki562/junior.guru/internal/components/telemetry"
)

const (
	report_cache_lookup = "cache.lookup"
	report_cache_store  = "cache.store"
	report_cache_clear  = "cache.clear"
)

// cacheKeyVersion is hashed into every cache key, bump it whenever the shape
// of what gets cached changes so stale entries are never read back.
const cacheKeyVersion = 1

// cacheLayer sits in front of every remote fetch of one client.
type cacheLayer struct {
	store cache.Store
	tag   string
	// clear is a one-shot flag, the first lookup after it was set evicts every
	// entry of this client's tag and consumes it
	clear bool
	tel   telemetry.API
}

func newCacheLayer(store cache.Store, tag string, clear bool, tel telemetry.API) *cacheLayer {
	return &cacheLayer{store: store, tag: tag, clear: clear, tel: tel}
}

// ClearOnNextFetch makes the next fetch evict this client's cache entries first.
func (l *cacheLayer) ClearOnNextFetch() {
	l.clear = true
}

func (l *cacheLayer) key(keyData map[string]any) (string, error) {
	versioned := make(map[string]any, len(keyData)+1)
	for k, v := range keyData {
		versioned[k] = v
	}
	versioned["cache_key_version"] = cacheKeyVersion
	return cache.HashData(versioned)
}

// fetch returns the cached value for keyData, or calls remote and caches what
// it returned. Failed remote calls are never cached.
func (l *cacheLayer) fetch(
	ctx context.Context,
	keyData map[string]any,
	remote func(ctx context.Context) ([]byte, error),
) ([]byte, error) {
	if l.store == nil {
		return remote(ctx)
	}

	if l.clear {
		l.tel.ReportDebug("clearing cache", l.tag)
		evicted, err := l.store.Evict(l.tag)
		if err != nil {
			l.tel.ReportBroken(report_cache_clear, err, l.tag)
			return nil, fmt.Errorf("clear cache: %w", err)
		}
		l.tel.ReportCount(report_cache_clear, int64(evicted))
		l.clear = false
	}

	key, err := l.key(keyData)
	if err != nil {
		l.tel.ReportBroken(report_cache_lookup, fmt.Errorf("hash key: %w", err), keyData)
		return nil, err
	}

	cached, err := l.store.Get(key)
	if err == nil {
		l.tel.ReportDebug("loading from cache", key)
		return cached, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		l.tel.ReportWarning(report_cache_lookup, err, key)
	}

	value, err := remote(ctx)
	if err != nil {
		return nil, err
	}

	l.tel.ReportDebug("saving to cache", key)
	err = l.store.Set(key, l.tag, value)
	if err != nil {
		l.tel.ReportWarning(report_cache_store, err, key)
	}
	return value, nil
}
