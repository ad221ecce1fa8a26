package catalog

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	appLog "courseplan/internal/log"
	"courseplan/internal/model"
)

// CacheRecorder receives cache hit/miss observations.
type CacheRecorder interface {
	RecordCacheHit()
	RecordCacheMiss()
}

const defaultFetchTimeout = time.Minute

// FetchFunc produces the record for a cache miss.
type FetchFunc func(ctx context.Context) (model.SelectionRecord, error)

// Cache is the process-wide memo of fetched course records, keyed by the
// course's class number. Entries never expire and are never replaced:
// the first stored snapshot wins. Records go in and come out as deep
// copies so callers can never mutate a cached snapshot.
type Cache struct {
	store        *gocache.Cache
	group        singleflight.Group
	metrics      CacheRecorder
	fetchTimeout time.Duration
}

// NewCache creates an empty cache. metrics may be nil. fetchTimeout bounds
// one shared fetch; zero means one minute.
func NewCache(metrics CacheRecorder, fetchTimeout time.Duration) *Cache {
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	return &Cache{
		// No default expiration and no janitor goroutine.
		store:        gocache.New(gocache.NoExpiration, 0),
		metrics:      metrics,
		fetchTimeout: fetchTimeout,
	}
}

// Lookup returns the cached record for id.
func (c *Cache) Lookup(id model.ID) (model.SelectionRecord, bool) {
	rec, ok := c.get(id)
	if c.metrics != nil {
		if ok {
			c.metrics.RecordCacheHit()
		} else {
			c.metrics.RecordCacheMiss()
		}
	}
	return rec, ok
}

// Store saves rec under id unless id is already present. It reports
// whether the record was stored.
func (c *Cache) Store(id model.ID, rec model.SelectionRecord) bool {
	if id == "" {
		return false
	}
	return c.store.Add(string(id), rec.Clone(), gocache.NoExpiration) == nil
}

// Len reports the number of cached records.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

// Load returns the cached record for id, or calls fetch and stores its
// result. Concurrent loads of the same id share a single fetch. The
// second return value reports whether the record came from the cache.
//
// The shared fetch does not inherit the cancellation of the caller that
// started it; a cancelled caller stops waiting and the others still get
// the result.
func (c *Cache) Load(ctx context.Context, id model.ID, fetch FetchFunc) (model.SelectionRecord, bool, error) {
	if rec, ok := c.get(id); ok {
		return rec, true, nil
	}

	ch := c.group.DoChan(string(id), func() (any, error) {
		// Another flight may have completed between get and DoChan.
		if rec, ok := c.get(id); ok {
			return rec, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		rec, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		if !c.Store(id, rec) {
			appLog.Debug("catalog cache already populated", "id", id)
		}
		// Return whatever is cached so every caller sees the same snapshot.
		if cached, ok := c.get(id); ok {
			return cached, nil
		}
		return rec, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return model.SelectionRecord{}, false, res.Err
		}
		rec := res.Val.(model.SelectionRecord)
		return rec.Clone(), false, nil
	case <-ctx.Done():
		return model.SelectionRecord{}, false, ctx.Err()
	}
}

func (c *Cache) get(id model.ID) (model.SelectionRecord, bool) {
	v, ok := c.store.Get(string(id))
	if !ok {
		return model.SelectionRecord{}, false
	}
	rec, ok := v.(model.SelectionRecord)
	if !ok {
		return model.SelectionRecord{}, false
	}
	return rec.Clone(), true
}
