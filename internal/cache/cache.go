// Package cache holds the single process-wide slot for the last successful
// flows dataset. Concurrent cache-miss callers share one in-flight pipeline
// run, and a failed or empty refresh never overwrites a previously good
// entry.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/flowsider/etfflow/internal/flows"
)

// DefaultTTL mirrors the upstream's update cadence: the page changes once a
// day, so half-hour freshness is plenty.
const DefaultTTL = 30 * time.Minute

// Source produces a fresh dataset; satisfied by parser.Parser.
type Source interface {
	Parse(ctx context.Context) (*flows.Dataset, error)
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock injects a clock, making TTL behavior testable.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache memoizes the last successful dataset with an expiry instant.
type Cache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time
	group  singleflight.Group

	mu      sync.Mutex
	ds      *flows.Dataset
	expires time.Time
}

func New(source Source, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached dataset while it is fresh, refreshing through the
// pipeline otherwise. A refresh failure propagates to the caller instead of
// silently serving stale data, but the stored entry is left untouched so a
// bad upstream day never destroys the last good dataset.
func (c *Cache) Get(ctx context.Context) (*flows.Dataset, error) {
	if ds, ok := c.fresh(); ok {
		return ds, nil
	}

	v, err, _ := c.group.Do("flows", func() (interface{}, error) {
		// A caller that waited on an in-flight refresh finds the slot
		// already repopulated.
		if ds, ok := c.fresh(); ok {
			return ds, nil
		}

		ds, err := c.source.Parse(ctx)
		if err != nil {
			return nil, err
		}
		if ds.Empty() {
			return nil, fmt.Errorf("refresh produced an empty dataset")
		}

		c.mu.Lock()
		c.ds = ds
		c.expires = c.now().Add(c.ttl)
		c.mu.Unlock()
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*flows.Dataset), nil
}

// Invalidate forces the next Get to bypass the stored entry. The dataset
// itself is kept as last-good.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.expires = time.Time{}
	c.mu.Unlock()
}

// LastGood returns the most recent successful dataset regardless of
// freshness, for consumers that prefer stale-with-warning over nothing.
func (c *Cache) LastGood() (*flows.Dataset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ds, c.ds != nil
}

func (c *Cache) fresh() (*flows.Dataset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ds != nil && c.now().Before(c.expires) {
		return c.ds, true
	}
	return nil, false
}
