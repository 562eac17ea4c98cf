package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowsider/etfflow/internal/cache"
)

// Refresher keeps the cache warm so interactive requests rarely pay the
// upstream round trip. Failures are logged, not fatal: the cache keeps its
// last good entry and the next tick retries from scratch.
type Refresher struct {
	cache    *cache.Cache
	interval time.Duration
	logger   *slog.Logger
}

func NewRefresher(c *cache.Cache, interval time.Duration, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{cache: c, interval: interval, logger: logger}
}

func (r *Refresher) Start(ctx context.Context) {
	go r.loop(ctx)
}

func (r *Refresher) loop(ctx context.Context) {
	r.warm(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.warm(ctx)
		}
	}
}

func (r *Refresher) warm(ctx context.Context) {
	ds, err := r.cache.Get(ctx)
	if err != nil {
		r.logger.Warn("background refresh failed", "error", err)
		return
	}
	r.logger.Info("flows cache warm", "records", len(ds.Records), "source", ds.Source)
}
