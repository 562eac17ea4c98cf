package core

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowsider/etfflow/internal/cache"
	"github.com/flowsider/etfflow/internal/flows"
)

type countingSource struct {
	calls int32
}

func (s *countingSource) Parse(ctx context.Context) (*flows.Dataset, error) {
	atomic.AddInt32(&s.calls, 1)
	return &flows.Dataset{
		Records: []flows.Record{{Instrument: "IBIT", Flow: 1}},
		Source:  "stub",
	}, nil
}

func TestRefresherWarmsImmediately(t *testing.T) {
	src := &countingSource{}
	c := cache.New(src, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRefresher(c, time.Hour, slog.New(slog.DiscardHandler))
	r.Start(ctx)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&src.calls) >= 1
	}, time.Second, 10*time.Millisecond)

	// A warm cache serves without another upstream call.
	_, err := c.Get(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
}

func TestRefresherStopsOnContextDone(t *testing.T) {
	src := &countingSource{}
	c := cache.New(src, time.Nanosecond)

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRefresher(c, 5*time.Millisecond, slog.New(slog.DiscardHandler))
	r.Start(ctx)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&src.calls) >= 2
	}, time.Second, time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	after := atomic.LoadInt32(&src.calls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&src.calls), "loop must stop after cancellation")
}