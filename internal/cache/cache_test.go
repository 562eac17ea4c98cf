package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsider/etfflow/internal/flows"
)

type stubSource struct {
	mu    sync.Mutex
	calls int32
	ds    *flows.Dataset
	err   error
	delay time.Duration
}

func (s *stubSource) Parse(ctx context.Context) (*flows.Dataset, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ds, s.err
}

func (s *stubSource) set(ds *flows.Dataset, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ds, s.err = ds, err
}

func (s *stubSource) callCount() int {
	return int(atomic.LoadInt32(&s.calls))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sampleDataset(source string) *flows.Dataset {
	return &flows.Dataset{
		Records: []flows.Record{
			{Date: time.Date(2024, time.January, 11, 0, 0, 0, 0, time.UTC), Instrument: "IBIT", Flow: 1e6},
		},
		Source: source,
	}
}

func TestGetCachesWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	src := &stubSource{ds: sampleDataset("direct")}
	c := New(src, 10*time.Minute, WithClock(clock.Now))

	first, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.callCount())

	clock.Advance(9 * time.Minute)
	second, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second, "fresh entry must be returned without refetching")
	assert.Equal(t, 1, src.callCount())
}

func TestGetRefreshesAfterTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	src := &stubSource{ds: sampleDataset("direct")}
	c := New(src, 10*time.Minute, WithClock(clock.Now))

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)
	src.set(sampleDataset("fallback"), nil)

	ds, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount(), "expiry triggers exactly one new fetch")
	assert.Equal(t, "fallback", ds.Source)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	src := &stubSource{ds: sampleDataset("direct")}
	c := New(src, time.Hour, WithClock(clock.Now))

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	c.Invalidate()
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount())
}

func TestFailedRefreshPreservesLastGood(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	src := &stubSource{ds: sampleDataset("direct")}
	c := New(src, 10*time.Minute, WithClock(clock.Now))

	good, err := c.Get(context.Background())
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)
	src.set(nil, errors.New("all sources down"))

	_, err = c.Get(context.Background())
	require.Error(t, err, "refresh failures must be visible, not masked with stale data")

	kept, ok := c.LastGood()
	require.True(t, ok)
	assert.Same(t, good, kept, "failed refresh must not overwrite the last good dataset")
}

func TestEmptyRefreshIsAFailure(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	src := &stubSource{ds: sampleDataset("direct")}
	c := New(src, 10*time.Minute, WithClock(clock.Now))

	good, err := c.Get(context.Background())
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)
	src.set(&flows.Dataset{Source: "direct"}, nil)

	_, err = c.Get(context.Background())
	assert.Error(t, err)

	kept, ok := c.LastGood()
	require.True(t, ok)
	assert.Same(t, good, kept)
}

func TestErrorBeforeFirstSuccessLeavesNoEntry(t *testing.T) {
	src := &stubSource{err: errors.New("boom")}
	c := New(src, 10*time.Minute)

	_, err := c.Get(context.Background())
	require.Error(t, err)

	_, ok := c.LastGood()
	assert.False(t, ok, "no entry exists before the first successful fetch")
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	src := &stubSource{ds: sampleDataset("direct"), delay: 50 * time.Millisecond}
	c := New(src, time.Hour)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*flows.Dataset, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			ds, err := c.Get(context.Background())
			assert.NoError(t, err)
			results[i] = ds
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, src.callCount(), "concurrent misses must share one in-flight fetch")
	for _, ds := range results {
		assert.Same(t, results[0], ds)
	}
}
