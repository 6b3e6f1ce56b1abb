package pricing

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/comp-pricer/internal/aggregate"
	"github.com/sells-group/comp-pricer/internal/model"
	"github.com/sells-group/comp-pricer/internal/resilience"
	"github.com/sells-group/comp-pricer/internal/source"
	"github.com/sells-group/comp-pricer/internal/store"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: baseTime} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pricer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// stubProvider returns a fixed set, optionally blocking on a gate first.
type stubProvider struct {
	name  string
	set   *model.SourceObservationSet
	err   error
	gate  chan struct{}
	block atomic.Bool
	calls atomic.Int32
}

func newStub(name string, samples ...float64) *stubProvider {
	set := model.NewRawSamples(name, model.SourceTypeJobBoard, samples, 10, 0.9)
	return &stubProvider{name: name, set: &set}
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Fetch(ctx context.Context, _ source.Query) (*model.SourceObservationSet, error) {
	p.calls.Add(1)
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.block.Load() {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	cp := *p.set
	return &cp, nil
}

type harness struct {
	svc      *Service
	store    *store.SQLiteStore
	clock    *testClock
	computed atomic.Int32
}

func newHarness(t *testing.T, cfg *aggregate.Config, providers []source.Provider, opts ...Option) *harness {
	t.Helper()
	h := &harness{store: newTestStore(t), clock: newTestClock()}
	fetcher := source.NewFetcher(source.NewRegistry(providers...),
		source.WithRetry(resilience.RetryConfig{
			MaxAttempts:    1,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			Multiplier:     1,
		}),
		source.WithRateLimit("survey", 1000, 1000),
		source.WithRateLimit("board", 1000, 1000),
	)
	base := []Option{
		WithClock(h.clock.Now),
		WithComputeHook(func(string) { h.computed.Add(1) }),
	}
	h.svc = NewService(h.store, fetcher, aggregate.NewEngine(cfg), append(base, opts...)...)
	return h
}

func engineerRequest() PriceRequest {
	return PriceRequest{JobTitle: "Software Engineer", Location: "Singapore", RequesterID: 7}
}
