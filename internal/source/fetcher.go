package source

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/comp-pricer/internal/model"
	"github.com/sells-group/comp-pricer/internal/resilience"
)

const (
	defaultRate  rate.Limit = 10
	defaultBurst            = 10
)

// Result holds what a fan-out produced. Sets and Failures are ordered by
// source name.
type Result struct {
	Sets     []model.SourceObservationSet
	Failures []SourceFailure
}

// Fetcher queries providers concurrently. Each call goes through the
// source's rate limiter, retry policy and circuit breaker.
type Fetcher struct {
	registry *Registry
	breakers *resilience.SourceBreakers
	retry    resilience.RetryConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	onFailure func(source string, err error)
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithRetry sets the retry policy applied to every provider call.
func WithRetry(cfg resilience.RetryConfig) FetcherOption {
	return func(f *Fetcher) { f.retry = cfg }
}

// WithBreakers sets the per-source circuit breakers.
func WithBreakers(sb *resilience.SourceBreakers) FetcherOption {
	return func(f *Fetcher) { f.breakers = sb }
}

// WithRateLimit sets the request rate for one source.
func WithRateLimit(source string, rps float64, burst int) FetcherOption {
	return func(f *Fetcher) {
		if burst <= 0 {
			burst = 1
		}
		f.limiters[source] = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithFailureHook observes every per-source failure.
func WithFailureHook(fn func(source string, err error)) FetcherOption {
	return func(f *Fetcher) { f.onFailure = fn }
}

// NewFetcher creates a Fetcher over the registry.
func NewFetcher(reg *Registry, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		registry: reg,
		breakers: resilience.NewSourceBreakers(resilience.DefaultCircuitBreakerConfig()),
		retry:    resilience.DefaultRetryConfig(),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Breakers exposes the per-source circuit breakers.
func (f *Fetcher) Breakers() *resilience.SourceBreakers {
	return f.breakers
}

func (f *Fetcher) limiter(source string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[source]
	if !ok {
		lim = rate.NewLimiter(defaultRate, defaultBurst)
		f.limiters[source] = lim
	}
	return lim
}

// FetchObservations queries the selected providers in parallel. A failing
// source becomes a SourceFailure and never aborts the fan-out. When ctx hits
// its deadline the sets that already arrived are kept and every provider
// still running is reported as failed. Only ctx cancellation aborts.
func (f *Fetcher) FetchObservations(ctx context.Context, q Query) (*Result, error) {
	providers, err := f.registry.Select(q.Sources)
	if err != nil {
		return nil, err
	}

	sets := make([]*model.SourceObservationSet, len(providers))
	errs := make([]error, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			sets[i], errs[i] = f.fetchOne(gctx, p, q)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return nil, eris.Wrap(err, "source: fetch observations")
	}

	res := &Result{}
	for i, p := range providers {
		if errs[i] == nil && sets[i] == nil {
			errs[i] = ErrNoData
		}
		if errs[i] != nil {
			res.Failures = append(res.Failures, SourceFailure{Source: p.Name(), Err: errs[i]})
			zap.L().Warn("source: fetch failed",
				zap.String("source", p.Name()),
				zap.String("job_title", q.JobTitle),
				zap.Error(errs[i]),
			)
			if f.onFailure != nil {
				f.onFailure(p.Name(), errs[i])
			}
			continue
		}
		set := *sets[i]
		set.SourceName = p.Name()
		res.Sets = append(res.Sets, set)
	}
	return res, nil
}

// fetchOne reports a provider with no data as a nil set so the breaker does
// not count it as a failure.
func (f *Fetcher) fetchOne(ctx context.Context, p Provider, q Query) (*model.SourceObservationSet, error) {
	name := p.Name()
	lim := f.limiter(name)

	retry := f.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(name)
	}

	return resilience.Call(ctx, f.breakers.Get(name), func(ctx context.Context) (*model.SourceObservationSet, error) {
		return resilience.Do(ctx, retry, func(ctx context.Context) (*model.SourceObservationSet, error) {
			if err := lim.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "rate limiter wait")
			}
			set, err := p.Fetch(ctx, q)
			if errors.Is(err, ErrNoData) {
				return nil, nil
			}
			return set, err
		})
	})
}
