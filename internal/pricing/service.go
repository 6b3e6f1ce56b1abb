// Package pricing answers compensation pricing requests: it deduplicates
// them by fingerprint, serves fresh cached results, and otherwise fetches
// source data, aggregates it and publishes a new result version.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/comp-pricer/internal/aggregate"
	"github.com/sells-group/comp-pricer/internal/fingerprint"
	"github.com/sells-group/comp-pricer/internal/metrics"
	"github.com/sells-group/comp-pricer/internal/model"
	"github.com/sells-group/comp-pricer/internal/source"
	"github.com/sells-group/comp-pricer/internal/store"
	"github.com/sells-group/comp-pricer/internal/taxonomy"
)

// SourceFetcher retrieves observation sets for a query.
type SourceFetcher interface {
	FetchObservations(ctx context.Context, q source.Query) (*source.Result, error)
}

// Service is the pricing entry point.
type Service struct {
	store     store.Store
	ledger    *Ledger
	cache     *Cache
	versioner *Versioner
	coord     *Coordinator
	fetcher   SourceFetcher
	engine    *aggregate.Engine

	matcher       taxonomy.Matcher
	minMatchScore float64

	metrics     *metrics.Metrics
	now         func() time.Time
	computeHook func(fingerprint string)
	deadline    time.Duration
	retain      int
}

// Option configures a Service.
type Option func(*Service)

// WithMatcher enables job-family filtering of observation sets whose match
// score is at least minScore.
func WithMatcher(m taxonomy.Matcher, minScore float64) Option {
	return func(s *Service) {
		s.matcher = m
		s.minMatchScore = minScore
	}
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithComputeHook is called once per executed aggregation.
func WithComputeHook(fn func(fingerprint string)) Option {
	return func(s *Service) { s.computeHook = fn }
}

// WithDefaultDeadline bounds source retrieval for requests without their own.
func WithDefaultDeadline(d time.Duration) Option {
	return func(s *Service) { s.deadline = d }
}

// WithRetention sets how many result versions are kept per request.
func WithRetention(n int) Option {
	return func(s *Service) { s.retain = n }
}

// NewService wires the pricing pipeline.
func NewService(st store.Store, fetcher SourceFetcher, engine *aggregate.Engine, opts ...Option) *Service {
	s := &Service{
		store:   st,
		fetcher: fetcher,
		engine:  engine,
		coord:   NewCoordinator(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.engine == nil {
		s.engine = aggregate.NewEngine(nil)
	}
	s.ledger = NewLedger(st)
	s.cache = NewCache(st)
	s.versioner = NewVersioner(st, s.retain)
	return s
}

// Price returns a recommendation for req, from cache when a fresh result
// exists, otherwise by computing one. At most one computation per
// fingerprint runs at a time; concurrent callers wait for it and read its
// result, or get Busy when req.NonBlocking is set.
func (s *Service) Price(ctx context.Context, req PriceRequest) (*PricingResponse, error) {
	fp, err := fingerprint.Generate(req.JobTitle, req.Location, req.RequesterID)
	if err != nil {
		return nil, newError(KindInvalidRequest, err)
	}
	log := zap.L().With(zap.String("fingerprint", fp))

	request, err := s.ledger.FindOrCreate(ctx, fp, req, s.now())
	if err != nil {
		s.metrics.ObserveRequest(metrics.OutcomeFailed)
		return nil, newError(KindStoreError, err)
	}

	if !req.ForceRefresh {
		if resp, ok, err := s.fromCache(ctx, request); err != nil || ok {
			if ok {
				log.Debug("pricing: cache hit", zap.String("result_id", resp.ResultID))
				s.metrics.ObserveRequest(metrics.OutcomeCacheHit)
			}
			return resp, err
		}
	}

	for {
		leader, release, err := s.coord.Acquire(ctx, fp, req.NonBlocking)
		if errors.Is(err, ErrBusy) {
			s.metrics.ObserveRequest(metrics.OutcomeBusy)
			return nil, newError(KindBusy, err)
		}
		if err != nil {
			return nil, err
		}

		if !leader {
			resp, ok, err := s.fromCache(ctx, request)
			if err != nil {
				return nil, err
			}
			if ok {
				log.Debug("pricing: served result of concurrent computation", zap.String("result_id", resp.ResultID))
				s.metrics.ObserveRequest(metrics.OutcomeWaited)
				return resp, nil
			}
			// The leader published nothing fresh; compete for leadership again.
			continue
		}

		return s.lead(ctx, fp, request, req, release)
	}
}

func (s *Service) fromCache(ctx context.Context, request *model.PricingRequest) (*PricingResponse, bool, error) {
	r, ok, err := s.cache.GetFresh(ctx, request.ID, s.now())
	s.metrics.ObserveCache(ok)
	if err != nil {
		return nil, false, newError(KindStoreError, err)
	}
	if !ok {
		return nil, false, nil
	}
	return newResponse(request, r, true, false), true, nil
}

// lead runs the computation for a fingerprint. release is deferred so the
// lock is dropped on every exit path, panics included.
func (s *Service) lead(ctx context.Context, fp string, request *model.PricingRequest, req PriceRequest, release func()) (*PricingResponse, error) {
	defer release()
	log := zap.L().With(zap.String("fingerprint", fp), zap.String("request_id", request.ID))

	if !req.ForceRefresh {
		if resp, ok, err := s.fromCache(ctx, request); err != nil || ok {
			if ok {
				s.metrics.ObserveRequest(metrics.OutcomeCacheHit)
			}
			return resp, err
		}
	}

	if err := s.ledger.MarkStatus(ctx, request.ID, model.RequestStatusProcessing); err != nil {
		return nil, newError(KindStoreError, err)
	}
	start := time.Now()

	deadline := req.Deadline
	if deadline <= 0 {
		deadline = s.deadline
	}
	fetchCtx, cancel := ctx, context.CancelFunc(func() {})
	if deadline > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, deadline)
	}
	res, err := s.fetcher.FetchObservations(fetchCtx, source.Query{
		JobTitle:    request.JobTitle,
		Location:    request.LocationText,
		Description: req.Description,
		Sources:     req.Sources,
	})
	timedOut := errors.Is(fetchCtx.Err(), context.DeadlineExceeded)
	cancel()

	// Once the caller's deadline has passed the outcome is still recorded.
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		ctx = context.WithoutCancel(ctx)
	}

	switch {
	case err == nil:
	case errors.Is(err, source.ErrUnknownSource):
		s.markFailed(ctx, request.ID)
		return nil, newError(KindInvalidRequest, err)
	case errors.Is(err, context.Canceled):
		s.markFailed(ctx, request.ID)
		return nil, eris.Wrap(err, "pricing: request cancelled")
	default:
		log.Warn("pricing: source retrieval failed", zap.Error(err))
		return s.staleFallback(ctx, request, err)
	}

	if timedOut {
		log.Warn("pricing: source retrieval hit deadline",
			zap.Duration("deadline", deadline),
			zap.Int("answered", len(res.Sets)),
			zap.Int("failed", len(res.Failures)),
		)
	}

	sets := res.Sets
	rejected := make([]aggregate.Rejection, 0, len(res.Failures))
	unavailable := 0
	for _, f := range res.Failures {
		reason := aggregate.ReasonUnavailable
		if errors.Is(f.Err, source.ErrNoData) {
			reason = aggregate.ReasonNoSamples
		} else {
			unavailable++
		}
		rejected = append(rejected, aggregate.Rejection{Source: f.Source, Reason: reason, Detail: f.Err.Error()})
	}
	if len(sets) == 0 && unavailable > 0 {
		log.Warn("pricing: no source available", zap.Int("failures", unavailable))
		return s.staleFallback(ctx, request, eris.Errorf("pricing: %d of %d sources unavailable", unavailable, len(res.Failures)))
	}
	sets, rejected = s.filterTaxonomy(ctx, request.JobTitle, sets, rejected)

	if s.computeHook != nil {
		s.computeHook(fp)
	}
	out, err := s.engine.Aggregate(aggregate.Input{
		JobTitle: request.JobTitle,
		Location: request.LocationText,
		Sets:     sets,
		Rejected: rejected,
	})
	if err != nil {
		s.markFailed(ctx, request.ID)
		if errors.Is(err, aggregate.ErrInsufficientData) {
			log.Info("pricing: insufficient data", zap.Error(err))
			s.metrics.ObserveRequest(metrics.OutcomeInsufficient)
			return nil, newError(KindInsufficientData, err)
		}
		log.Error("pricing: aggregation failed", zap.Error(err))
		s.metrics.ObserveRequest(metrics.OutcomeFailed)
		return nil, err
	}

	calculatedAt := s.now()
	expiresAt := ExpiresAt(calculatedAt, out.Sources, s.engine.Config())
	saved, err := s.versioner.Publish(ctx, request.ID, out, calculatedAt, expiresAt)
	if err != nil {
		s.markFailed(ctx, request.ID)
		log.Error("pricing: publish result failed", zap.Error(err))
		s.metrics.ObserveRequest(metrics.OutcomeFailed)
		return nil, newError(KindStoreError, err)
	}
	s.metrics.ObserveCompute(time.Since(start))
	s.metrics.ObserveRequest(metrics.OutcomeComputed)

	log.Info("pricing: published result",
		zap.String("result_id", saved.ID),
		zap.Int("version", saved.Version),
		zap.Float64("target_salary", saved.TargetSalary),
		zap.Float64("confidence", saved.ConfidenceScore),
	)
	request.Status = model.RequestStatusCompleted
	return newResponse(request, saved, false, false), nil
}

// staleFallback serves the latest result, expired or not, when sources
// could not be read. Without one the request fails as SourceUnavailable.
func (s *Service) staleFallback(ctx context.Context, request *model.PricingRequest, cause error) (*PricingResponse, error) {
	latest, err := s.cache.GetLatest(ctx, request.ID)
	if err != nil {
		s.markFailed(ctx, request.ID)
		return nil, newError(KindStoreError, err)
	}
	if latest == nil {
		s.markFailed(ctx, request.ID)
		s.metrics.ObserveRequest(metrics.OutcomeFailed)
		return nil, newError(KindSourceUnavailable, cause)
	}
	if err := s.ledger.MarkStatus(context.WithoutCancel(ctx), request.ID, model.RequestStatusCompleted); err != nil {
		zap.L().Warn("pricing: restore request status failed", zap.String("request_id", request.ID), zap.Error(err))
	}
	s.metrics.ObserveRequest(metrics.OutcomeStale)
	request.Status = model.RequestStatusCompleted
	return newResponse(request, latest, true, latest.Expired(s.now())), nil
}

func (s *Service) filterTaxonomy(ctx context.Context, title string, sets []model.SourceObservationSet, rejected []aggregate.Rejection) ([]model.SourceObservationSet, []aggregate.Rejection) {
	if s.matcher == nil {
		return sets, rejected
	}
	match, err := s.matcher.MatchJobFamily(ctx, title)
	if err != nil {
		zap.L().Warn("pricing: taxonomy match failed", zap.String("job_title", title), zap.Error(err))
		return sets, rejected
	}
	kept, dropped := taxonomy.Filter(sets, match, s.minMatchScore)
	for _, name := range dropped {
		rejected = append(rejected, aggregate.Rejection{
			Source: name,
			Reason: aggregate.ReasonOffTaxonomy,
			Detail: "expected " + match.JobCode,
		})
	}
	return kept, rejected
}

func (s *Service) markFailed(ctx context.Context, requestID string) {
	if err := s.ledger.MarkStatus(context.WithoutCancel(ctx), requestID, model.RequestStatusFailed); err != nil {
		zap.L().Warn("pricing: mark request failed", zap.String("request_id", requestID), zap.Error(err))
	}
}

// GetHistory lists results newest first. limit defaults to 20 and is capped
// at 100.
func (s *Service) GetHistory(ctx context.Context, limit, offset int) ([]model.PricingResultSummary, error) {
	out, err := s.store.ListResults(ctx, store.ResultFilter{Limit: limit, Offset: offset})
	if err != nil {
		return nil, newError(KindStoreError, err)
	}
	return out, nil
}

// GetByID returns a stored result with its request.
func (s *Service) GetByID(ctx context.Context, resultID string) (*PricingResultDetail, error) {
	r, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return nil, storeKind(err)
	}
	req, err := s.store.GetRequest(ctx, r.RequestID)
	if err != nil {
		return nil, storeKind(err)
	}
	return &PricingResultDetail{
		PricingResponse: *newResponse(req, r, r.CacheHit, r.Expired(s.now())),
		IsLatest:        r.IsLatest,
		CacheHit:        r.CacheHit,
	}, nil
}

// GetVersions lists every retained version of a request, newest first.
func (s *Service) GetVersions(ctx context.Context, requestID string) ([]model.PricingResult, error) {
	if _, err := s.store.GetRequest(ctx, requestID); err != nil {
		return nil, storeKind(err)
	}
	out, err := s.store.ListResultVersions(ctx, requestID)
	if err != nil {
		return nil, newError(KindStoreError, err)
	}
	return out, nil
}

func storeKind(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return newError(KindNotFound, err)
	}
	return newError(KindStoreError, err)
}
