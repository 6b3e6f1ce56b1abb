package main

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/comp-pricer/internal/aggregate"
	"github.com/sells-group/comp-pricer/internal/config"
	"github.com/sells-group/comp-pricer/internal/metrics"
	"github.com/sells-group/comp-pricer/internal/model"
	"github.com/sells-group/comp-pricer/internal/pricing"
	"github.com/sells-group/comp-pricer/internal/resilience"
	"github.com/sells-group/comp-pricer/internal/source"
	"github.com/sells-group/comp-pricer/internal/store"
	"github.com/sells-group/comp-pricer/internal/taxonomy"
)

// buildEngine loads aggregation priors and overlays the per-source and
// pricing settings from the main config.
func buildEngine(c *config.Config) (*aggregate.Engine, error) {
	agg := aggregate.NewDefaultConfig()
	if c.AggregationFile != "" {
		loaded, err := aggregate.LoadConfig(c.AggregationFile)
		if err != nil {
			return nil, err
		}
		agg = loaded
	}

	if c.Pricing.DefaultTTLHours > 0 {
		agg.Defaults.TTLHours = c.Pricing.DefaultTTLHours
	}
	if c.Pricing.TargetPercentile > 0 {
		agg.Defaults.TargetPercentile = c.Pricing.TargetPercentile
	}
	if c.Pricing.FullConfidenceSampleSize > 0 {
		agg.Defaults.FullConfidenceSampleSize = c.Pricing.FullConfidenceSampleSize
	}

	for _, sc := range c.Sources {
		if sc.BaseWeight <= 0 && sc.TTLHours <= 0 {
			continue
		}
		weight := sc.BaseWeight
		if weight <= 0 {
			weight = agg.BaseWeight(sc.Name, model.SourceType(sc.Type))
		}
		ttl := time.Duration(sc.TTLHours) * time.Hour
		if sc.TTLHours <= 0 {
			if d, ok := agg.TTL(sc.Name, model.SourceType(sc.Type)); ok {
				ttl = d
			}
		}
		agg.SetSource(sc.Name, weight, ttl)
	}
	return aggregate.NewEngine(agg), nil
}

func buildProvider(sc config.SourceConfig) (source.Provider, error) {
	typ := model.SourceType(sc.Type)
	switch sc.Kind {
	case config.SourceKindHTTP:
		return source.NewHTTPProvider(source.HTTPOptions{
			Name:    sc.Name,
			Type:    typ,
			URL:     sc.URL,
			Timeout: time.Duration(sc.TimeoutMs) * time.Millisecond,
		})
	case config.SourceKindFile:
		switch strings.ToLower(filepath.Ext(sc.File)) {
		case ".xlsx":
			return source.LoadXLSXProvider(sc.Name, typ, sc.File, source.XLSXOptions{})
		default:
			return source.LoadFileProvider(sc.Name, typ, sc.File)
		}
	default:
		return nil, eris.Errorf("source %q: unknown kind %q", sc.Name, sc.Kind)
	}
}

// buildFetcher registers every configured source behind the shared
// resilience settings.
func buildFetcher(c *config.Config, m *metrics.Metrics) (*source.Fetcher, error) {
	reg := source.NewRegistry()
	opts := []source.FetcherOption{
		source.WithRetry(c.Resilience.Retry()),
		source.WithBreakers(resilience.NewSourceBreakers(c.Resilience.Circuit())),
		source.WithFailureHook(m.ObserveSourceFailure),
	}
	for _, sc := range c.Sources {
		p, err := buildProvider(sc)
		if err != nil {
			return nil, err
		}
		reg.Register(p)
		if sc.RateLimit > 0 {
			opts = append(opts, source.WithRateLimit(sc.Name, sc.RateLimit, sc.Burst))
		}
	}
	return source.NewFetcher(reg, opts...), nil
}

// buildService wires the pricing service. reg may be nil to skip metrics
// registration.
func buildService(c *config.Config, st store.Store, reg prometheus.Registerer) (*pricing.Service, error) {
	m := metrics.New(reg)

	engine, err := buildEngine(c)
	if err != nil {
		return nil, err
	}
	fetcher, err := buildFetcher(c, m)
	if err != nil {
		return nil, err
	}

	opts := []pricing.Option{
		pricing.WithMetrics(m),
		pricing.WithRetention(c.Pricing.Retention),
		pricing.WithDefaultDeadline(c.Pricing.Deadline()),
	}
	if len(c.Taxonomy.Families) > 0 {
		opts = append(opts, pricing.WithMatcher(taxonomy.NewKeywordMatcher(c.Taxonomy.Families), c.Taxonomy.MinScore))
	}

	zap.L().Debug("pricing service configured",
		zap.Int("sources", len(c.Sources)),
		zap.Int("families", len(c.Taxonomy.Families)),
		zap.Duration("deadline", c.Pricing.Deadline()),
	)
	return pricing.NewService(st, fetcher, engine, opts...), nil
}
