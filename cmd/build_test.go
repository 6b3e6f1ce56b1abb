//go:build !integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/comp-pricer/internal/config"
	"github.com/sells-group/comp-pricer/internal/model"
	"github.com/sells-group/comp-pricer/internal/pricing"
)

const surveyFixture = `
observations:
  - job_title: software engineer
    location: singapore
    kind: raw_samples
    raw_samples: [90000, 100000, 110000, 120000]
    age_in_days: 30
    match_quality: 0.9
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	fixture := filepath.Join(dir, "survey.yaml")
	require.NoError(t, os.WriteFile(fixture, []byte(surveyFixture), 0644))

	return &config.Config{
		Store:   config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(dir, "pricer.db")},
		Server:  config.ServerConfig{Port: 8080},
		Pricing: config.PricingConfig{Retention: 2, DefaultTTLHours: 12, TargetPercentile: 0.5, DeadlineMs: 2000},
		Sources: []config.SourceConfig{
			{Name: "salary_survey", Kind: config.SourceKindFile, Type: "survey", File: fixture, BaseWeight: 1.5, TTLHours: 720, RateLimit: 50, Burst: 5},
		},
	}
}

func TestBuildEngine_Overlays(t *testing.T) {
	c := testConfig(t)
	c.Sources = append(c.Sources, config.SourceConfig{Name: "job_board", Kind: config.SourceKindHTTP, URL: "http://localhost", TTLHours: 48})

	engine, err := buildEngine(c)
	require.NoError(t, err)
	agg := engine.Config()

	assert.Equal(t, 12, agg.Defaults.TTLHours)
	assert.InDelta(t, 1.5, agg.BaseWeight("salary_survey", model.SourceTypeSurvey), 0.001)
	assert.InDelta(t, 1.0, agg.BaseWeight("job_board", model.SourceTypeJobBoard), 0.001)
	ttl, ok := agg.TTL("job_board", model.SourceTypeJobBoard)
	require.True(t, ok)
	assert.Equal(t, 48*time.Hour, ttl)
}

func TestBuildEngine_AggregationFile(t *testing.T) {
	c := testConfig(t)
	path := filepath.Join(t.TempDir(), "aggregation.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aggregation:\n  source_types:\n    crowd_sourced:\n      base_weight: 0.4\n"), 0644))
	c.AggregationFile = path

	engine, err := buildEngine(c)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, engine.Config().BaseWeight("forum", model.SourceTypeCrowdSourced), 0.001)

	c.AggregationFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = buildEngine(c)
	assert.Error(t, err)
}

func TestBuildProvider_UnknownKind(t *testing.T) {
	_, err := buildProvider(config.SourceConfig{Name: "x", Kind: "ftp"})
	assert.Error(t, err)

	_, err = buildProvider(config.SourceConfig{Name: "x", Kind: config.SourceKindHTTP, URL: "not a url"})
	assert.Error(t, err)
}

func TestBuildService_EndToEnd(t *testing.T) {
	c := testConfig(t)
	ctx := context.Background()

	st, err := initStore(ctx, c.Store)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	svc, err := buildService(c, st, prometheus.NewRegistry())
	require.NoError(t, err)

	req := pricing.PriceRequest{JobTitle: "Software Engineer", Location: "Singapore", RequesterID: 1}
	first, err := svc.Price(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"salary_survey"}, first.DataSourcesUsed)
	assert.False(t, first.Cache.FromCache)
	assert.WithinDuration(t, first.Cache.CalculatedAt.Add(720*time.Hour), first.Cache.ExpiresAt, time.Second)

	second, err := svc.Price(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Cache.FromCache)

	_, err = svc.Price(ctx, pricing.PriceRequest{JobTitle: "Chef", Location: "Paris"})
	assert.Equal(t, pricing.KindInsufficientData, pricing.KindOf(err))
}

func TestInitStore_UnknownDriver(t *testing.T) {
	_, err := initStore(context.Background(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}
