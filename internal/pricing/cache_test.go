package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/comp-pricer/internal/aggregate"
	"github.com/sells-group/comp-pricer/internal/model"
	"github.com/sells-group/comp-pricer/internal/store"
)

func TestExpiresAt(t *testing.T) {
	cfg := aggregate.NewDefaultConfig()
	cfg.SetSource("survey", 1, 30*24*time.Hour)
	cfg.SetSource("board", 1, 24*time.Hour)
	cfg.SourceTypes[model.SourceTypeCrowdSourced] = aggregate.SourceConfig{TTLHours: 6}

	tests := []struct {
		name    string
		sources []aggregate.SourceWeight
		want    time.Duration
	}{
		{"shortest of named sources", []aggregate.SourceWeight{{Name: "survey"}, {Name: "board"}}, 24 * time.Hour},
		{"single source", []aggregate.SourceWeight{{Name: "survey"}}, 30 * 24 * time.Hour},
		{"type ttl", []aggregate.SourceWeight{{Name: "survey"}, {Name: "forum", Type: model.SourceTypeCrowdSourced}}, 6 * time.Hour},
		{"no ttl falls back", []aggregate.SourceWeight{{Name: "unknown"}}, aggregate.DefaultTTL},
		{"unconfigured source caps a longer ttl", []aggregate.SourceWeight{{Name: "survey"}, {Name: "unknown"}}, aggregate.DefaultTTL},
		{"no sources", nil, aggregate.DefaultTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpiresAt(baseTime, tt.sources, cfg)
			assert.Equal(t, baseTime.Add(tt.want), got)
		})
	}
}

func TestCache_GetFreshMarksHit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	req, err := st.FindOrCreateRequest(ctx, store.RequestInput{Fingerprint: "fp", JobTitle: "Engineer", LocationText: "Singapore"}, baseTime)
	require.NoError(t, err)

	c := NewCache(st)
	_, ok, err := c.GetFresh(ctx, req.ID, baseTime)
	require.NoError(t, err)
	assert.False(t, ok)

	v := NewVersioner(st, 0)
	out, err := aggregate.NewEngine(nil).Aggregate(aggregate.Input{
		JobTitle: "Engineer",
		Sets:     []model.SourceObservationSet{model.NewRawSamples("survey", model.SourceTypeSurvey, []float64{100, 200}, 1, 1)},
	})
	require.NoError(t, err)
	saved, err := v.Publish(ctx, req.ID, out, baseTime, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, saved.CacheHit)

	got, ok, err := c.GetFresh(ctx, req.ID, baseTime.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, saved.ID, got.ID)
	assert.True(t, got.CacheHit)

	_, ok, err = c.GetFresh(ctx, req.ID, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "expiry is exclusive")

	latest, err := c.GetLatest(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, saved.ID, latest.ID)
}
