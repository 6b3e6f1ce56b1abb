// Package aggregate turns heterogeneous per-source salary observations into
// weighted percentiles, a target salary and a confidence score.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/comp-pricer/internal/model"
)

// ErrInsufficientData is returned when no source survives weighting.
var ErrInsufficientData = eris.New("aggregate: insufficient data")

// Rejection reasons recorded for excluded sources.
const (
	ReasonMalformed   = "malformed"
	ReasonNoSamples   = "no samples"
	ReasonZeroWeight  = "zero effective weight"
	ReasonUnavailable = "unavailable"
	ReasonOffTaxonomy = "job family mismatch"
)

// Input is one aggregation job.
type Input struct {
	JobTitle string
	Location string
	Sets     []model.SourceObservationSet
	// Rejected carries sources the caller already excluded (unavailable,
	// filtered by taxonomy) so they appear in the explanation.
	Rejected []Rejection
}

// Rejection records a source excluded from a result and why.
type Rejection struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// SourceWeight describes how a surviving source was weighted.
type SourceWeight struct {
	Name            string           `json:"name"`
	Type            model.SourceType `json:"type"`
	BaseWeight      float64          `json:"base_weight"`
	RecencyWeight   float64          `json:"recency_weight"`
	MatchQuality    float64          `json:"match_quality"`
	EffectiveWeight float64          `json:"effective_weight"`
	SampleSize      int              `json:"sample_size"`
}

// Output is the result of a successful aggregation.
type Output struct {
	Percentiles     model.Percentiles
	TargetSalary    float64
	RecommendedMin  float64
	RecommendedMax  float64
	ConfidenceScore float64
	ConfidenceLevel model.ConfidenceLevel
	Scenarios       []model.Scenario
	Sources         []SourceWeight
	Rejected        []Rejection
	TotalDataPoints int
	Explanation     string
}

// SourceNames lists the surviving sources in weighting order.
func (o *Output) SourceNames() []string {
	names := make([]string, len(o.Sources))
	for i, s := range o.Sources {
		names[i] = s.Name
	}
	return names
}

// Contributions converts the surviving sources into contribution rows.
func (o *Output) Contributions() []model.DataSourceContribution {
	out := make([]model.DataSourceContribution, len(o.Sources))
	for i, s := range o.Sources {
		out[i] = model.DataSourceContribution{
			SourceName:    s.Name,
			WeightApplied: s.EffectiveWeight,
			SampleSize:    s.SampleSize,
			MatchQuality:  s.MatchQuality,
			RecencyWeight: s.RecencyWeight,
		}
	}
	return out
}

// Engine runs the weighted aggregation.
type Engine struct {
	cfg *Config
}

// NewEngine creates an engine. A nil config uses NewDefaultConfig.
func NewEngine(cfg *Config) *Engine {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	cfg.applyDefaults()
	return &Engine{cfg: cfg}
}

// Config returns the engine's configuration.
func (e *Engine) Config() *Config {
	return e.cfg
}

// Aggregate pools the observation sets and computes the recommendation.
// The result depends only on the input: sets are processed in source-name
// order so provider completion order cannot change the arithmetic.
func (e *Engine) Aggregate(in Input) (*Output, error) {
	sets := make([]model.SourceObservationSet, len(in.Sets))
	copy(sets, in.Sets)
	sort.SliceStable(sets, func(i, j int) bool { return sets[i].SourceName < sets[j].SourceName })

	out := &Output{Rejected: append([]Rejection(nil), in.Rejected...)}
	var pooled []weightedSample

	for _, set := range sets {
		if set.SampleSize <= 0 {
			out.Rejected = append(out.Rejected, Rejection{Source: set.SourceName, Reason: ReasonNoSamples})
			continue
		}

		samples := usableSamples(set.Samples())
		if len(samples) == 0 {
			out.Rejected = append(out.Rejected, Rejection{
				Source: set.SourceName,
				Reason: ReasonMalformed,
				Detail: fmt.Sprintf("empty payload with sample_size %d", set.SampleSize),
			})
			continue
		}

		sw := SourceWeight{
			Name:          set.SourceName,
			Type:          set.SourceType,
			BaseWeight:    e.cfg.BaseWeight(set.SourceName, set.SourceType),
			RecencyWeight: RecencyWeight(set.AgeInDays),
			MatchQuality:  clamp01(set.MatchQuality),
			SampleSize:    set.SampleSize,
		}
		sw.EffectiveWeight = EffectiveWeight(sw.BaseWeight, sw.RecencyWeight, sw.MatchQuality)
		if sw.EffectiveWeight <= 0 {
			out.Rejected = append(out.Rejected, Rejection{Source: set.SourceName, Reason: ReasonZeroWeight})
			continue
		}

		idx := len(out.Sources)
		out.Sources = append(out.Sources, sw)
		out.TotalDataPoints += set.SampleSize
		for _, v := range samples {
			pooled = append(pooled, weightedSample{value: v, weight: sw.EffectiveWeight, source: idx})
		}
	}

	if len(out.Sources) == 0 {
		return nil, eris.Wrapf(ErrInsufficientData, "no usable source among %d (%s)", len(in.Sets), describeRejections(out.Rejected))
	}

	dist := newPool(pooled)
	out.Percentiles = model.Percentiles{
		P10: dist.Percentile(0.10),
		P25: dist.Percentile(0.25),
		P50: dist.Percentile(0.50),
		P75: dist.Percentile(0.75),
		P90: dist.Percentile(0.90),
	}
	out.TargetSalary = out.Percentiles.P50
	if tp := e.cfg.Defaults.TargetPercentile; tp > 0 && tp < 1 && tp != 0.5 {
		out.TargetSalary = dist.Percentile(tp)
	}
	out.RecommendedMin = out.Percentiles.P25
	out.RecommendedMax = out.Percentiles.P75
	out.ConfidenceScore = e.confidence(out.Sources)
	out.ConfidenceLevel = model.LevelForScore(out.ConfidenceScore)
	out.Scenarios = scenarios(out.Percentiles)
	out.Explanation = explain(in, out)

	return out, nil
}

// confidence combines saturated sample size, average recency and average
// match quality: 100 * (0.5*size + 0.25*recency + 0.25*match).
func (e *Engine) confidence(sources []SourceWeight) float64 {
	if len(sources) == 0 {
		return 0
	}
	var samples int
	var recency, match float64
	for _, s := range sources {
		samples += s.SampleSize
		recency += s.RecencyWeight
		match += s.MatchQuality
	}
	n := float64(len(sources))

	full := float64(e.cfg.Defaults.FullConfidenceSampleSize)
	sizeFactor := 1.0
	if full > 0 {
		sizeFactor = math.Min(1, float64(samples)/full)
	}

	score := 100 * (0.5*sizeFactor + 0.25*(recency/n) + 0.25*(match/n))
	return math.Max(0, math.Min(100, score))
}

func scenarios(p model.Percentiles) []model.Scenario {
	return []model.Scenario{
		{Name: "conservative", Min: p.P10, Max: p.P25, UseCase: "Budget-constrained hire or candidate still growing into the role"},
		{Name: "market", Min: p.P25, Max: p.P75, UseCase: "Standard offer within the prevailing market band"},
		{Name: "competitive", Min: p.P50, Max: p.P75, UseCase: "Competitive offer for a strong candidate"},
		{Name: "aggressive", Min: p.P75, Max: p.P90, UseCase: "Hard-to-fill role or top-of-market candidate"},
	}
}

// usableSamples drops non-finite and non-positive values.
func usableSamples(in []float64) []float64 {
	out := in[:0:0]
	for _, v := range in {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

func describeRejections(rs []Rejection) string {
	if len(rs) == 0 {
		return "no sources returned"
	}
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = r.Source + ": " + r.Reason
	}
	return strings.Join(parts, "; ")
}

func explain(in Input, out *Output) string {
	var b strings.Builder

	subject := "this role"
	if in.JobTitle != "" {
		subject = in.JobTitle
		if in.Location != "" {
			subject += " in " + in.Location
		}
	}
	fmt.Fprintf(&b, "Recommended range for %s is %s to %s with a target of %s, based on %d data points from %d source(s).",
		subject, money(out.RecommendedMin), money(out.RecommendedMax), money(out.TargetSalary),
		out.TotalDataPoints, len(out.Sources))

	var recency, match float64
	for _, s := range out.Sources {
		recency += s.RecencyWeight
		match += s.MatchQuality
	}
	n := float64(len(out.Sources))
	fmt.Fprintf(&b, " Confidence is %s (%.1f/100): average recency %.2f, average match quality %.2f.",
		out.ConfidenceLevel, out.ConfidenceScore, recency/n, match/n)

	parts := make([]string, len(out.Sources))
	for i, s := range out.Sources {
		parts[i] = fmt.Sprintf("%s (weight %.1f%%, %d samples)", s.Name, s.EffectiveWeight*100, s.SampleSize)
	}
	fmt.Fprintf(&b, " Sources used: %s.", strings.Join(parts, ", "))

	if len(out.Rejected) > 0 {
		rej := make([]string, len(out.Rejected))
		for i, r := range out.Rejected {
			rej[i] = r.Source + " (" + r.Reason
			if r.Detail != "" {
				rej[i] += ": " + r.Detail
			}
			rej[i] += ")"
		}
		fmt.Fprintf(&b, " Excluded: %s.", strings.Join(rej, ", "))
	}
	return b.String()
}

var moneyPrinter = message.NewPrinter(language.English)

func money(v float64) string {
	return moneyPrinter.Sprintf("%d", int64(math.Round(v)))
}
