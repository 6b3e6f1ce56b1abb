package model

import "sort"

// SourceType classifies a compensation data source.
type SourceType string

const (
	SourceTypeSurvey       SourceType = "survey"
	SourceTypeJobBoard     SourceType = "job_board"
	SourceTypeCrowdSourced SourceType = "crowd_sourced"
)

// PayloadKind tags which variant of an observation payload is populated.
type PayloadKind string

const (
	PayloadRawSamples        PayloadKind = "raw_samples"
	PayloadPercentileSummary PayloadKind = "percentile_summary"
)

// SummaryPercentiles are the ranks at which a PercentileSummary is stated.
var SummaryPercentiles = [5]float64{0.10, 0.25, 0.50, 0.75, 0.90}

// PercentileSummary is a source's own percentile breakdown, used when raw
// samples are not available.
type PercentileSummary struct {
	P10 float64 `json:"p10" yaml:"p10"`
	P25 float64 `json:"p25" yaml:"p25"`
	P50 float64 `json:"p50" yaml:"p50"`
	P75 float64 `json:"p75" yaml:"p75"`
	P90 float64 `json:"p90" yaml:"p90"`
}

// Samples synthesizes five pseudo-samples located at the stated percentiles.
func (p PercentileSummary) Samples() []float64 {
	return []float64{p.P10, p.P25, p.P50, p.P75, p.P90}
}

// IsZero reports whether no percentile was stated.
func (p PercentileSummary) IsZero() bool {
	return p == PercentileSummary{}
}

// SourceObservationSet is the salary data one source returned for a request.
// Exactly one of RawSamples or Summary is meaningful, as selected by Kind.
type SourceObservationSet struct {
	SourceName   string             `json:"source_name" yaml:"source_name"`
	SourceType   SourceType         `json:"source_type" yaml:"source_type"`
	Kind         PayloadKind        `json:"kind" yaml:"kind"`
	RawSamples   []float64          `json:"raw_samples,omitempty" yaml:"raw_samples,omitempty"`
	Summary      *PercentileSummary `json:"summary,omitempty" yaml:"summary,omitempty"`
	SampleSize   int                `json:"sample_size" yaml:"sample_size"`
	AgeInDays    float64            `json:"age_in_days" yaml:"age_in_days"`
	MatchQuality float64            `json:"match_quality" yaml:"match_quality"`
	JobCode      string             `json:"job_code,omitempty" yaml:"job_code,omitempty"`
}

// NewRawSamples builds an observation set carrying raw salary samples.
func NewRawSamples(source string, typ SourceType, samples []float64, ageDays, matchQuality float64) SourceObservationSet {
	return SourceObservationSet{
		SourceName:   source,
		SourceType:   typ,
		Kind:         PayloadRawSamples,
		RawSamples:   samples,
		SampleSize:   len(samples),
		AgeInDays:    ageDays,
		MatchQuality: matchQuality,
	}
}

// NewSummary builds an observation set carrying a percentile summary over
// sampleSize underlying observations.
func NewSummary(source string, typ SourceType, summary PercentileSummary, sampleSize int, ageDays, matchQuality float64) SourceObservationSet {
	return SourceObservationSet{
		SourceName:   source,
		SourceType:   typ,
		Kind:         PayloadPercentileSummary,
		Summary:      &summary,
		SampleSize:   sampleSize,
		AgeInDays:    ageDays,
		MatchQuality: matchQuality,
	}
}

// PayloadKind returns the populated variant. Sets decoded without an explicit
// kind are inferred from which field is present.
func (s SourceObservationSet) PayloadKind() PayloadKind {
	if s.Kind != "" {
		return s.Kind
	}
	if s.Summary != nil && len(s.RawSamples) == 0 {
		return PayloadPercentileSummary
	}
	return PayloadRawSamples
}

// Samples returns the set's values as a sorted slice of pseudo-samples.
// Summaries become five synthetic samples. Returns nil if the payload is empty.
func (s SourceObservationSet) Samples() []float64 {
	var out []float64
	switch s.PayloadKind() {
	case PayloadPercentileSummary:
		if s.Summary == nil || s.Summary.IsZero() {
			return nil
		}
		out = s.Summary.Samples()
	default:
		if len(s.RawSamples) == 0 {
			return nil
		}
		out = make([]float64, len(s.RawSamples))
		copy(out, s.RawSamples)
	}
	sort.Float64s(out)
	return out
}
