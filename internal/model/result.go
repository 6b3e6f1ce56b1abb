package model

import "time"

// ConfidenceLevel buckets a 0-100 confidence score.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "Low"
	ConfidenceMedium ConfidenceLevel = "Medium"
	ConfidenceHigh   ConfidenceLevel = "High"
)

// LevelForScore maps a confidence score to its level: High at 75 and above,
// Medium at 50 and above, Low otherwise.
func LevelForScore(score float64) ConfidenceLevel {
	switch {
	case score >= 75:
		return ConfidenceHigh
	case score >= 50:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Percentiles holds the five salary percentiles reported for a result.
type Percentiles struct {
	P10 float64 `json:"p10"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
}

// Scenario is a named alternative salary band with a use-case label.
type Scenario struct {
	Name    string  `json:"name"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	UseCase string  `json:"use_case"`
}

// DataSourceContribution records how one source fed into a result.
// Immutable once written.
type DataSourceContribution struct {
	ID            string  `json:"id"`
	ResultID      string  `json:"result_id"`
	SourceName    string  `json:"source_name"`
	WeightApplied float64 `json:"weight_applied"`
	SampleSize    int     `json:"sample_size"`
	MatchQuality  float64 `json:"match_quality"`
	RecencyWeight float64 `json:"recency_weight"`
}

// PricingResult is one versioned computation for a PricingRequest.
type PricingResult struct {
	ID           string    `json:"id"`
	RequestID    string    `json:"request_id"`
	Version      int       `json:"version"`
	IsLatest     bool      `json:"is_latest"`
	CalculatedAt time.Time `json:"calculated_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	CacheHit     bool      `json:"cache_hit"`

	RecommendedMin float64 `json:"recommended_min"`
	RecommendedMax float64 `json:"recommended_max"`
	TargetSalary   float64 `json:"target_salary"`
	Percentiles

	ConfidenceScore      float64                  `json:"confidence_score"`
	ConfidenceLevel      ConfidenceLevel          `json:"confidence_level"`
	AlternativeScenarios []Scenario               `json:"alternative_scenarios"`
	Explanation          string                   `json:"explanation"`
	TotalDataPoints      int                      `json:"total_data_points"`
	DataSourcesUsed      []string                 `json:"data_sources_used"`
	Contributions        []DataSourceContribution `json:"contributions,omitempty"`
}

// Expired reports whether the result is past its expiry at now.
func (r *PricingResult) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// PricingResultSummary is the listing view of a result joined with its request.
type PricingResultSummary struct {
	ResultID        string          `json:"result_id"`
	RequestID       string          `json:"request_id"`
	JobTitle        string          `json:"job_title"`
	LocationText    string          `json:"location_text"`
	Version         int             `json:"version"`
	IsLatest        bool            `json:"is_latest"`
	TargetSalary    float64         `json:"target_salary"`
	ConfidenceScore float64         `json:"confidence_score"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	CalculatedAt    time.Time       `json:"calculated_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
}
