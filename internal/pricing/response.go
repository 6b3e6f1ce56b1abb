package pricing

import (
	"time"

	"github.com/sells-group/comp-pricer/internal/model"
)

// PriceRequest asks for a recommendation.
type PriceRequest struct {
	JobTitle    string `json:"job_title"`
	Location    string `json:"location"`
	RequesterID int64  `json:"requester_id"`
	Description string `json:"description,omitempty"`
	// Sources restricts the fetch to these providers. Empty means all.
	Sources      []string `json:"sources,omitempty"`
	ForceRefresh bool     `json:"force_refresh,omitempty"`
	NonBlocking  bool     `json:"non_blocking,omitempty"`
	// Deadline bounds source retrieval. Zero uses the service default.
	Deadline time.Duration `json:"-"`
}

// ContributionView is one source's share of a result, in percent.
type ContributionView struct {
	SourceName          string  `json:"source_name"`
	WeightPercent       float64 `json:"weight_percent"`
	SampleSize          int     `json:"sample_size"`
	MatchQualityPercent float64 `json:"match_quality_percent"`
	RecencyWeight       float64 `json:"recency_weight"`
}

// CacheInfo describes where a response came from.
type CacheInfo struct {
	FromCache    bool      `json:"from_cache"`
	Stale        bool      `json:"stale"`
	Version      int       `json:"version"`
	CalculatedAt time.Time `json:"calculated_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// PricingResponse is the answer to a PriceRequest.
type PricingResponse struct {
	RequestID    string `json:"request_id"`
	ResultID     string `json:"result_id"`
	Fingerprint  string `json:"fingerprint"`
	JobTitle     string `json:"job_title"`
	Location     string `json:"location"`
	RequestCount int    `json:"request_count"`

	RecommendedMin  float64               `json:"recommended_min"`
	RecommendedMax  float64               `json:"recommended_max"`
	TargetSalary    float64               `json:"target_salary"`
	Percentiles     model.Percentiles     `json:"percentiles"`
	ConfidenceScore float64               `json:"confidence_score"`
	ConfidenceLevel model.ConfidenceLevel `json:"confidence_level"`
	Contributions   []ContributionView    `json:"contributions"`
	Scenarios       []model.Scenario      `json:"alternative_scenarios"`
	Explanation     string                `json:"explanation"`
	TotalDataPoints int                   `json:"total_data_points"`
	DataSourcesUsed []string              `json:"data_sources_used"`

	Cache CacheInfo `json:"cache"`
}

// PricingResultDetail is a stored result looked up by id.
type PricingResultDetail struct {
	PricingResponse
	IsLatest bool `json:"is_latest"`
	CacheHit bool `json:"cache_hit"`
}

func newResponse(req *model.PricingRequest, r *model.PricingResult, fromCache, stale bool) *PricingResponse {
	var total float64
	for _, c := range r.Contributions {
		total += c.WeightApplied
	}
	views := make([]ContributionView, len(r.Contributions))
	for i, c := range r.Contributions {
		share := 0.0
		if total > 0 {
			share = 100 * c.WeightApplied / total
		}
		views[i] = ContributionView{
			SourceName:          c.SourceName,
			WeightPercent:       share,
			SampleSize:          c.SampleSize,
			MatchQualityPercent: 100 * c.MatchQuality,
			RecencyWeight:       c.RecencyWeight,
		}
	}

	return &PricingResponse{
		RequestID:       req.ID,
		ResultID:        r.ID,
		Fingerprint:     req.Fingerprint,
		JobTitle:        req.JobTitle,
		Location:        req.LocationText,
		RequestCount:    req.RequestCount,
		RecommendedMin:  r.RecommendedMin,
		RecommendedMax:  r.RecommendedMax,
		TargetSalary:    r.TargetSalary,
		Percentiles:     r.Percentiles,
		ConfidenceScore: r.ConfidenceScore,
		ConfidenceLevel: r.ConfidenceLevel,
		Contributions:   views,
		Scenarios:       r.AlternativeScenarios,
		Explanation:     r.Explanation,
		TotalDataPoints: r.TotalDataPoints,
		DataSourcesUsed: r.DataSourcesUsed,
		Cache: CacheInfo{
			FromCache:    fromCache,
			Stale:        stale,
			Version:      r.Version,
			CalculatedAt: r.CalculatedAt,
			ExpiresAt:    r.ExpiresAt,
		},
	}
}
