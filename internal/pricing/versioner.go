package pricing

import (
	"context"
	"time"

	"github.com/sells-group/comp-pricer/internal/aggregate"
	"github.com/sells-group/comp-pricer/internal/model"
	"github.com/sells-group/comp-pricer/internal/store"
)

// Versioner publishes aggregation outputs as new result versions.
type Versioner struct {
	store  store.Store
	retain int
}

// NewVersioner creates a Versioner keeping the newest retain versions per
// request. A non-positive retain uses store.DefaultRetention.
func NewVersioner(st store.Store, retain int) *Versioner {
	if retain <= 0 {
		retain = store.DefaultRetention
	}
	return &Versioner{store: st, retain: retain}
}

// Publish stores out as the request's next version and marks the request
// completed, all in one transaction.
func (v *Versioner) Publish(ctx context.Context, requestID string, out *aggregate.Output, calculatedAt, expiresAt time.Time) (*model.PricingResult, error) {
	return v.store.SaveResultVersion(ctx, &model.PricingResult{
		RequestID:            requestID,
		CalculatedAt:         calculatedAt,
		ExpiresAt:            expiresAt,
		RecommendedMin:       out.RecommendedMin,
		RecommendedMax:       out.RecommendedMax,
		TargetSalary:         out.TargetSalary,
		Percentiles:          out.Percentiles,
		ConfidenceScore:      out.ConfidenceScore,
		ConfidenceLevel:      out.ConfidenceLevel,
		AlternativeScenarios: out.Scenarios,
		Explanation:          out.Explanation,
		TotalDataPoints:      out.TotalDataPoints,
		DataSourcesUsed:      out.SourceNames(),
		Contributions:        out.Contributions(),
	}, v.retain)
}
