// Package store persists pricing requests, versioned results and their
// source contributions.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/comp-pricer/internal/model"
)

// ErrNotFound is returned when a request or result does not exist.
var ErrNotFound = eris.New("store: not found")

// DefaultRetention is how many result versions are kept per request.
const DefaultRetention = 5

// RequestInput carries the fields recorded when a request is first seen.
type RequestInput struct {
	Fingerprint    string
	JobTitle       string
	LocationText   string
	JobDescription string
	RequestedBy    int64
}

// ResultFilter specifies criteria for listing results.
type ResultFilter struct {
	RequestID  string `json:"request_id,omitempty"`
	LatestOnly bool   `json:"latest_only,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the pricing engine.
type Store interface {
	// Requests
	FindOrCreateRequest(ctx context.Context, in RequestInput, now time.Time) (*model.PricingRequest, error)
	GetRequest(ctx context.Context, requestID string) (*model.PricingRequest, error)
	UpdateRequestStatus(ctx context.Context, requestID string, status model.RequestStatus) error

	// Results
	GetFreshResult(ctx context.Context, requestID string, now time.Time) (*model.PricingResult, error)
	GetLatestResult(ctx context.Context, requestID string) (*model.PricingResult, error)
	MarkCacheHit(ctx context.Context, resultID string) error
	SaveResultVersion(ctx context.Context, result *model.PricingResult, retain int) (*model.PricingResult, error)
	GetResult(ctx context.Context, resultID string) (*model.PricingResult, error)
	ListResultVersions(ctx context.Context, requestID string) ([]model.PricingResult, error)
	ListResults(ctx context.Context, filter ResultFilter) ([]model.PricingResultSummary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// newVersion prepares a result for insertion as version next.
func newVersion(in *model.PricingResult, id string, next int, contributionIDs func() string) *model.PricingResult {
	out := *in
	out.ID = id
	out.Version = next
	out.IsLatest = true
	out.CacheHit = false
	out.CalculatedAt = in.CalculatedAt.UTC()
	out.ExpiresAt = in.ExpiresAt.UTC()
	out.Contributions = make([]model.DataSourceContribution, len(in.Contributions))
	for i, c := range in.Contributions {
		c.ID = contributionIDs()
		c.ResultID = id
		out.Contributions[i] = c
	}
	return &out
}

// clampPage applies listing defaults: limit 20, capped at 100.
func clampPage(f ResultFilter) ResultFilter {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// expiredVersion is the highest version number removed by retention.
func expiredVersion(newest, retain int) int {
	if retain <= 0 {
		retain = DefaultRetention
	}
	return newest - retain
}
