package pricing

import (
	"context"
	"time"

	"github.com/sells-group/comp-pricer/internal/model"
	"github.com/sells-group/comp-pricer/internal/store"
)

// Ledger records every pricing request once per fingerprint and tracks
// how often it is asked.
type Ledger struct {
	store store.Store
}

// NewLedger creates a Ledger over st.
func NewLedger(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// FindOrCreate bumps the request count of an existing fingerprint or inserts
// a pending request. The upsert is a single statement, so concurrent callers
// for one fingerprint never create duplicates.
func (l *Ledger) FindOrCreate(ctx context.Context, fp string, req PriceRequest, now time.Time) (*model.PricingRequest, error) {
	return l.store.FindOrCreateRequest(ctx, store.RequestInput{
		Fingerprint:    fp,
		JobTitle:       req.JobTitle,
		LocationText:   req.Location,
		JobDescription: req.Description,
		RequestedBy:    req.RequesterID,
	}, now)
}

// MarkStatus moves a request through its lifecycle.
func (l *Ledger) MarkStatus(ctx context.Context, requestID string, status model.RequestStatus) error {
	return l.store.UpdateRequestStatus(ctx, requestID, status)
}
