// Package model defines the core data types shared by the pricing engine,
// its stores and its source providers.
package model

import "time"

// RequestStatus represents the lifecycle state of a pricing request.
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusProcessing RequestStatus = "processing"
	RequestStatusCompleted  RequestStatus = "completed"
	RequestStatusFailed     RequestStatus = "failed"
)

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusProcessing, RequestStatusCompleted, RequestStatusFailed:
		return true
	}
	return false
}

// PricingRequest is the deduplicated, persistent record of a pricing question.
// One row exists per fingerprint.
type PricingRequest struct {
	ID               string        `json:"id"`
	Fingerprint      string        `json:"fingerprint"`
	JobTitle         string        `json:"job_title"`
	LocationText     string        `json:"location_text"`
	JobDescription   string        `json:"job_description,omitempty"`
	RequestedBy      int64         `json:"requested_by"`
	RequestCount     int           `json:"request_count"`
	FirstRequestedAt time.Time     `json:"first_requested_at"`
	LastRequestedAt  time.Time     `json:"last_requested_at"`
	Status           RequestStatus `json:"status"`
}
