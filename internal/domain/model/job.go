// Package model defines the core data types used throughout the skuflow fulfillment system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current status of a fulfillment job.
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be claimed by a worker.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusFulfilled indicates the purchase completed with a confirmed order identifier.
	JobStatusFulfilled JobStatus = "fulfilled"
	// JobStatusFailedPermanent indicates the job failed and will not be retried automatically.
	JobStatusFailedPermanent JobStatus = "failed_permanent"
	// JobStatusManualReview indicates the job requires operator disposition before resubmission.
	JobStatusManualReview JobStatus = "manual_review"
)

// Valid returns true if the JobStatus is one of the known states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusFulfilled,
		JobStatusFailedPermanent, JobStatusManualReview:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusFulfilled || s == JobStatusFailedPermanent || s == JobStatusManualReview
}

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// ErrDuplicateOrder is returned when a job for the same source order is already active.
var ErrDuplicateOrder = errors.New("an active job already exists for this source order")

// FulfillmentJob is one unit of work: purchase this product on behalf of this order.
type FulfillmentJob struct {
	ID             string          `json:"id"                         db:"id"`
	SourceOrderRef string          `json:"source_order_ref"           db:"source_order_ref"`
	ProductRef     string          `json:"product_ref"                db:"product_ref"`
	AccountRef     string          `json:"account_ref"                db:"account_ref"`
	AddressLabel   string          `json:"address_label"              db:"address_label"`
	Status         JobStatus       `json:"status"                     db:"status"`
	Attempt        int             `json:"attempt"                    db:"attempt"`
	MaxAttempts    int             `json:"max_attempts"               db:"max_attempts"`
	Outcome        json.RawMessage `json:"outcome,omitempty"          db:"outcome"`
	LastError      *string         `json:"last_error,omitempty"       db:"last_error"`
	DiagnosticRef  *string         `json:"diagnostic_ref,omitempty"   db:"diagnostic_ref"`
	ScheduledAt    time.Time       `json:"scheduled_at"               db:"scheduled_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
}

// CreateJobRequest represents a request to enqueue a new fulfillment job.
type CreateJobRequest struct {
	SourceOrderRef string     `json:"source_order_ref"`
	ProductRef     string     `json:"product_ref"`
	AccountRef     string     `json:"account_ref"`
	AddressLabel   string     `json:"address_label"`
	MaxAttempts    int        `json:"max_attempts"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.SourceOrderRef) == "" {
		return errors.New("source order reference is required")
	}
	if strings.TrimSpace(r.ProductRef) == "" {
		return errors.New("product reference is required")
	}
	if strings.TrimSpace(r.AccountRef) == "" {
		return errors.New("account reference is required")
	}
	if strings.TrimSpace(r.AddressLabel) == "" {
		return errors.New("shipping address label is required")
	}
	if r.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must be >= 0, got %d", r.MaxAttempts)
	}
	return nil
}

// JobStats represents counts of jobs across states.
type JobStats struct {
	Pending         int `json:"pending"`
	Running         int `json:"running"`
	Fulfilled       int `json:"fulfilled"`
	FailedPermanent int `json:"failed_permanent"`
	ManualReview    int `json:"manual_review"`
}
