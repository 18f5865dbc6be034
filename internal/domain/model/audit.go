package model

import "time"

// AuditEntry is one recorded pipeline transition for a fulfillment job.
// Entries are append-only and survive the job's terminal state, so an
// operator can reconstruct what the automation did and saw.
type AuditEntry struct {
	ID            string    `json:"id" db:"id"`
	JobID         string    `json:"job_id" db:"job_id"`
	State         string    `json:"state" db:"state"`
	Detail        string    `json:"detail" db:"detail"`
	FailureCode   *string   `json:"failure_code,omitempty" db:"failure_code"`
	DiagnosticRef *string   `json:"diagnostic_ref,omitempty" db:"diagnostic_ref"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
