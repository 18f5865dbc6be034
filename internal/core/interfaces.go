package core

import (
	"context"

	"github.com/skuflow/skuflow/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// JobRepository defines the interface for fulfillment job data operations.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.FulfillmentJob, error)
	GetByID(ctx context.Context, id string) (*model.FulfillmentJob, error)
	// ReserveNext returns the oldest due pending job, or model.ErrNoJobsAvailable.
	ReserveNext(ctx context.Context, leaseSeconds int) (*model.FulfillmentJob, error)
	// WaitForNotification blocks until a job insert is announced or ctx ends.
	WaitForNotification(ctx context.Context) error
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, id string, outcome *model.PurchaseOutcome) (bool, error)
	// Fail records an automation failure and moves the job to its disposition
	// status, or reschedules it when the failure is retry-safe and attempts
	// remain.
	Fail(ctx context.Context, id string, failure *model.AutomationFailure, retryDelaySeconds int) (bool, error)
	Stats(ctx context.Context) (*model.JobStats, error)
}

// AuditRepository records the per-job trail of pipeline transitions.
type AuditRepository interface {
	Record(ctx context.Context, entry *model.AuditEntry) error
	ListByJob(ctx context.Context, jobID string, limit int) ([]*model.AuditEntry, error)
}

// CredentialResolver maps an account reference to a login identity. The
// mapping source never stores secrets alongside job rows.
type CredentialResolver interface {
	Resolve(ctx context.Context, accountRef string) (*model.AccountCredentials, error)
}
