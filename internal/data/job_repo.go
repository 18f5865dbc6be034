package data

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/skuflow/skuflow/internal/domain/model"
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for fulfillment job management.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  source_order_ref,
  product_ref,
  account_ref,
  address_label,
  status,
  attempt,
  max_attempts,
  outcome,
  last_error,
  diagnostic_ref,
  scheduled_at,
  started_at,
  completed_at,
  lease_expires_at,
  created_at,
  updated_at
`

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	outcome                                []byte
	lastError, diagnosticRef               sql.NullString
	startedAt, completedAt, leaseExpiresAt sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.FulfillmentJob) error {
	return scanner.Scan(
		&job.ID,
		&job.SourceOrderRef,
		&job.ProductRef,
		&job.AccountRef,
		&job.AddressLabel,
		&job.Status,
		&job.Attempt,
		&job.MaxAttempts,
		&d.outcome,
		&d.lastError,
		&d.diagnosticRef,
		&job.ScheduledAt,
		&d.startedAt,
		&d.completedAt,
		&d.leaseExpiresAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
}

func (d *jobRowData) apply(job *model.FulfillmentJob) {
	if len(d.outcome) > 0 {
		job.Outcome = append(json.RawMessage(nil), d.outcome...)
	}
	job.LastError = cloneNullableString(d.lastError)
	job.DiagnosticRef = cloneNullableString(d.diagnosticRef)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.CompletedAt = cloneNullableTime(d.completedAt)
	job.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)
}

func scanJobFromRow(scanner jobRowScanner) (*model.FulfillmentJob, error) {
	job := &model.FulfillmentJob{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	data.apply(job)
	return job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
