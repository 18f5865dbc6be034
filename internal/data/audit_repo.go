package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/skuflow/skuflow/internal/domain/model"
)

// AuditRepo provides database operations for the per-job audit trail.
type AuditRepo struct {
	DB *sql.DB
}

// NewAuditRepo creates a new AuditRepo instance.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{DB: db}
}

const auditColumns = `id, job_id, state, detail, failure_code, diagnostic_ref, created_at`

// Record appends an audit entry for a job.
func (r *AuditRepo) Record(ctx context.Context, entry *model.AuditEntry) error {
	if entry == nil || strings.TrimSpace(entry.JobID) == "" || strings.TrimSpace(entry.State) == "" {
		return ErrAuditEntryInvalid
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO job_audit (job_id, state, detail, failure_code, diagnostic_ref)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.JobID, entry.State, entry.Detail, entry.FailureCode, entry.DiagnosticRef)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByJob returns the audit trail for a job, oldest first.
func (r *AuditRepo) ListByJob(ctx context.Context, jobID string, limit int) ([]*model.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+auditColumns+`
		FROM job_audit
		WHERE job_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []*model.AuditEntry
	for rows.Next() {
		entry := &model.AuditEntry{}
		var failureCode, diagnosticRef sql.NullString
		if err := rows.Scan(
			&entry.ID,
			&entry.JobID,
			&entry.State,
			&entry.Detail,
			&failureCode,
			&diagnosticRef,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.FailureCode = cloneNullableString(failureCode)
		entry.DiagnosticRef = cloneNullableString(diagnosticRef)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, nil
}
