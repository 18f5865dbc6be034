package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/skuflow/skuflow/internal/data/pgxutil"
	"github.com/skuflow/skuflow/internal/domain/model"
)

// jobAddedChannel is the pg_notify channel announcing new fulfillment jobs.
const jobAddedChannel = "fulfillment_job_added"

// Advisory lock keys for requeueExpired. One queue, so the keys are fixed.
const (
	advisoryLockRequeueMajor int64 = 1001
	advisoryLockRequeueMinor int64 = 1
)

const defaultMaxAttempts = 3

// SQL used by ReserveNext to atomically reserve the next job.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM fulfillment_jobs
    WHERE status = 'pending' AND scheduled_at <= $1
    ORDER BY scheduled_at ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE fulfillment_jobs j
  SET
    status = 'running',
    started_at = COALESCE(j.started_at, $2),
    lease_expires_at = $3,
    updated_at = $4
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.source_order_ref, j.product_ref, j.account_ref, j.address_label, j.status, j.attempt, j.max_attempts, j.outcome, j.last_error, j.diagnostic_ref, j.scheduled_at, j.started_at, j.completed_at, j.lease_expires_at, j.created_at, j.updated_at`

// Create enqueues a new fulfillment job. A second active job for the same
// source order is rejected with model.ErrDuplicateOrder.
func (r *JobRepo) Create(
	ctx context.Context,
	req *model.CreateJobRequest,
) (*model.FulfillmentJob, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	var scheduledAt time.Time
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	} else {
		scheduledAt = r.timeProvider.Now().UTC()
	}

	var job *model.FulfillmentJob
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, `
        INSERT INTO fulfillment_jobs(source_order_ref, product_ref, account_ref, address_label, status, scheduled_at, max_attempts)
        VALUES ($1, $2, $3, $4, 'pending', $5, $6)
        RETURNING `+jobColumns,
				req.SourceOrderRef,
				req.ProductRef,
				req.AccountRef,
				req.AddressLabel,
				scheduledAt,
				maxAttempts,
			)
			if err != nil {
				return fmt.Errorf("insert job: %w", err)
			}
			j, collectErr := collectJobFromRows(rows)
			rows.Close()
			if collectErr != nil {
				return fmt.Errorf("collect job: %w", collectErr)
			}

			if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, jobAddedChannel, j.ID); execErr != nil {
				return fmt.Errorf("send job notification: %w", execErr)
			}

			job = j
			return nil
		},
	})
	if txErr != nil {
		return nil, mapPostgresError(txErr)
	}

	return job, nil
}

// collectJobFromRows collects a single job from pgx rows.
func collectJobFromRows(rows pgx.Rows) (*model.FulfillmentJob, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return job, nil
}

// requeueExpired returns expired running jobs to the pending queue so a crashed
// worker's lease does not strand them. Guarded by an advisory lock so only one
// runner pays the cost per reserve cycle.
func (r *JobRepo) requeueExpired(ctx context.Context) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)", advisoryLockRequeueMajor, advisoryLockRequeueMinor).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			res, err := tx.ExecContext(ctx, `
          UPDATE fulfillment_jobs
          SET status = 'pending', lease_expires_at = NULL
          WHERE status = 'running'
            AND lease_expires_at IS NOT NULL
            AND lease_expires_at < $1
        `, currentTime.UTC())
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// ReserveNext reserves the oldest due pending job for processing.
func (r *JobRepo) ReserveNext(
	ctx context.Context,
	leaseSeconds int,
) (*model.FulfillmentJob, error) {
	if requeued, err := r.requeueExpired(ctx); err != nil {
		return nil, fmt.Errorf("requeue expired jobs: %w", err)
	} else if requeued > 0 && r.logger != nil {
		r.logger.WarnContext(ctx, "requeued expired job leases", "count", requeued)
	}

	var job *model.FulfillmentJob
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
			ReadOnly:  false,
		},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()
			leaseExpiresAt := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

			rows, qerr := tx.Query(
				ctx,
				reserveNextUpdateSQL,
				currentTime.UTC(),
				currentTime.UTC(),
				leaseExpiresAt.UTC(),
				currentTime.UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("reserve job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := collectJobFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve job: %w", cerr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, err
	}
	return job, nil
}

// Heartbeat refreshes the lease on a running job.
func (r *JobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	currentTime := r.timeProvider.Now().UTC()
	leaseExpiration := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

	res, err := r.DB.ExecContext(ctx, `
		UPDATE fulfillment_jobs
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, jobID, leaseExpiration, currentTime)
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Complete marks a running job as fulfilled and stores the purchase outcome.
// The outcome must carry a confirmed order identifier.
func (r *JobRepo) Complete(ctx context.Context, id string, outcome *model.PurchaseOutcome) (bool, error) {
	if outcome == nil || outcome.OrderID == "" {
		return false, errors.New("purchase outcome with order id is required")
	}

	raw, err := json.Marshal(outcome)
	if err != nil {
		return false, fmt.Errorf("marshal outcome: %w", err)
	}

	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE fulfillment_jobs
		SET status = 'fulfilled',
		    outcome = $2,
		    completed_at = $3,
		    updated_at = $3,
		    lease_expires_at = NULL,
		    last_error = NULL
		WHERE id = $1 AND status = 'running'
	`

	res, err := r.DB.ExecContext(ctx, query, id, raw, currentTime)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	r.recordAudit(ctx, auditParams{
		jobID:  id,
		state:  "fulfilled",
		detail: "order " + outcome.OrderID,
	})

	return true, nil
}

// Fail records an automation failure on a running job. Retry-safe failures
// reschedule while attempts remain; everything else lands on the failure's
// disposition status. The disposition is decided by the failure code, not here.
func (r *JobRepo) Fail(
	ctx context.Context,
	id string,
	failure *model.AutomationFailure,
	retryDelaySeconds int,
) (bool, error) {
	if failure == nil {
		return false, errors.New("automation failure is required")
	}
	if retryDelaySeconds < 0 {
		retryDelaySeconds = 0
	}

	currentTime := r.timeProvider.Now()
	retryScheduledAt := currentTime.Add(time.Duration(retryDelaySeconds) * time.Second)
	terminal := failure.Disposition()

	var diagnosticRef *string
	if failure.DiagnosticRef != "" {
		ref := failure.DiagnosticRef
		diagnosticRef = &ref
	}

	query := `
      UPDATE fulfillment_jobs
      SET
        last_error = $2,
        diagnostic_ref = COALESCE($3, diagnostic_ref),
        attempt = attempt + 1,
        status = CASE WHEN $4::boolean AND attempt + 1 < max_attempts THEN 'pending' ELSE $5::text END,
        completed_at = CASE WHEN $4::boolean AND attempt + 1 < max_attempts THEN NULL ELSE $6::timestamptz END,
        scheduled_at = CASE WHEN $4::boolean AND attempt + 1 < max_attempts THEN $7::timestamptz ELSE scheduled_at END,
        lease_expires_at = NULL,
        updated_at = $6
      WHERE id = $1 AND status = 'running'
      RETURNING status
    `

	var status string
	err := r.DB.QueryRowContext(
		ctx,
		query,
		id,
		failure.Error(),
		diagnosticRef,
		failure.RetrySafe,
		string(terminal),
		currentTime.UTC(),
		retryScheduledAt.UTC(),
	).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("fail job: %w", err)
	}

	code := string(failure.Code)
	r.recordAudit(ctx, auditParams{
		jobID:         id,
		state:         failure.State,
		detail:        failure.Message + " -> " + status,
		failureCode:   &code,
		diagnosticRef: diagnosticRef,
	})

	return true, nil
}

type auditParams struct {
	jobID         string
	state         string
	detail        string
	failureCode   *string
	diagnosticRef *string
}

// recordAudit appends a trail row. Audit writes are best-effort: a failed
// insert is logged and never fails the job transition that triggered it.
func (r *JobRepo) recordAudit(ctx context.Context, p auditParams) {
	state := p.state
	if state == "" {
		state = "unknown"
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO job_audit (job_id, state, detail, failure_code, diagnostic_ref)
		VALUES ($1, $2, $3, $4, $5)
	`, p.jobID, state, p.detail, p.failureCode, p.diagnosticRef)
	if err != nil && r.logger != nil {
		r.logger.WarnContext(ctx, "record job audit failed",
			"job_id", p.jobID,
			"state", state,
			"error", err,
		)
	}
}

// Stats returns counts of fulfillment jobs in each state.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')          AS pending,
    count(*) FILTER (WHERE status = 'running')          AS running,
    count(*) FILTER (WHERE status = 'fulfilled')        AS fulfilled,
    count(*) FILTER (WHERE status = 'failed_permanent') AS failed_permanent,
    count(*) FILTER (WHERE status = 'manual_review')    AS manual_review
  FROM fulfillment_jobs
  `).Scan(
		&s.Pending,
		&s.Running,
		&s.Fulfilled,
		&s.FailedPermanent,
		&s.ManualReview,
	)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return &s, nil
}

// WaitForNotification waits for a PostgreSQL notification indicating new jobs are available.
func (r *JobRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	quoted := pgx.Identifier{jobAddedChannel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", jobAddedChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.FulfillmentJob, error) {
	var job *model.FulfillmentJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM fulfillment_jobs
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}
