// Package service holds the business logic between the runner adapters and
// the data layer: queue operations, the fulfillment pipeline, and product
// verification.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/skuflow/skuflow/internal/core"
	domainjob "github.com/skuflow/skuflow/internal/domain/job"
	"github.com/skuflow/skuflow/internal/domain/model"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRepository        // Required: job repository
	DefaultLease    time.Duration             // Required unless LeasePolicy is set
	Logger          *slog.Logger              // Optional: structured logger
	LeasePolicy     *domainjob.LeasePolicy    // Optional: override default lease policy
	Notifier        domainjob.Notifier        // Optional: custom job availability notifier
	NotifierOptions domainjob.NotifierOptions // Optional: configure default notifier behaviour
}

// JobService provides queue operations for fulfillment jobs: enqueue,
// reservation with lease management, terminal transitions, and the
// notification fan-out that wakes idle workers.
type JobService struct {
	repo        core.JobRepository
	leasePolicy *domainjob.LeasePolicy
	notifier    domainjob.Notifier
	logger      *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	leasePolicy := opts.LeasePolicy
	if leasePolicy == nil {
		if opts.DefaultLease <= 0 {
			return nil, errors.New("DefaultLease must be positive")
		}
		var err error
		leasePolicy, err = domainjob.NewLeasePolicy(opts.DefaultLease)
		if err != nil {
			return nil, fmt.Errorf("create lease policy: %w", err)
		}
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
	}

	return &JobService{
		repo:        opts.Repo,
		leasePolicy: leasePolicy,
		notifier:    notifier,
		logger:      logger,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error. For
// startup wiring where invalid options are a programming error.
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Create enqueues a new fulfillment job. A second live job for the same
// source order is rejected with model.ErrDuplicateOrder.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*model.FulfillmentJob, error) {
	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job created",
			"id", job.ID,
			"source_order_ref", job.SourceOrderRef,
			"status", job.Status,
		)
	}

	return job, nil
}

// GetByID returns a job by its identifier.
func (s *JobService) GetByID(ctx context.Context, id string) (*model.FulfillmentJob, error) {
	return s.repo.GetByID(ctx, id)
}

// ReserveNext reserves the oldest due pending job under the given lease, or
// returns model.ErrNoJobsAvailable.
func (s *JobService) ReserveNext(ctx context.Context, lease time.Duration) (*model.FulfillmentJob, error) {
	seconds, clamped := s.leasePolicy.Resolve(lease)
	if clamped && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second lease duration to 1 second",
			"requested_duration", lease)
	}

	job, err := s.repo.ReserveNext(ctx, seconds)
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve next job: %w", err)
	}

	if s.logger != nil && job != nil {
		s.logger.DebugContext(ctx, "job reserved",
			"id", job.ID, "attempt", job.Attempt, "lease_seconds", seconds)
	}

	return job, nil
}

// Heartbeat extends the lease on a running job.
func (s *JobService) Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error) {
	seconds, clamped := s.leasePolicy.Resolve(extend)
	if clamped && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second heartbeat duration to 1 second",
			"requested_duration", extend, "job_id", id)
	}

	updated, err := s.repo.Heartbeat(ctx, id, seconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", id, err)
	}
	return updated, nil
}

// Complete marks a job fulfilled with its purchase outcome. The outcome must
// carry a confirmed order identifier.
func (s *JobService) Complete(ctx context.Context, id string, outcome *model.PurchaseOutcome) (bool, error) {
	completed, err := s.repo.Complete(ctx, id, outcome)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", id, err)
	}

	if s.logger != nil && completed {
		s.logger.InfoContext(ctx, "job fulfilled", "id", id, "order_id", outcome.OrderID)
	}

	return completed, nil
}

// Fail records a classified failure. Retry-safe failures with attempts left
// reschedule after retryDelay; everything else lands on the failure's
// disposition status.
func (s *JobService) Fail(ctx context.Context, id string, failure *model.AutomationFailure, retryDelay time.Duration) (bool, error) {
	if failure == nil {
		return false, errors.New("failure is required")
	}

	delaySeconds := int(retryDelay / time.Second)
	if delaySeconds < 0 {
		delaySeconds = 0
	}

	failed, err := s.repo.Fail(ctx, id, failure, delaySeconds)
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", id, err)
	}

	if s.logger != nil && failed {
		s.logger.WarnContext(ctx, "job failed",
			"id", id,
			"code", failure.Code,
			"state", failure.State,
			"retry_safe", failure.RetrySafe,
		)
	}

	return failed, nil
}

// Stats returns job counts per status.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}

// Subscribe registers for job-availability notifications. Returns an
// unsubscribe function and the notification channel.
func (s *JobService) Subscribe() (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe()
}

// Shutdown stops the notifier's listen loop and closes subscriber channels.
func (s *JobService) Shutdown() {
	if s.notifier != nil {
		s.notifier.StopAll()
	}
}
