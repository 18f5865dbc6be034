// Package fulfillrunner pulls fulfillment jobs off the queue and drives them
// through the automation pipeline with a pool of workers.
package fulfillrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/skuflow/skuflow/internal/domain/model"
	"github.com/skuflow/skuflow/internal/observability/metrics"
	"github.com/skuflow/skuflow/internal/observability/statsd"
	"github.com/skuflow/skuflow/internal/service"
)

// Queue is the job-service surface the runner needs.
type Queue interface {
	ReserveNext(ctx context.Context, lease time.Duration) (*model.FulfillmentJob, error)
	Complete(ctx context.Context, id string, outcome *model.PurchaseOutcome) (bool, error)
	Fail(ctx context.Context, id string, failure *model.AutomationFailure, retryDelay time.Duration) (bool, error)
	Stats(ctx context.Context) (*model.JobStats, error)
	Subscribe() (func(), <-chan struct{})
}

// Pipeline executes one reserved job end to end.
type Pipeline interface {
	Fulfill(ctx context.Context, job *model.FulfillmentJob) (*model.PurchaseOutcome, *model.AutomationFailure)
}

// RunnerOptions configures the fulfillment runner.
type RunnerOptions struct {
	Jobs     Queue
	Pipeline Pipeline
	Logger   *slog.Logger
	Metrics  statsd.Sink

	Lease        time.Duration // per-job lease; must outlast the pipeline's job timeout
	RetryDelay   time.Duration // reschedule distance for retry-safe failures
	PollInterval time.Duration // fallback reserve cadence when no notification arrives
	Concurrency  int           // worker goroutines
}

// Runner reserves jobs and executes them until its context ends.
type Runner struct {
	jobs     Queue
	pipeline Pipeline
	logger   *slog.Logger
	metrics  statsd.Sink

	lease        time.Duration
	retryDelay   time.Duration
	pollInterval time.Duration
	workers      int
	instanceID   string
}

// NewRunner constructs a fulfillment runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job queue is required")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	workers := opts.Concurrency
	if workers < 1 {
		workers = 1
	}
	retryDelay := opts.RetryDelay
	if retryDelay < 0 {
		retryDelay = 0
	}

	instanceID := uuid.NewString()
	return &Runner{
		jobs:         opts.Jobs,
		pipeline:     opts.Pipeline,
		logger:       logger.With("component", "fulfill_runner", "runner_id", instanceID),
		metrics:      opts.Metrics,
		lease:        lease,
		retryDelay:   retryDelay,
		pollInterval: pollInterval,
		workers:      workers,
		instanceID:   instanceID,
	}, nil
}

// Run starts the worker pool and processes jobs until ctx is cancelled. The
// first fatal worker error stops every worker.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting fulfillment runner",
		"workers", r.workers, "lease", r.lease, "poll_interval", r.pollInterval)

	unsub, notify := r.jobs.Subscribe()
	defer unsub()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.workers; i++ {
		worker := i
		g.Go(func() error {
			return r.workerLoop(ctx, worker, notify)
		})
	}
	if r.metrics != nil {
		g.Go(func() error {
			r.statsLoop(ctx)
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (r *Runner) workerLoop(ctx context.Context, worker int, notify <-chan struct{}) error {
	log := r.logger.With("worker", worker)

	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, r.lease)
		switch {
		case err == nil:
			r.processJob(ctx, log, job)
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForWork(ctx, notify) {
				return ctx.Err()
			}
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("reserve next job: %w", err)
		}
	}
	return ctx.Err()
}

// waitForWork blocks until a notification, the poll interval, or shutdown.
// The poll fallback covers a NOTIFY lost between reserve and subscribe.
func (r *Runner) waitForWork(ctx context.Context, notify <-chan struct{}) bool {
	timer := time.NewTimer(r.pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	case <-timer.C:
		return true
	}
}

func (r *Runner) processJob(ctx context.Context, log *slog.Logger, job *model.FulfillmentJob) {
	start := time.Now()
	log.InfoContext(ctx, "processing job",
		"job_id", job.ID, "source_order_ref", job.SourceOrderRef, "attempt", job.Attempt)

	outcome, failure := r.pipeline.Fulfill(ctx, job)

	// The queue transition must land even when shutdown cancelled the
	// worker context mid-job; otherwise the job stays leased until expiry.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if failure != nil {
		if _, err := r.jobs.Fail(finishCtx, job.ID, failure, r.retryDelay); err != nil {
			log.ErrorContext(ctx, "fail transition error", "job_id", job.ID, "error", err)
		}
		result := metrics.ResultFailed
		if failure.RetrySafe && job.Attempt < job.MaxAttempts {
			result = metrics.ResultRetried
		}
		metrics.EmitPipelineRun(r.metrics, metrics.PipelineRun{
			Result:   result,
			Duration: time.Since(start),
			Failure:  failure,
		})
		return
	}

	if _, err := r.jobs.Complete(finishCtx, job.ID, outcome); err != nil {
		log.ErrorContext(ctx, "complete transition error", "job_id", job.ID, "error", err)
	}
	metrics.EmitPipelineRun(r.metrics, metrics.PipelineRun{
		Result:   metrics.ResultFulfilled,
		Duration: time.Since(start),
	})
}

func (r *Runner) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := r.jobs.Stats(ctx)
			if err != nil {
				r.logger.DebugContext(ctx, "queue stats failed", "error", err)
				continue
			}
			metrics.EmitQueueDepth(r.metrics, stats)
		}
	}
}

var (
	_ Queue    = (*service.JobService)(nil)
	_ Pipeline = (*service.FulfillmentService)(nil)
)
