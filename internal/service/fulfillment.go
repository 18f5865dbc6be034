package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/skuflow/skuflow/internal/automation"
	"github.com/skuflow/skuflow/internal/core"
	"github.com/skuflow/skuflow/internal/domain/model"
)

// Pipeline state names owned by the orchestrator rather than a single
// automation component.
const (
	stateResolveCredentials = "resolve_credentials"
	stateAcquireSession     = "acquire_session"
	stateVerifyProduct      = "verify_product"
)

// SessionProvider is the pool surface the pipeline drives.
type SessionProvider interface {
	Acquire(ctx context.Context, accountRef string) (*automation.Session, error)
	Release(sess *automation.Session)
	Persist(ctx context.Context, sess *automation.Session)
	Invalidate(ctx context.Context, sess *automation.Session)
}

// SessionAuthenticator signs a pooled session in.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, sess *automation.Session, creds *model.AccountCredentials, jobID string) *model.AutomationFailure
}

// ProductVerifier extracts a product snapshot from a page.
type ProductVerifier interface {
	Verify(ctx context.Context, page automation.Page, productRef string) (*model.ProductSnapshot, error)
}

// CheckoutRunner walks a session through cart, address and order placement.
type CheckoutRunner interface {
	Run(ctx context.Context, sess *automation.Session, req automation.CheckoutRequest) (*model.PurchaseOutcome, *model.AutomationFailure)
}

// FulfillmentServiceOptions groups dependencies for FulfillmentService.
type FulfillmentServiceOptions struct {
	Pool        SessionProvider
	Auth        SessionAuthenticator
	Verifier    ProductVerifier
	Checkout    CheckoutRunner
	Credentials core.CredentialResolver
	Audit       core.AuditRepository // Optional: pipeline transition trail
	JobTimeout  time.Duration
	Logger      *slog.Logger
}

// FulfillmentService runs one job through the full pipeline: resolve
// credentials, acquire the account's session, authenticate, verify the
// product, and drive checkout. It owns the job-level deadline and the
// session's lifecycle for the attempt.
type FulfillmentService struct {
	pool        SessionProvider
	auth        SessionAuthenticator
	verifier    ProductVerifier
	checkout    CheckoutRunner
	credentials core.CredentialResolver
	audit       core.AuditRepository
	jobTimeout  time.Duration
	logger      *slog.Logger
}

// NewFulfillmentService constructs a FulfillmentService.
func NewFulfillmentService(opts FulfillmentServiceOptions) (*FulfillmentService, error) {
	if opts.Pool == nil {
		return nil, errors.New("session provider is required")
	}
	if opts.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if opts.Checkout == nil {
		return nil, errors.New("checkout runner is required")
	}
	if opts.Credentials == nil {
		return nil, errors.New("credential resolver is required")
	}

	jobTimeout := opts.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 4 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &FulfillmentService{
		pool:        opts.Pool,
		auth:        opts.Auth,
		verifier:    opts.Verifier,
		checkout:    opts.Checkout,
		credentials: opts.Credentials,
		audit:       opts.Audit,
		jobTimeout:  jobTimeout,
		logger:      logger.With("component", "fulfillment"),
	}, nil
}

// Fulfill runs the pipeline for one reserved job. Exactly one of outcome and
// failure is non-nil. The caller decides the queue transition from the
// failure's retry-safe flag and disposition.
func (s *FulfillmentService) Fulfill(ctx context.Context, job *model.FulfillmentJob) (*model.PurchaseOutcome, *model.AutomationFailure) {
	ctx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	log := s.logger.With("job_id", job.ID, "account_ref", job.AccountRef, "attempt", job.Attempt)

	creds, err := s.credentials.Resolve(ctx, job.AccountRef)
	if err != nil {
		// A missing or malformed account entry cannot heal by retrying.
		retrySafe := !errors.Is(err, model.ErrAccountNotFound)
		return nil, s.classify(ctx, job, model.NewFailure(model.CodeLoginRejected, stateResolveCredentials,
			"resolve credentials: "+err.Error(), retrySafe))
	}

	sess, err := s.pool.Acquire(ctx, job.AccountRef)
	if err != nil {
		if errors.Is(err, automation.ErrSessionBusy) {
			// Another job holds this account right now; reschedule, never
			// open a second handle.
			return nil, s.classify(ctx, job, model.NewFailure(model.CodeSessionBusy, stateAcquireSession,
				err.Error(), true))
		}
		return nil, s.classify(ctx, job, model.NewFailure(model.CodeUnknownFailure, stateAcquireSession,
			"acquire session: "+err.Error(), true))
	}

	outcome, failure := s.runWithSession(ctx, log, sess, job, creds)
	if failure != nil {
		return nil, s.classify(ctx, job, s.timeoutOverride(ctx, failure))
	}
	return outcome, nil
}

// runWithSession executes the authenticated part of the pipeline. It owns
// releasing or invalidating the session.
func (s *FulfillmentService) runWithSession(
	ctx context.Context,
	log *slog.Logger,
	sess *automation.Session,
	job *model.FulfillmentJob,
	creds *model.AccountCredentials,
) (*model.PurchaseOutcome, *model.AutomationFailure) {
	if !sess.Authenticated {
		if failure := s.auth.Authenticate(ctx, sess, creds, job.ID); failure != nil {
			// The session is in an unknown page state and its cookies did
			// not help; drop both.
			s.pool.Invalidate(ctx, sess)
			return nil, failure
		}
		s.pool.Persist(ctx, sess)
	}
	s.recordState(ctx, job.ID, automation.StateAuthenticate, "session authenticated")

	if s.verifier != nil {
		s.verifyProduct(ctx, log, sess, job)
	}

	outcome, failure := s.checkout.Run(ctx, sess, automation.CheckoutRequest{
		JobID:        job.ID,
		ProductRef:   job.ProductRef,
		AddressLabel: job.AddressLabel,
	})
	if failure != nil {
		s.pool.Release(sess)
		return nil, failure
	}

	s.pool.Persist(ctx, sess)
	s.pool.Release(sess)
	return outcome, nil
}

// verifyProduct records a pre-purchase snapshot in the audit trail. The
// verification pass is advisory: extraction gaps are logged, never fatal,
// and the checkout machine remains the authority on purchasability.
func (s *FulfillmentService) verifyProduct(ctx context.Context, log *slog.Logger, sess *automation.Session, job *model.FulfillmentJob) {
	snapshot, err := s.verifier.Verify(ctx, sess.Page, job.ProductRef)
	if err != nil {
		log.WarnContext(ctx, "product verification failed", "error", err)
		return
	}

	detail := "snapshot captured"
	if data, merr := json.Marshal(snapshot); merr == nil {
		detail = string(data)
	}
	s.recordState(ctx, job.ID, stateVerifyProduct, detail)

	if !snapshot.Available {
		log.WarnContext(ctx, "product may be unavailable", "product_ref", job.ProductRef)
	}
}

// VerifyProduct runs a standalone verification pass on the account's session.
// Used by operator tooling to inspect a listing without enqueueing a job.
func (s *FulfillmentService) VerifyProduct(ctx context.Context, accountRef, productRef string) (*model.ProductSnapshot, error) {
	if s.verifier == nil {
		return nil, errors.New("verifier not configured")
	}

	sess, err := s.pool.Acquire(ctx, accountRef)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer s.pool.Release(sess)

	if !sess.Authenticated {
		creds, cerr := s.credentials.Resolve(ctx, accountRef)
		if cerr != nil {
			return nil, fmt.Errorf("resolve credentials: %w", cerr)
		}
		if failure := s.auth.Authenticate(ctx, sess, creds, "verify"); failure != nil {
			return nil, failure
		}
		s.pool.Persist(ctx, sess)
	}

	return s.verifier.Verify(ctx, sess.Page, productRef)
}

// timeoutOverride reclassifies a failure as PipelineTimeout when the
// job-level deadline elapsed, unless the pipeline already reached the
// ambiguous post-place-order states.
func (s *FulfillmentService) timeoutOverride(ctx context.Context, failure *model.AutomationFailure) *model.AutomationFailure {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return failure
	}
	switch failure.Code {
	case model.CodeOrderConfirmationFailed, model.CodeOrderIDNotFound:
		return failure
	}
	timeout := model.NewFailure(model.CodePipelineTimeout, failure.State, "job deadline elapsed: "+failure.Message, true)
	return timeout.WithDiagnostic(failure.DiagnosticRef)
}

// classify logs the failure and records its pipeline state in the audit
// trail before handing it back to the runner.
func (s *FulfillmentService) classify(ctx context.Context, job *model.FulfillmentJob, failure *model.AutomationFailure) *model.AutomationFailure {
	s.logger.WarnContext(ctx, "pipeline failure",
		"job_id", job.ID,
		"code", failure.Code,
		"state", failure.State,
		"retry_safe", failure.RetrySafe,
		"diagnostic_ref", failure.DiagnosticRef,
	)
	if s.audit != nil {
		entry := &model.AuditEntry{JobID: job.ID, State: failure.State, Detail: failure.Message}
		code := string(failure.Code)
		entry.FailureCode = &code
		if failure.DiagnosticRef != "" {
			ref := failure.DiagnosticRef
			entry.DiagnosticRef = &ref
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			s.logger.WarnContext(ctx, "audit record failed", "job_id", job.ID, "state", failure.State, "error", err)
		}
	}
	return failure
}

func (s *FulfillmentService) recordState(ctx context.Context, jobID, state, detail string) {
	if s.audit == nil {
		return
	}
	entry := &model.AuditEntry{JobID: jobID, State: state, Detail: detail}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", "job_id", jobID, "state", state, "error", err)
	}
}
