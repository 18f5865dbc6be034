package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skuflow/skuflow/internal/domain/model"
)

// stubJobRepo records calls and plays back canned results.
type stubJobRepo struct {
	job          *model.FulfillmentJob
	reserveErr   error
	lastLease    int
	lastDelay    int
	lastFailure  *model.AutomationFailure
	lastOutcome  *model.PurchaseOutcome
	failReturned bool
}

func (r *stubJobRepo) Create(_ context.Context, req *model.CreateJobRequest) (*model.FulfillmentJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &model.FulfillmentJob{ID: "job-1", SourceOrderRef: req.SourceOrderRef, Status: model.JobStatusPending}, nil
}

func (r *stubJobRepo) GetByID(context.Context, string) (*model.FulfillmentJob, error) {
	return r.job, nil
}

func (r *stubJobRepo) ReserveNext(_ context.Context, leaseSeconds int) (*model.FulfillmentJob, error) {
	r.lastLease = leaseSeconds
	if r.reserveErr != nil {
		return nil, r.reserveErr
	}
	return r.job, nil
}

func (r *stubJobRepo) WaitForNotification(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (r *stubJobRepo) Heartbeat(_ context.Context, _ string, leaseSeconds int) (bool, error) {
	r.lastLease = leaseSeconds
	return true, nil
}

func (r *stubJobRepo) Complete(_ context.Context, _ string, outcome *model.PurchaseOutcome) (bool, error) {
	r.lastOutcome = outcome
	return true, nil
}

func (r *stubJobRepo) Fail(_ context.Context, _ string, failure *model.AutomationFailure, retryDelaySeconds int) (bool, error) {
	r.lastFailure = failure
	r.lastDelay = retryDelaySeconds
	r.failReturned = true
	return true, nil
}

func (r *stubJobRepo) Stats(context.Context) (*model.JobStats, error) {
	return &model.JobStats{Pending: 2}, nil
}

func newTestJobService(t *testing.T, repo *stubJobRepo) *JobService {
	t.Helper()
	svc, err := NewJobService(JobServiceOptions{Repo: repo, DefaultLease: 5 * time.Minute})
	require.NoError(t, err)
	t.Cleanup(svc.Shutdown)
	return svc
}

func TestNewJobService_Validation(t *testing.T) {
	_, err := NewJobService(JobServiceOptions{DefaultLease: time.Minute})
	assert.Error(t, err, "repo is required")

	_, err = NewJobService(JobServiceOptions{Repo: &stubJobRepo{}})
	assert.Error(t, err, "default lease is required")
}

func TestJobService_ReserveNext(t *testing.T) {
	repo := &stubJobRepo{job: &model.FulfillmentJob{ID: "job-1", Status: model.JobStatusRunning}}
	svc := newTestJobService(t, repo)

	job, err := svc.ReserveNext(context.Background(), 90*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, 90, repo.lastLease)

	t.Run("zero lease uses the default", func(t *testing.T) {
		_, err := svc.ReserveNext(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, 300, repo.lastLease)
	})

	t.Run("sub-second lease clamps to one second", func(t *testing.T) {
		_, err := svc.ReserveNext(context.Background(), 200*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 1, repo.lastLease)
	})

	t.Run("empty queue passes the sentinel through", func(t *testing.T) {
		repo.reserveErr = model.ErrNoJobsAvailable
		_, err := svc.ReserveNext(context.Background(), time.Minute)
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
		repo.reserveErr = nil
	})
}

func TestJobService_Fail(t *testing.T) {
	repo := &stubJobRepo{}
	svc := newTestJobService(t, repo)

	failure := model.NewFailure(model.CodeSessionBusy, "acquire_session", "busy", true)
	failed, err := svc.Fail(context.Background(), "job-1", failure, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, failed)
	assert.Equal(t, 30, repo.lastDelay)
	assert.Equal(t, failure, repo.lastFailure)

	_, err = svc.Fail(context.Background(), "job-1", nil, 0)
	assert.Error(t, err, "a failure value is required")
}

func TestJobService_Complete(t *testing.T) {
	repo := &stubJobRepo{}
	svc := newTestJobService(t, repo)

	outcome := &model.PurchaseOutcome{OrderID: "249-1234567-7654321"}
	completed, err := svc.Complete(context.Background(), "job-1", outcome)
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, outcome, repo.lastOutcome)
}

func TestJobService_Subscribe(t *testing.T) {
	svc := newTestJobService(t, &stubJobRepo{})

	unsub, ch := svc.Subscribe()
	require.NotNil(t, ch)
	unsub()

	// After unsubscribe the channel is closed.
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected closed channel after unsubscribe")
	}
}
