package fulfillrunner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skuflow/skuflow/internal/domain/model"
)

// fakeQueue plays back a fixed list of jobs, then reports empty.
type fakeQueue struct {
	mu        sync.Mutex
	jobs      []*model.FulfillmentJob
	completed []string
	failed    []string
	failures  []*model.AutomationFailure
	delays    []time.Duration
}

func (q *fakeQueue) ReserveNext(_ context.Context, _ time.Duration) (*model.FulfillmentJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, model.ErrNoJobsAvailable
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, nil
}

func (q *fakeQueue) Complete(_ context.Context, id string, _ *model.PurchaseOutcome) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, id)
	return true, nil
}

func (q *fakeQueue) Fail(_ context.Context, id string, failure *model.AutomationFailure, delay time.Duration) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, id)
	q.failures = append(q.failures, failure)
	q.delays = append(q.delays, delay)
	return true, nil
}

func (q *fakeQueue) Stats(context.Context) (*model.JobStats, error) {
	return &model.JobStats{}, nil
}

func (q *fakeQueue) Subscribe() (func(), <-chan struct{}) {
	return func() {}, make(chan struct{})
}

func (q *fakeQueue) snapshot() ([]string, []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.completed...), append([]string(nil), q.failed...)
}

// fakePipeline fulfills or fails by job ID.
type fakePipeline struct {
	failures map[string]*model.AutomationFailure
}

func (p *fakePipeline) Fulfill(_ context.Context, job *model.FulfillmentJob) (*model.PurchaseOutcome, *model.AutomationFailure) {
	if failure, ok := p.failures[job.ID]; ok {
		return nil, failure
	}
	return &model.PurchaseOutcome{OrderID: "249-1234567-7654321"}, nil
}

func runUntilDrained(t *testing.T, r *Runner, q *fakeQueue, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		completed, failed := q.snapshot()
		if len(completed)+len(failed) >= want {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatal("runner did not drain the queue in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	require.NoError(t, <-done)
}

func TestRunner_ProcessesJobs(t *testing.T) {
	q := &fakeQueue{jobs: []*model.FulfillmentJob{
		{ID: "job-1", Attempt: 1, MaxAttempts: 3},
		{ID: "job-2", Attempt: 1, MaxAttempts: 3},
	}}
	r, err := NewRunner(RunnerOptions{
		Jobs:         q,
		Pipeline:     &fakePipeline{},
		Concurrency:  2,
		PollInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	runUntilDrained(t, r, q, 2)

	completed, failed := q.snapshot()
	assert.ElementsMatch(t, []string{"job-1", "job-2"}, completed)
	assert.Empty(t, failed)
}

func TestRunner_RoutesFailuresWithRetryDelay(t *testing.T) {
	q := &fakeQueue{jobs: []*model.FulfillmentJob{
		{ID: "job-1", Attempt: 1, MaxAttempts: 3},
	}}
	failure := model.NewFailure(model.CodeSessionBusy, "acquire_session", "busy", true)
	r, err := NewRunner(RunnerOptions{
		Jobs:         q,
		Pipeline:     &fakePipeline{failures: map[string]*model.AutomationFailure{"job-1": failure}},
		RetryDelay:   30 * time.Second,
		PollInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	runUntilDrained(t, r, q, 1)

	completed, failed := q.snapshot()
	assert.Empty(t, completed)
	assert.Equal(t, []string{"job-1"}, failed)
	assert.Equal(t, failure, q.failures[0])
	assert.Equal(t, 30*time.Second, q.delays[0])
}

func TestRunner_StopsOnContextCancel(t *testing.T) {
	q := &fakeQueue{}
	r, err := NewRunner(RunnerOptions{
		Jobs:         q,
		Pipeline:     &fakePipeline{},
		PollInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Pipeline: &fakePipeline{}})
	assert.Error(t, err)

	_, err = NewRunner(RunnerOptions{Jobs: &fakeQueue{}})
	assert.Error(t, err)
}
