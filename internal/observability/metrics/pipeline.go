// Package metrics translates pipeline lifecycle events into metric emissions.
package metrics

import (
	"time"

	"github.com/skuflow/skuflow/internal/domain/model"
	"github.com/skuflow/skuflow/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultFulfilled = "fulfilled"
	ResultRetried   = "retried"
	ResultFailed    = "failed"
)

// PipelineRun captures one completed pipeline attempt for emission.
type PipelineRun struct {
	Result   string
	Duration time.Duration
	Failure  *model.AutomationFailure
}

// EmitPipelineRun emits the standard per-attempt counter and timing. Failed
// runs are tagged with the failure code and the state that detected it, so
// dashboards can break the taxonomy down without log scraping.
func EmitPipelineRun(sink statsd.Sink, run PipelineRun) {
	if sink == nil {
		return
	}

	tags := map[string]string{"result": run.Result}
	if run.Failure != nil {
		tags["failure_code"] = string(run.Failure.Code)
		if run.Failure.State != "" {
			tags["state"] = run.Failure.State
		}
	}

	sink.Count("pipeline.run", 1, tags)
	if run.Duration > 0 {
		sink.Timing("pipeline.duration", run.Duration, tags)
	}
}

// EmitQueueDepth publishes queue state gauges from a stats snapshot.
func EmitQueueDepth(sink statsd.Sink, stats *model.JobStats) {
	if sink == nil || stats == nil {
		return
	}
	sink.Gauge("queue.pending", float64(stats.Pending), nil)
	sink.Gauge("queue.running", float64(stats.Running), nil)
	sink.Gauge("queue.manual_review", float64(stats.ManualReview), nil)
}
