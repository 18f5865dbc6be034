package testutil

import (
	"time"

	"github.com/skuflow/skuflow/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			SourceOrderRef: "src-order-1001",
			ProductRef:     "https://www.amazon.co.jp/dp/B0TESTASIN",
			AccountRef:     "acct-alpha",
			AddressLabel:   "warehouse-tokyo",
			MaxAttempts:    3,
		},
	}
}

// WithSourceOrderRef sets the source order reference.
func (b *JobRequestBuilder) WithSourceOrderRef(ref string) *JobRequestBuilder {
	b.req.SourceOrderRef = ref
	return b
}

// WithProductRef sets the product reference.
func (b *JobRequestBuilder) WithProductRef(ref string) *JobRequestBuilder {
	b.req.ProductRef = ref
	return b
}

// WithAccountRef sets the account reference.
func (b *JobRequestBuilder) WithAccountRef(ref string) *JobRequestBuilder {
	b.req.AccountRef = ref
	return b
}

// WithAddressLabel sets the shipping address label.
func (b *JobRequestBuilder) WithAddressLabel(label string) *JobRequestBuilder {
	b.req.AddressLabel = label
	return b
}

// WithMaxAttempts sets the maximum number of attempts.
func (b *JobRequestBuilder) WithMaxAttempts(max int) *JobRequestBuilder {
	b.req.MaxAttempts = max
	return b
}

// WithScheduledAt sets the scheduled time.
func (b *JobRequestBuilder) WithScheduledAt(scheduledAt time.Time) *JobRequestBuilder {
	b.req.ScheduledAt = &scheduledAt
	return b
}

// Build returns the constructed request.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}
