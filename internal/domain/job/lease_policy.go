// Package job holds queue-side domain logic for fulfillment jobs: lease
// normalisation and availability notification.
package job

import (
	"errors"
	"time"
)

// ErrInvalidDefaultLease indicates the configured default lease duration is not positive.
var ErrInvalidDefaultLease = errors.New("default lease must be positive")

// LeasePolicy normalises lease durations for job reservations. Leases are
// stored as whole seconds; sub-second requests are clamped to one second so a
// reservation can never expire before the reserving statement commits.
type LeasePolicy struct {
	defaultLease time.Duration
}

// NewLeasePolicy constructs a LeasePolicy with the provided default lease duration.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	if defaultLease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	return &LeasePolicy{defaultLease: defaultLease}, nil
}

// Default returns the configured default lease duration.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultLease
}

// Resolve normalises the requested duration to whole seconds. A zero request
// falls back to the default; anything under a second reports clamped.
func (p *LeasePolicy) Resolve(request time.Duration) (seconds int, clamped bool) {
	if p == nil {
		return 0, false
	}
	d := request
	if d == 0 {
		d = p.defaultLease
	}
	s := int64(d / time.Second)
	if s <= 0 {
		return 1, true
	}
	return int(s), false
}
