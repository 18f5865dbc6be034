package config

import "time"

// RunnerConfig tunes the fulfillment job runner.
type RunnerConfig struct {
	// Concurrency is the number of worker goroutines pulling jobs. Browser
	// checkout is heavyweight, so the default stays at one.
	Concurrency int `env:"CONCURRENCY" envDefault:"1"`
	// Lease is how long a reserved job stays invisible to other runners.
	// It must outlast the automation job timeout or a live run can be
	// requeued from under its worker.
	Lease time.Duration `env:"LEASE" envDefault:"5m"`
	// RetryDelay is how far into the future retry-safe failures reschedule.
	RetryDelay time.Duration `env:"RETRY_DELAY" envDefault:"30s"`
	// MaxAttempts caps retry-safe reschedules per job.
	MaxAttempts int `env:"MAX_ATTEMPTS" envDefault:"3"`
	// PollInterval is the fallback reserve cadence when no notification wakes
	// a worker first.
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"15s"`
}

// Sanitize clamps runner settings to safe values.
func (c *RunnerConfig) Sanitize() {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.Lease <= 0 {
		c.Lease = 5 * time.Minute
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Second
	}
}
