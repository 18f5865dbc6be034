package config

// ObservabilityConfig controls metrics emission.
type ObservabilityConfig struct {
	StatsdEnabled bool   `env:"STATSD_ENABLED" envDefault:"false"`
	StatsdAddress string `env:"STATSD_ADDRESS" envDefault:"localhost:8125"`
	StatsdPrefix  string `env:"STATSD_PREFIX" envDefault:"skuflow"`
}

// Sanitize applies guardrails to metrics settings.
func (c *ObservabilityConfig) Sanitize() {
	if c.StatsdAddress == "" {
		c.StatsdAddress = "localhost:8125"
	}
	if c.StatsdPrefix == "" {
		c.StatsdPrefix = "skuflow"
	}
}
