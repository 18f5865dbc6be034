// Package config defines environment-driven configuration for the skuflow
// fulfillment service.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config files for the
// available variables:
//   - database.go: PostgreSQL and Redis configuration
//   - automation.go: browser automation and checkout configuration
//   - services.go: service mode and runner configuration
//   - observability.go: metrics configuration
package config

import (
	"fmt"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
type AppConfig struct {
	// IsDev controls development-mode behavior (non-headless browser, verbose logs).
	IsDev bool `env:"DEV" envDefault:"false"`

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	Automation AutomationConfig `envPrefix:"AUTOMATION_"`
	Runner     RunnerConfig     `envPrefix:"RUNNER_"`

	Observability ObservabilityConfig

	// Services selects which service modes this process runs.
	Services string `env:"SERVICES" envDefault:"runner"`
}

// Sanitize applies guardrails to configuration values loaded from env.
func (c *AppConfig) Sanitize() {
	c.Automation.Sanitize()
	c.Runner.Sanitize()
	c.Observability.Sanitize()
}

// ServiceMode identifies a runnable service within this process.
type ServiceMode string

const (
	// ServiceModeRunner is the fulfillment job runner.
	ServiceModeRunner ServiceMode = "runner"
)

// ParseServices parses a comma-separated service list into a mode set.
func ParseServices(raw string) (map[ServiceMode]bool, error) {
	modes := make(map[ServiceMode]bool)
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		switch ServiceMode(name) {
		case ServiceModeRunner:
			modes[ServiceModeRunner] = true
		default:
			return nil, fmt.Errorf("unknown service mode: %q", name)
		}
	}
	if len(modes) == 0 {
		return nil, fmt.Errorf("no services specified in %q", raw)
	}
	return modes, nil
}

// GetEnabledServices returns the enabled service modes.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsRunnerEnabled returns true if the fulfillment runner is enabled.
func (c *AppConfig) IsRunnerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeRunner]
}
