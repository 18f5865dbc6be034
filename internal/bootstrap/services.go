package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skuflow/skuflow/config"
	"github.com/skuflow/skuflow/internal/adapters/credentials"
	"github.com/skuflow/skuflow/internal/adapters/fulfillrunner"
	redisadapter "github.com/skuflow/skuflow/internal/adapters/redis"
	"github.com/skuflow/skuflow/internal/automation"
	"github.com/skuflow/skuflow/internal/data"
	"github.com/skuflow/skuflow/internal/observability/statsd"
	"github.com/skuflow/skuflow/internal/service"
)

// shutdownWaitTimeout bounds how long a graceful stop waits for the runner to
// drain its in-flight job before giving up.
const shutdownWaitTimeout = 45 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs        *service.JobService
	Fulfillment *service.FulfillmentService
	Runner      *fulfillrunner.Runner

	// Browser and Pool are retained for shutdown: the pool owns live session
	// pages and the browser owns the underlying process.
	Browser *automation.Browser
	Pool    *automation.SessionPool

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink *statsd.Client
	Config      config.ObservabilityConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures the metrics sink.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.StatsdEnabled {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.StatsdAddress,
			Prefix:  cfg.StatsdPrefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink: metricsSink,
		Config:      cfg,
	}
}

// buildAutomation assembles the browser automation stack: page factory,
// locator set, diagnostics, session pool, and the three pipeline stages.
func buildAutomation(deps ServiceDeps) (*automationStack, error) {
	cfg := deps.Config.Automation

	locators, err := automation.LoadLocators(cfg.LocatorsFile)
	if err != nil {
		return nil, fmt.Errorf("load locators: %w", err)
	}

	browser := automation.NewBrowser(cfg, deps.Logger)
	diag := automation.NewDiagnostics(cfg.ScreenshotDir, deps.Logger)
	store := redisadapter.NewSessionStateStore(deps.RedisClient, cfg.SessionStateTTL)

	pool, err := automation.NewSessionPool(automation.PoolOptions{
		Factory: browser,
		Store:   store,
		IdleTTL: cfg.SessionIdleTTL,
		Logger:  deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build session pool: %w", err)
	}

	return &automationStack{
		Browser:  browser,
		Pool:     pool,
		Auth:     automation.NewAuthenticator(cfg, locators, diag, deps.Logger),
		Verifier: automation.NewVerifier(cfg, locators, deps.Logger),
		Checkout: automation.NewCheckoutMachine(cfg, locators, diag, deps.Logger),
	}, nil
}

type automationStack struct {
	Browser  *automation.Browser
	Pool     *automation.SessionPool
	Auth     *automation.Authenticator
	Verifier *automation.Verifier
	Checkout *automation.CheckoutMachine
}

// NewServices creates the service container with all dependencies wired.
func NewServices(deps ServiceDeps) (*ServiceContainer, error) {
	if deps.Config == nil {
		return nil, errors.New("app config is required")
	}
	if deps.DB == nil {
		return nil, errors.New("database connection is required")
	}
	if deps.RedisClient == nil {
		return nil, errors.New("redis client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	deps.Logger = logger

	observability := buildObservability(logger, deps.Config.Observability)

	jobRepo := data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger})
	auditRepo := data.NewAuditRepo(deps.DB)

	stack, err := buildAutomation(deps)
	if err != nil {
		return nil, err
	}

	resolver, err := credentials.NewFileResolver(deps.Config.Automation.AccountsFile)
	if err != nil {
		return nil, fmt.Errorf("build credential resolver: %w", err)
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:         jobRepo,
		DefaultLease: deps.Config.Runner.Lease,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build job service: %w", err)
	}

	fulfillment, err := service.NewFulfillmentService(service.FulfillmentServiceOptions{
		Pool:        stack.Pool,
		Auth:        stack.Auth,
		Verifier:    stack.Verifier,
		Checkout:    stack.Checkout,
		Credentials: resolver,
		Audit:       auditRepo,
		JobTimeout:  deps.Config.Automation.JobTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build fulfillment service: %w", err)
	}

	var sink statsd.Sink
	if observability.MetricsSink != nil {
		sink = observability.MetricsSink
	}

	runner, err := fulfillrunner.NewRunner(fulfillrunner.RunnerOptions{
		Jobs:         jobs,
		Pipeline:     fulfillment,
		Logger:       logger,
		Metrics:      sink,
		Lease:        deps.Config.Runner.Lease,
		RetryDelay:   deps.Config.Runner.RetryDelay,
		PollInterval: deps.Config.Runner.PollInterval,
		Concurrency:  deps.Config.Runner.Concurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("build fulfillment runner: %w", err)
	}

	return &ServiceContainer{
		Jobs:          jobs,
		Fulfillment:   fulfillment,
		Runner:        runner,
		Browser:       stack.Browser,
		Pool:          stack.Pool,
		Observability: observability,
	}, nil
}

// ServiceOrchestrationConfig groups dependencies for service lifecycle management.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown starts all enabled services and manages their
// lifecycle. It blocks until a shutdown signal arrives or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil || cfg.Services == nil {
		return errors.New("service orchestration config missing app config or services")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	var runnerDone chan struct{}

	if cfg.Config.IsRunnerEnabled() {
		runnerDone = make(chan struct{})
		go func() {
			defer close(runnerDone)
			if err := cfg.Services.Runner.Run(serviceCtx); err != nil {
				errCh <- fmt.Errorf("fulfillment runner: %w", err)
			}
		}()
	}

	return waitForShutdown(shutdownConfig{
		cancel:     cancel,
		errCh:      errCh,
		services:   cfg.Services,
		runnerDone: runnerDone,
		logger:     logger,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel     context.CancelFunc
	errCh      <-chan error
	services   *ServiceContainer
	runnerDone <-chan struct{}
	logger     *slog.Logger
}

// waitForShutdown waits for a shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		gracefulStop(cfg)
		return nil
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		gracefulStop(cfg)
		return err
	}
}

// gracefulStop drains the runner, then tears down sessions and the browser.
// Order matters: the runner must stop reserving before the pool's pages close.
func gracefulStop(cfg shutdownConfig) {
	if cfg.runnerDone != nil {
		select {
		case <-cfg.runnerDone:
			cfg.logger.Info("fulfillment runner stopped")
		case <-time.After(shutdownWaitTimeout):
			cfg.logger.Warn("timeout waiting for fulfillment runner to stop")
		}
	}

	cfg.services.Jobs.Shutdown()
	cfg.services.Pool.ReleaseAll()
	cfg.services.Browser.Close()

	if sink := cfg.services.Observability.MetricsSink; sink != nil {
		if err := sink.Close(); err != nil {
			cfg.logger.Warn("failed to close statsd client", "error", err)
		}
	}
}
