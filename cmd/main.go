package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/angeloszaimis/fleet-health/config"
	"github.com/angeloszaimis/fleet-health/internal/circuitbreaker"
	"github.com/angeloszaimis/fleet-health/internal/engine"
	"github.com/angeloszaimis/fleet-health/internal/healthcheck"
	"github.com/angeloszaimis/fleet-health/internal/httpserver"
	"github.com/angeloszaimis/fleet-health/internal/metrics"
	"github.com/angeloszaimis/fleet-health/internal/notifier"
	"github.com/angeloszaimis/fleet-health/internal/probe"
	"github.com/angeloszaimis/fleet-health/internal/registry"
	"github.com/angeloszaimis/fleet-health/internal/registry/sqlite"
	"github.com/angeloszaimis/fleet-health/internal/stream"
	"github.com/angeloszaimis/fleet-health/pkg/logger"
)

const (
	metricsBufferSize  = 1000
	credentialEnv      = "HEALTH_CHECK_CREDENTIAL"
	webhookBreakerName = "webhook"
	writeTimeoutSlack  = 5 * time.Second
)

func main() {
	configPath, err := parseFlags(os.Args[1:])
	if err != nil {
		slog.Error("failed to parse flags", slog.Any("err", err))
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg, closeRegistry, err := openRegistry(ctx, cfg)
	if err != nil {
		log.Error("Failed to open registry", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := closeRegistry(); err != nil {
			log.Error("Failed to close registry", slog.Any("err", err))
		}
	}()

	if err := registerRoster(ctx, cfg, reg, log); err != nil {
		log.Error("Failed to register roster", slog.Any("err", err))
		os.Exit(1)
	}

	dispatcher, err := probe.NewDispatcher(probe.Options{
		Scheme:             cfg.HealthCheck.Scheme,
		Timeout:            cfg.HealthCheck.TimeoutDuration(),
		CredentialParam:    cfg.HealthCheck.CredentialParam,
		InsecureSkipVerify: cfg.HealthCheck.InsecureSkipVerify,
	}, log)
	if err != nil {
		log.Error("Failed to create probe dispatcher", slog.Any("err", err))
		os.Exit(1)
	}

	collector := metrics.NewCollector(metricsBufferSize, log)
	collector.Start(ctx)

	hub := stream.NewHub(log)
	breakers := circuitbreaker.NewRegistry(cfg.Notifier.FailureThreshold, cfg.Notifier.ResetTimeoutDuration())

	notifyTimeout := cfg.Notifier.TimeoutDuration()
	if notifyTimeout <= 0 {
		notifyTimeout = engine.DefaultNotifyTimeout
	}

	eng := engine.New(engine.Config{
		Registry:      reg,
		Prober:        dispatcher,
		Credentials:   credentialSource(cfg),
		Notifier:      buildNotifier(cfg, hub, breakers, log),
		Metrics:       collector,
		Logger:        log,
		NotifyTimeout: notifyTimeout,
	})

	if interval := cfg.HealthCheck.IntervalDuration(); interval > 0 {
		go healthcheck.HealthCheck(ctx, eng, interval, log)
	} else {
		log.Info("Background health checks disabled")
	}

	router := setupRouter(cfg, eng, collector, breakers, hub, log)

	srv, err := httpserver.New(cfg.Server.Address, router)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}
	srv.WithWriteTimeout(writeTimeout(dispatcher.Timeout(), notifyTimeout))
	if cfg.Server.TLSCert != "" {
		srv.WithTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		log.Info("Starting health engine",
			slog.String("address", cfg.Server.Address),
			slog.String("version", cfg.Server.Version))
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting health engine", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

// writeTimeout covers a /healthcheck request that waits behind a running
// cycle and then runs its own. A cycle takes at most one probe timeout plus
// one notify timeout.
func writeTimeout(probeTimeout, notifyTimeout time.Duration) time.Duration {
	return max(httpserver.DefaultWriteTimeout, 2*(probeTimeout+notifyTimeout)+writeTimeoutSlack)
}

func parseFlags(args []string) (string, error) {
	fs := pflag.NewFlagSet("fleet-health", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to the config file (default: config.yaml in ./config or .)")

	if err := fs.Parse(args); err != nil {
		return "", err
	}

	return *configPath, nil
}

// openRegistry returns the configured registry and a function releasing it.
func openRegistry(ctx context.Context, cfg *config.Config) (registry.Registry, func() error, error) {
	switch cfg.Registry.Driver {
	case config.DriverSQLite:
		store, err := sqlite.New(ctx, cfg.Registry.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.DriverMemory, "":
		return registry.NewMemory(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown registry driver %q", cfg.Registry.Driver)
	}
}

func registerRoster(ctx context.Context, cfg *config.Config, reg registry.Registry, log *slog.Logger) error {
	roster, err := cfg.Roster()
	if err != nil {
		return err
	}

	if len(roster) == 0 {
		log.Warn("Roster is empty, health checks will report no services")
	}

	if err := reg.Register(ctx, roster); err != nil {
		return err
	}

	log.Info("Roster registered", slog.Int("services", len(roster)))
	return nil
}

func credentialSource(cfg *config.Config) probe.CredentialSource {
	if cfg.HealthCheck.Credential != "" {
		return probe.StaticCredential(cfg.HealthCheck.Credential)
	}
	return probe.EnvCredential(credentialEnv)
}

// buildNotifier always streams transitions to websocket subscribers and, when
// a webhook is configured, posts them there behind a circuit breaker.
func buildNotifier(cfg *config.Config, hub *stream.Hub, breakers *circuitbreaker.Registry, log *slog.Logger) notifier.Notifier {
	if cfg.Notifier.WebhookURL == "" {
		log.Info("No webhook configured, alerts are only streamed on /events")
		return hub
	}

	webhook := notifier.NewWebhook(notifier.WebhookConfig{
		URL:         cfg.Notifier.WebhookURL,
		Method:      cfg.Notifier.Method,
		Username:    cfg.Notifier.Username,
		Environment: cfg.Notifier.EnvironmentLabel,
		Timeout:     cfg.Notifier.TimeoutDuration(),
	})

	return notifier.Multi{
		hub,
		notifier.NewGuarded(webhookBreakerName, webhook, breakers),
	}
}
