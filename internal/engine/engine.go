// Package engine runs health cycles: list the roster, probe every service,
// reconcile the outcomes against the registry, alert on transitions and
// return the aggregate report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/fleet-health/internal/fanin"
	"github.com/angeloszaimis/fleet-health/internal/metrics"
	"github.com/angeloszaimis/fleet-health/internal/notifier"
	"github.com/angeloszaimis/fleet-health/internal/probe"
	"github.com/angeloszaimis/fleet-health/internal/reconcile"
	"github.com/angeloszaimis/fleet-health/internal/registry"
	"github.com/angeloszaimis/fleet-health/internal/service"
)

const DefaultNotifyTimeout = 10 * time.Second

// ErrRegistry marks a cycle aborted because the registry or the credential
// source failed. No report is produced for such a cycle.
var ErrRegistry = errors.New("registry unavailable")

// Prober probes a batch of services and returns one outcome per descriptor.
type Prober interface {
	ProbeAll(ctx context.Context, descriptors []service.Descriptor, credential string) []service.Outcome
}

// MetricsSink receives cycle statistics. *metrics.Collector satisfies it.
type MetricsSink interface {
	Emit(event metrics.MetricEvent)
}

type Config struct {
	Registry      registry.Registry
	Prober        Prober
	Credentials   probe.CredentialSource
	Notifier      notifier.Notifier
	Metrics       MetricsSink
	Logger        *slog.Logger
	NotifyTimeout time.Duration
	Now           func() time.Time
}

type Engine struct {
	mutex         sync.Mutex
	registry      registry.Registry
	prober        Prober
	credentials   probe.CredentialSource
	notifier      notifier.Notifier
	metrics       MetricsSink
	reconciler    *reconcile.Reconciler
	logger        *slog.Logger
	notifyTimeout time.Duration
	now           func() time.Time
}

func New(cfg Config) *Engine {
	if cfg.Notifier == nil {
		cfg.Notifier = notifier.Nop{}
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Engine{
		registry:      cfg.Registry,
		prober:        cfg.Prober,
		credentials:   cfg.Credentials,
		notifier:      cfg.Notifier,
		metrics:       cfg.Metrics,
		reconciler:    reconcile.New(cfg.Registry, cfg.Logger, cfg.Now),
		logger:        cfg.Logger,
		notifyTimeout: cfg.NotifyTimeout,
		now:           cfg.Now,
	}
}

// RunCycle performs one full health cycle. Cycles never interleave: a caller
// arriving while another cycle runs waits for it to finish and then runs its
// own. Notifier failures are logged and never change the result.
//
// A cycle that has started always runs to completion. Cancelling ctx only
// prevents a cycle that has not started yet; probes are bounded by the
// dispatcher timeout instead.
func (e *Engine) RunCycle(ctx context.Context) (service.Report, []service.Transition, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if err := ctx.Err(); err != nil {
		return service.Report{}, nil, err
	}
	// A cancelled probe reads as unreachable, so a dropped trigger would
	// otherwise commit healthy services as down.
	ctx = context.WithoutCancel(ctx)

	start := e.now()
	logger := e.logger.With(slog.String("cycle", uuid.NewString()))

	descriptors, err := e.registry.List(ctx)
	if err != nil {
		logger.Error("Failed to list services", slog.Any("err", err))
		return service.Report{}, nil, fmt.Errorf("%w: %w", ErrRegistry, err)
	}

	credential, err := e.credential(ctx, descriptors)
	if err != nil {
		logger.Error("Failed to fetch probe credential", slog.Any("err", err))
		return service.Report{}, nil, fmt.Errorf("%w: %w", ErrRegistry, err)
	}

	outcomes := e.prober.ProbeAll(ctx, descriptors, credential)
	for _, o := range outcomes {
		e.emit(metrics.MetricEvent{
			Type:      metrics.EventProbeCompleted,
			Timestamp: start,
			Service:   o.Descriptor.Name,
			Duration:  o.Latency,
			Reachable: o.Reachable,
			TimedOut:  o.TimedOut,
		})
	}

	report, transitions, err := e.reconciler.Reconcile(ctx, outcomes)
	if err != nil {
		logger.Error("Failed to reconcile outcomes", slog.Any("err", err))
		// Flips that did commit are steady state from the next cycle on.
		e.notify(ctx, logger, transitions)
		return service.Report{}, nil, fmt.Errorf("%w: %w", ErrRegistry, err)
	}

	e.notify(ctx, logger, transitions)

	elapsed := e.now().Sub(start)
	e.emit(metrics.MetricEvent{
		Type:      metrics.EventCycleCompleted,
		Timestamp: start,
		Duration:  elapsed,
	})

	logger.Info("Health cycle completed",
		slog.Int("services", len(descriptors)),
		slog.Int("active", report.ActiveCount),
		slog.Int("inactive", report.InactiveCount),
		slog.Int("transitions", len(transitions)),
		slog.Duration("elapsed", elapsed))

	return report, transitions, nil
}

// credential is fetched at most once per cycle and only when some service
// needs it.
func (e *Engine) credential(ctx context.Context, descriptors []service.Descriptor) (string, error) {
	needed := false
	for _, d := range descriptors {
		if d.AuthRequired {
			needed = true
			break
		}
	}
	if !needed {
		return "", nil
	}
	if e.credentials == nil {
		return "", probe.ErrNoCredential
	}

	return e.credentials.Credential(ctx)
}

// notify delivers every transition concurrently, each bounded by the notify
// timeout.
func (e *Engine) notify(ctx context.Context, logger *slog.Logger, transitions []service.Transition) {
	for _, t := range transitions {
		e.emit(metrics.MetricEvent{
			Type:      metrics.EventTransition,
			Timestamp: t.OccurredAt,
			Service:   t.Descriptor.Name,
			Active:    t.To,
		})
	}

	fanin.Join(transitions,
		func(t service.Transition) struct{} {
			notifyCtx, cancel := context.WithTimeout(ctx, e.notifyTimeout)
			defer cancel()

			if err := e.notifier.Notify(notifyCtx, t); err != nil {
				logger.Error("Failed to send notification",
					slog.String("service", t.Descriptor.Name),
					slog.Bool("active", t.To),
					slog.Any("err", err))
			}
			return struct{}{}
		},
		func(t service.Transition, err error) struct{} {
			logger.Error("Notifier panicked",
				slog.String("service", t.Descriptor.Name),
				slog.Any("err", err))
			return struct{}{}
		},
	)
}

func (e *Engine) emit(event metrics.MetricEvent) {
	if e.metrics != nil {
		e.metrics.Emit(event)
	}
}
