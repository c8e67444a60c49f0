package healthcheck

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/angeloszaimis/fleet-health/internal/service"
)

// Cycler runs one health cycle. *engine.Engine satisfies it.
type Cycler interface {
	RunCycle(ctx context.Context) (service.Report, []service.Transition, error)
}

// HealthCheck runs a cycle right away and then once per interval until ctx
// is cancelled. A failed cycle is logged and the next tick tries again.
func HealthCheck(
	ctx context.Context,
	cycler Cycler,
	interval time.Duration,
	logger *slog.Logger,
) {
	logger.Info("Health check started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce(ctx, cycler, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Health check stopped")
			return

		case <-ticker.C:
			runOnce(ctx, cycler, logger)
		}
	}
}

func runOnce(ctx context.Context, cycler Cycler, logger *slog.Logger) {
	report, transitions, err := cycler.RunCycle(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Error("Health cycle failed", slog.Any("err", err))
		return
	}

	if len(transitions) > 0 {
		logger.Info("Fleet changed",
			slog.Int("transitions", len(transitions)),
			slog.Any("inactive", report.InactiveServices))
	}
}
