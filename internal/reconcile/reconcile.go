// Package reconcile diffs a batch of probe outcomes against the registry,
// commits the new state and derives the transitions to alert on.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/angeloszaimis/fleet-health/internal/fanin"
	"github.com/angeloszaimis/fleet-health/internal/registry"
	"github.com/angeloszaimis/fleet-health/internal/report"
	"github.com/angeloszaimis/fleet-health/internal/service"
)

type Reconciler struct {
	registry registry.Registry
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Reconciler. A nil now uses time.Now.
func New(reg registry.Registry, logger *slog.Logger, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}

	return &Reconciler{
		registry: reg,
		logger:   logger,
		now:      now,
	}
}

type committed struct {
	transition *service.Transition
	err        error
}

// Reconcile commits every outcome and returns the post-commit report plus one
// transition per service whose active bit flipped. First sightings never
// produce a transition. Any commit error aborts with the joined errors; the
// transitions of the commits that did succeed are still returned so the
// caller can alert on them.
func (r *Reconciler) Reconcile(ctx context.Context, outcomes []service.Outcome) (service.Report, []service.Transition, error) {
	when := r.now()

	results := fanin.Join(outcomes,
		func(o service.Outcome) committed {
			return r.commit(ctx, o, when)
		},
		func(o service.Outcome, err error) committed {
			return committed{err: fmt.Errorf("commit %s: %w", o.Descriptor.Name, err)}
		},
	)

	var (
		transitions []service.Transition
		errs        []error
	)
	for _, res := range results {
		if res.err != nil {
			errs = append(errs, res.err)
			continue
		}
		if res.transition != nil {
			transitions = append(transitions, *res.transition)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return service.Report{}, transitions, err
	}

	entries, err := r.registry.Snapshot(ctx)
	if err != nil {
		return service.Report{}, nil, fmt.Errorf("snapshot registry: %w", err)
	}

	return report.Build(entries), transitions, nil
}

func (r *Reconciler) commit(ctx context.Context, o service.Outcome, when time.Time) committed {
	prev, seen, err := r.registry.Commit(ctx, o.Descriptor, o.Reachable, when)
	if err != nil {
		return committed{err: fmt.Errorf("commit %s: %w", o.Descriptor.Name, err)}
	}

	if !seen {
		r.logger.Info("First sighting",
			slog.String("service", o.Descriptor.Name),
			slog.Bool("active", o.Reachable))
		return committed{}
	}

	if prev.Active == o.Reachable {
		r.logger.Debug("Service unchanged",
			slog.String("service", o.Descriptor.Name),
			slog.Bool("active", o.Reachable))
		return committed{}
	}

	if o.Reachable {
		r.logger.Info("Service is back up", slog.String("service", o.Descriptor.Name))
	} else {
		r.logger.Warn("Service is down",
			slog.String("service", o.Descriptor.Name),
			slog.Bool("timed_out", o.TimedOut),
			slog.String("detail", o.Err))
	}

	return committed{transition: &service.Transition{
		Descriptor:           o.Descriptor,
		From:                 prev.Active,
		To:                   o.Reachable,
		OccurredAt:           when,
		PreviousTransitionAt: prev.LastTransitionAt,
	}}
}
