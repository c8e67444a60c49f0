// Package notifier delivers edge-triggered alerts for service transitions.
//
// Notifiers only ever see transitions, never steady-state observations, so
// deduplication is a property of the reconciler rather than of any sink.
// Callers treat a Notify error as something to log: a missed alert is
// acceptable, a blocked health cycle is not.
package notifier

import (
	"context"
	"errors"

	"github.com/angeloszaimis/fleet-health/internal/circuitbreaker"
	"github.com/angeloszaimis/fleet-health/internal/service"
)

// Notifier delivers one transition.
type Notifier interface {
	Notify(ctx context.Context, t service.Transition) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, t service.Transition) error

func (f Func) Notify(ctx context.Context, t service.Transition) error { return f(ctx, t) }

// Nop discards every transition.
type Nop struct{}

func (Nop) Notify(context.Context, service.Transition) error { return nil }

// Multi fans a transition out to every notifier, in order, and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, t service.Transition) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Guarded wraps a notifier with a circuit breaker so a destination that keeps
// failing is skipped with circuitbreaker.ErrOpen instead of being retried on
// every transition.
type Guarded struct {
	next    Notifier
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuarded guards next with the breaker registered under name.
func NewGuarded(name string, next Notifier, breakers *circuitbreaker.Registry) *Guarded {
	return &Guarded{
		next:    next,
		breaker: breakers.GetBreaker(name),
	}
}

func (g *Guarded) Notify(ctx context.Context, t service.Transition) error {
	return g.breaker.Do(func() error {
		return g.next.Notify(ctx, t)
	})
}
