package registry

import (
	"context"
	"errors"
	"time"

	"github.com/angeloszaimis/fleet-health/internal/service"
)

// ErrEmptyName is returned when a descriptor without a name is registered or committed.
var ErrEmptyName = errors.New("service name is empty")

// Registry holds the roster and the last observed state per service.
// Commit is the only state mutator and is safe for concurrent use.
type Registry interface {
	// Register upserts the roster. It never creates state.
	Register(ctx context.Context, descriptors []service.Descriptor) error

	// List returns the roster in registration order.
	List(ctx context.Context) ([]service.Descriptor, error)

	// Get returns the committed state for name, if any.
	Get(ctx context.Context, name string) (service.State, bool, error)

	// Commit records an observation and returns the state held before it.
	// The boolean is false on a first sighting, in which case the returned
	// state is the assumed-active default.
	Commit(ctx context.Context, d service.Descriptor, active bool, when time.Time) (service.State, bool, error)

	// Snapshot returns every descriptor that has a committed state.
	Snapshot(ctx context.Context) ([]service.Entry, error)
}

// Unseen is the prior state assumed for a service that has never been observed.
func Unseen() service.State {
	return service.State{Active: true}
}

// Apply folds an observation into prev and returns the updated state.
// LastTransitionAt only moves when the active bit flips.
func Apply(prev service.State, seen bool, active bool, when time.Time) service.State {
	next := prev
	next.LastCheckedAt = when

	if !seen {
		next.Active = active
		return next
	}

	if prev.Active != active {
		next.Active = active
		t := when
		next.LastTransitionAt = &t
	}

	return next
}
