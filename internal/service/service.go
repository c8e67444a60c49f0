package service

import (
	"net"
	"strconv"
	"time"
)

// Descriptor identifies a monitored dependency. Name is the unique key.
type Descriptor struct {
	Name         string `json:"name" yaml:"name" mapstructure:"name"`
	Address      string `json:"address" yaml:"address" mapstructure:"address"`
	Port         int    `json:"port" yaml:"port" mapstructure:"port"`
	AuthRequired bool   `json:"authRequired" yaml:"auth_required" mapstructure:"auth_required"`
}

// HostPort returns the address:port pair the probe dials.
func (d Descriptor) HostPort() string {
	return net.JoinHostPort(d.Address, strconv.Itoa(d.Port))
}

// State is the last known liveness of a descriptor.
type State struct {
	Active           bool       `json:"active"`
	LastCheckedAt    time.Time  `json:"lastCheckedAt"`
	LastTransitionAt *time.Time `json:"lastTransitionAt,omitempty"`
}

// Entry pairs a descriptor with its committed state.
type Entry struct {
	Descriptor Descriptor
	State      State
}

// Outcome is the result of probing one descriptor in one cycle.
type Outcome struct {
	Descriptor Descriptor
	Reachable  bool
	Latency    time.Duration
	TimedOut   bool
	Err        string
}

// Transition records a flip of a descriptor's active bit.
type Transition struct {
	Descriptor Descriptor
	From       bool
	To         bool
	OccurredAt time.Time

	// PreviousTransitionAt is when the bit last flipped before this one,
	// nil when this is the first flip ever observed.
	PreviousTransitionAt *time.Time
}

// Recovered reports whether the transition is inactive -> active.
func (t Transition) Recovered() bool {
	return !t.From && t.To
}

// Report is the aggregate result of one cycle.
type Report struct {
	ActiveCount      int      `json:"activeCount"`
	InactiveCount    int      `json:"inactiveCount"`
	ActiveServices   []string `json:"activeServices"`
	InactiveServices []string `json:"inactiveServices"`
}
