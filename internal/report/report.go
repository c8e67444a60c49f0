// Package report folds committed registry state into the externally visible
// cycle summary.
package report

import (
	"sort"

	"github.com/angeloszaimis/fleet-health/internal/service"
)

// Build partitions every entry into exactly one of the active or inactive
// sets. Names are sorted; empty sets encode as [] rather than null.
func Build(entries []service.Entry) service.Report {
	rep := service.Report{
		ActiveServices:   []string{},
		InactiveServices: []string{},
	}

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Descriptor.Name]; dup {
			continue
		}
		seen[e.Descriptor.Name] = struct{}{}

		if e.State.Active {
			rep.ActiveServices = append(rep.ActiveServices, e.Descriptor.Name)
		} else {
			rep.InactiveServices = append(rep.InactiveServices, e.Descriptor.Name)
		}
	}

	sort.Strings(rep.ActiveServices)
	sort.Strings(rep.InactiveServices)

	rep.ActiveCount = len(rep.ActiveServices)
	rep.InactiveCount = len(rep.InactiveServices)

	return rep
}
