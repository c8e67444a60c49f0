// Package service defines the values exchanged by the health-reconciliation
// pipeline: the descriptor of a monitored dependency, its last known state,
// the outcome of one probe, the transitions derived from reconciliation and
// the aggregate cycle report.
package service
