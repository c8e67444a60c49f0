// Package registry owns the roster of monitored services and their last known
// state. Every other component reads through it and submits observations via
// Commit, which returns the pre-update state so callers detect transitions
// without a separate read.
//
// Memory keeps everything in process; the sqlite subpackage persists
// observations as an append-only log.
package registry
