// Package handler implements the HTTP endpoints of the health engine: the
// on-demand /healthcheck trigger and the engine's own /ping.
package handler
