// Package healthcheck drives health cycles on a fixed interval so transitions
// are detected and alerted on without an external poller hitting
// /healthcheck.
package healthcheck
