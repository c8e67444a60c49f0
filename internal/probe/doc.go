// Package probe issues one bounded-timeout liveness request per monitored
// service and classifies the response as reachable or not.
//
// A probe succeeds only when the dependency answers GET /ping with a 2xx
// status and a well-formed JSON body within the timeout. Everything else
// (refusal, timeout, bad status, malformed body, even a panic in the probe
// itself) is folded into an unreachable Outcome, so ProbeAll always returns
// exactly one outcome per descriptor.
package probe
