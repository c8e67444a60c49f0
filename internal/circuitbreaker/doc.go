// Package circuitbreaker stops calling an alert destination that keeps
// failing, so a dead webhook costs one fast rejection per transition instead
// of a full timeout.
//
// A breaker has three states:
//
//   - CLOSED: calls pass through
//   - OPEN: the destination failed threshold times in a row, calls are rejected
//   - HALF-OPEN: the reset timeout elapsed, one trial call is let through
//
// Usage:
//
//	breakers := circuitbreaker.NewRegistry(3, time.Minute)
//	err := breakers.GetBreaker("slack").Do(func() error {
//	    return send(ctx, payload)
//	})
//	if errors.Is(err, circuitbreaker.ErrOpen) {
//	    // skipped
//	}
package circuitbreaker
