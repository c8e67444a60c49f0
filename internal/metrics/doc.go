// Package metrics collects per-service probe statistics for the health engine.
//
// It uses a channel-based event pipeline to asynchronously record:
//   - probe counts, failures and timeouts per service
//   - probe latency with percentile calculations (P50, P95, P99)
//   - transitions per service and the last known active bit
//   - cycle count and duration
//
// The collector runs in a dedicated goroutine. Emit never blocks: when the
// buffer is full the event is dropped.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:      metrics.EventProbeCompleted,
//		Service:   "billing",
//		Duration:  150 * time.Millisecond,
//		Reachable: true,
//	})
//
//	snapshot := collector.Snapshot()
//
// On shutdown the collector drains buffered events before returning.
package metrics
