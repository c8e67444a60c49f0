package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxLatencySamples = 1000

type Metrics struct {
	mutex       sync.RWMutex
	probes      map[string]int64
	failures    map[string]int64
	timeouts    map[string]int64
	transitions map[string]int64
	latencies   map[string][]time.Duration
	active      map[string]bool
	cycles      int64
	lastCycle   time.Duration
	lastCycleAt time.Time
	startTime   time.Time
}

type Snapshot struct {
	Cycles            int64                     `json:"cycles"`
	TotalProbes       int64                     `json:"total_probes"`
	TotalTransitions  int64                     `json:"total_transitions"`
	LastCycleDuration time.Duration             `json:"last_cycle_duration"`
	LastCycleAt       *time.Time                `json:"last_cycle_at,omitempty"`
	Uptime            time.Duration             `json:"uptime"`
	Services          map[string]ServiceMetrics `json:"services"`
	Breakers          map[string]string         `json:"breakers,omitempty"`
}

type ServiceMetrics struct {
	Probes      int64         `json:"probes"`
	Failures    int64         `json:"failures"`
	Timeouts    int64         `json:"timeouts"`
	Transitions int64         `json:"transitions"`
	Active      bool          `json:"active"`
	AvgLatency  time.Duration `json:"avg_latency"`
	P50Latency  time.Duration `json:"p50_latency"`
	P95Latency  time.Duration `json:"p95_latency"`
	P99Latency  time.Duration `json:"p99_latency"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		probes:      make(map[string]int64),
		failures:    make(map[string]int64),
		timeouts:    make(map[string]int64),
		transitions: make(map[string]int64),
		latencies:   make(map[string][]time.Duration),
		active:      make(map[string]bool),
		startTime:   time.Now(),
	}
}

// RecordProbe counts one probe of svc and keeps its latency sample.
func (m *Metrics) RecordProbe(svc string, latency time.Duration, reachable, timedOut bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.probes[svc]++
	if !reachable {
		m.failures[svc]++
	}
	if timedOut {
		m.timeouts[svc]++
	}
	m.active[svc] = reachable

	m.latencies[svc] = append(m.latencies[svc], latency)
	if len(m.latencies[svc]) > maxLatencySamples {
		m.latencies[svc] = m.latencies[svc][1:]
	}
}

func (m *Metrics) RecordTransition(svc string, active bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.transitions[svc]++
	m.active[svc] = active
}

func (m *Metrics) RecordCycle(duration time.Duration, at time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.cycles++
	m.lastCycle = duration
	m.lastCycleAt = at
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Cycles:            m.cycles,
		LastCycleDuration: m.lastCycle,
		Uptime:            time.Since(m.startTime),
		Services:          make(map[string]ServiceMetrics),
	}
	if !m.lastCycleAt.IsZero() {
		at := m.lastCycleAt
		snap.LastCycleAt = &at
	}

	names := make(map[string]bool)
	for svc := range m.probes {
		names[svc] = true
	}
	for svc := range m.transitions {
		names[svc] = true
	}

	for svc := range names {
		snap.TotalProbes += m.probes[svc]
		snap.TotalTransitions += m.transitions[svc]

		sm := ServiceMetrics{
			Probes:      m.probes[svc],
			Failures:    m.failures[svc],
			Timeouts:    m.timeouts[svc],
			Transitions: m.transitions[svc],
			Active:      m.active[svc],
		}

		if samples := m.latencies[svc]; len(samples) > 0 {
			sorted := make([]time.Duration, len(samples))
			copy(sorted, samples)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			sm.AvgLatency = average(sorted)
			sm.P50Latency = percentile(sorted, 0.50)
			sm.P95Latency = percentile(sorted, 0.95)
			sm.P99Latency = percentile(sorted, 0.99)
		}

		snap.Services[svc] = sm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
