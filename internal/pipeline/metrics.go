package pipeline

import "sync/atomic"

// Metrics tracks engine activity with lock-free counters shared by all
// concurrent fetches.
type Metrics struct {
	cacheHits       atomic.Int64
	cacheMisses     atomic.Int64
	upstreamCalls   atomic.Int64
	throttleEvents  atomic.Int64
	syntheticServes atomic.Int64
	noDataResults   atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the engine counters.
type MetricsSnapshot struct {
	CacheHits       int64
	CacheMisses     int64
	UpstreamCalls   int64
	ThrottleEvents  int64
	SyntheticServes int64
	NoDataResults   int64
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		CacheHits:       m.cacheHits.Load(),
		CacheMisses:     m.cacheMisses.Load(),
		UpstreamCalls:   m.upstreamCalls.Load(),
		ThrottleEvents:  m.throttleEvents.Load(),
		SyntheticServes: m.syntheticServes.Load(),
		NoDataResults:   m.noDataResults.Load(),
	}
}
