package etl

import "sync/atomic"

// Stats tracks counters for one pipeline. Safe for concurrent use.
type Stats struct {
	processed atomic.Int64
	written   atomic.Int64
	failed    atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Processed int64
	Written   int64
	Failed    int64
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Processed: s.processed.Load(),
		Written:   s.written.Load(),
		Failed:    s.failed.Load(),
	}
}

func (s *Stats) reset() {
	s.processed.Store(0)
	s.written.Store(0)
	s.failed.Store(0)
}
