package memgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Only cold-path operations are instrumented; single-byte reads and writes are
// counted by the address space itself (see Stats) so the hot path stays free
// of clock calls.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    insertCounter     prometheus.Counter
//	    snapshotHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordInsert(duration time.Duration, err error) {
//	    p.insertCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordInsert is called after each explicit segment insert.
	// duration is the total time taken, err is nil if successful.
	RecordInsert(duration time.Duration, err error)

	// RecordReset is called after each reset to the initialization image.
	RecordReset(duration time.Duration)

	// RecordSnapshotSave is called after each snapshot save.
	RecordSnapshotSave(duration time.Duration, err error)

	// RecordSnapshotLoad is called after each snapshot load.
	RecordSnapshotLoad(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(time.Duration, error)       {}
func (NoopMetricsCollector) RecordReset(time.Duration)               {}
func (NoopMetricsCollector) RecordSnapshotSave(time.Duration, error) {}
func (NoopMetricsCollector) RecordSnapshotLoad(time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	InsertCount        atomic.Int64
	InsertErrors       atomic.Int64
	InsertTotalNanos   atomic.Int64
	ResetCount         atomic.Int64
	SnapshotSaveCount  atomic.Int64
	SnapshotSaveErrors atomic.Int64
	SnapshotSaveNanos  atomic.Int64
	SnapshotLoadCount  atomic.Int64
	SnapshotLoadErrors atomic.Int64
	SnapshotLoadNanos  atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordReset implements MetricsCollector.
func (b *BasicMetricsCollector) RecordReset(duration time.Duration) {
	b.ResetCount.Add(1)
}

// RecordSnapshotSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshotSave(duration time.Duration, err error) {
	b.SnapshotSaveCount.Add(1)
	b.SnapshotSaveNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SnapshotSaveErrors.Add(1)
	}
}

// RecordSnapshotLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshotLoad(duration time.Duration, err error) {
	b.SnapshotLoadCount.Add(1)
	b.SnapshotLoadNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SnapshotLoadErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		InsertCount:        b.InsertCount.Load(),
		InsertErrors:       b.InsertErrors.Load(),
		InsertAvgNanos:     b.getAvgInsertNanos(),
		ResetCount:         b.ResetCount.Load(),
		SnapshotSaveCount:  b.SnapshotSaveCount.Load(),
		SnapshotSaveErrors: b.SnapshotSaveErrors.Load(),
		SnapshotLoadCount:  b.SnapshotLoadCount.Load(),
		SnapshotLoadErrors: b.SnapshotLoadErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgInsertNanos() int64 {
	count := b.InsertCount.Load()
	if count == 0 {
		return 0
	}
	return b.InsertTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	InsertCount        int64
	InsertErrors       int64
	InsertAvgNanos     int64
	ResetCount         int64
	SnapshotSaveCount  int64
	SnapshotSaveErrors int64
	SnapshotLoadCount  int64
	SnapshotLoadErrors int64
}
