package seqcomp

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    appendCounter prometheus.Counter
//	    getHistogram  prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordAppend(shard int, duration time.Duration, err error) {
//	    p.appendCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordAppend is called after each append.
	RecordAppend(shard int, duration time.Duration, err error)

	// RecordGet is called once per slice read. A batch read reports each of
	// its slices with an equal share of the batch duration.
	RecordGet(duration time.Duration, err error)

	// RecordSave is called after each save. bytes is the compressed size saved.
	RecordSave(bytes int64, duration time.Duration, err error)

	// RecordLoad is called after each load or import.
	RecordLoad(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAppend(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordGet(time.Duration, error)         {}
func (NoopMetricsCollector) RecordSave(int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordLoad(time.Duration, error)        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AppendCount      atomic.Int64
	AppendErrors     atomic.Int64
	AppendTotalNanos atomic.Int64
	GetCount         atomic.Int64
	GetErrors        atomic.Int64
	GetTotalNanos    atomic.Int64
	SaveCount        atomic.Int64
	SaveErrors       atomic.Int64
	SavedBytes       atomic.Int64
	LoadCount        atomic.Int64
	LoadErrors       atomic.Int64
}

// RecordAppend implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAppend(_ int, duration time.Duration, err error) {
	b.AppendCount.Add(1)
	b.AppendTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AppendErrors.Add(1)
	}
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(duration time.Duration, err error) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.GetErrors.Add(1)
	}
}

// RecordSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSave(bytes int64, _ time.Duration, err error) {
	b.SaveCount.Add(1)
	if err != nil {
		b.SaveErrors.Add(1)
		return
	}
	b.SavedBytes.Add(bytes)
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(_ time.Duration, err error) {
	b.LoadCount.Add(1)
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AppendCount:    b.AppendCount.Load(),
		AppendErrors:   b.AppendErrors.Load(),
		AppendAvgNanos: avg(b.AppendTotalNanos.Load(), b.AppendCount.Load()),
		GetCount:       b.GetCount.Load(),
		GetErrors:      b.GetErrors.Load(),
		GetAvgNanos:    avg(b.GetTotalNanos.Load(), b.GetCount.Load()),
		SaveCount:      b.SaveCount.Load(),
		SaveErrors:     b.SaveErrors.Load(),
		SavedBytes:     b.SavedBytes.Load(),
		LoadCount:      b.LoadCount.Load(),
		LoadErrors:     b.LoadErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AppendCount    int64
	AppendErrors   int64
	AppendAvgNanos int64
	GetCount       int64
	GetErrors      int64
	GetAvgNanos    int64
	SaveCount      int64
	SaveErrors     int64
	SavedBytes     int64
	LoadCount      int64
	LoadErrors     int64
}
