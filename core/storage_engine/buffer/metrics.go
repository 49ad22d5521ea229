package buffer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the buffer pool's otel counters. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	fetchHits   metric.Int64Counter
	fetchMisses metric.Int64Counter
	evictions   metric.Int64Counter
	writebacks  metric.Int64Counter
	flushes     metric.Int64Counter
}

// NewMetrics registers the buffer pool counters on the given meter. Pass
// a noop meter when telemetry is disabled.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	var m Metrics
	var err error
	if m.fetchHits, err = meter.Int64Counter("heapstore_buffer_fetch_hits_total",
		metric.WithDescription("Page fetches served from the pool")); err != nil {
		return nil, fmt.Errorf("registering fetch hit counter: %w", err)
	}
	if m.fetchMisses, err = meter.Int64Counter("heapstore_buffer_fetch_misses_total",
		metric.WithDescription("Page fetches that went to disk")); err != nil {
		return nil, fmt.Errorf("registering fetch miss counter: %w", err)
	}
	if m.evictions, err = meter.Int64Counter("heapstore_buffer_evictions_total",
		metric.WithDescription("Resident pages evicted from frames")); err != nil {
		return nil, fmt.Errorf("registering eviction counter: %w", err)
	}
	if m.writebacks, err = meter.Int64Counter("heapstore_buffer_writebacks_total",
		metric.WithDescription("Dirty pages written back before frame reuse")); err != nil {
		return nil, fmt.Errorf("registering writeback counter: %w", err)
	}
	if m.flushes, err = meter.Int64Counter("heapstore_buffer_flushes_total",
		metric.WithDescription("Explicit page flushes to disk")); err != nil {
		return nil, fmt.Errorf("registering flush counter: %w", err)
	}
	return &m, nil
}

func (m *Metrics) hit() {
	if m != nil {
		m.fetchHits.Add(context.Background(), 1)
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.fetchMisses.Add(context.Background(), 1)
	}
}

func (m *Metrics) eviction() {
	if m != nil {
		m.evictions.Add(context.Background(), 1)
	}
}

func (m *Metrics) writeback() {
	if m != nil {
		m.writebacks.Add(context.Background(), 1)
	}
}

func (m *Metrics) flush() {
	if m != nil {
		m.flushes.Add(context.Background(), 1)
	}
}
