package internaltelemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// BufferPoolMetrics holds the metric instruments of one buffer pool.
type BufferPoolMetrics struct {
	GetsCounter              metric.Int64Counter
	HitsCounter              metric.Int64Counter
	ReadsCounter             metric.Int64Counter
	WritesCounter            metric.Int64Counter
	EvictionsCounter         metric.Int64Counter
	VictimUnavailableCounter metric.Int64Counter
	BindingAnomalyCounter    metric.Int64Counter

	pinnedGauge  metric.Int64ObservableGauge
	registration metric.Registration
}

// NewBufferPoolMetrics creates the pool's instruments on meter. pinnedSlots
// is polled on every collection to report how many slots are pinned; attrs
// (typically the pool id) are attached to every observation of it.
func NewBufferPoolMetrics(meter metric.Meter, pinnedSlots func() int64, attrs ...metric.ObserveOption) (*BufferPoolMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("gojobuf")
	}
	m := &BufferPoolMetrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.GetsCounter, "gojobuf.buffer_pool.gets", "Total number of buffer requests."},
		{&m.HitsCounter, "gojobuf.buffer_pool.hits", "Buffer requests served from the cache."},
		{&m.ReadsCounter, "gojobuf.buffer_pool.reads", "Pages read from table files."},
		{&m.WritesCounter, "gojobuf.buffer_pool.writes", "Pages written to table files."},
		{&m.EvictionsCounter, "gojobuf.buffer_pool.evictions", "Bound slots reclaimed by the clock sweep."},
		{&m.VictimUnavailableCounter, "gojobuf.buffer_pool.victim_unavailable", "Misses that failed because every slot was pinned."},
		{&m.BindingAnomalyCounter, "gojobuf.buffer_pool.binding_anomalies", "Evictions whose binding was missing from the hashtable."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1"))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	gauge, err := meter.Int64ObservableGauge(
		"gojobuf.buffer_pool.pinned_slots",
		metric.WithDescription("Number of slots currently pinned."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}
	m.pinnedGauge = gauge

	if pinnedSlots != nil {
		reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(gauge, pinnedSlots(), attrs...)
			return nil
		}, gauge)
		if err != nil {
			return nil, err
		}
		m.registration = reg
	}
	return m, nil
}

// Unregister detaches the pinned-slots callback. Counters stay usable.
func (m *BufferPoolMetrics) Unregister() error {
	if m.registration == nil {
		return nil
	}
	err := m.registration.Unregister()
	m.registration = nil
	return err
}
