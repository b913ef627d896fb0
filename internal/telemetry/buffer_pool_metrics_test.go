package internaltelemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewBufferPoolMetrics_NilMeter(t *testing.T) {
	m, err := NewBufferPoolMetrics(nil, nil)
	require.NoError(t, err)
	m.GetsCounter.Add(context.Background(), 1)
	assert.NoError(t, m.Unregister())
}

func TestNewBufferPoolMetrics_PinnedGaugeCallback(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	pinned := int64(3)
	m, err := NewBufferPoolMetrics(provider.Meter("test"), func() int64 { return pinned },
		metric.WithAttributes(attribute.String("pool_id", "p1")))
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	gauge := findGauge(t, rm, "gojobuf.buffer_pool.pinned_slots")
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(3), gauge.DataPoints[0].Value)
	v, ok := gauge.DataPoints[0].Attributes.Value("pool_id")
	require.True(t, ok)
	assert.Equal(t, "p1", v.AsString())

	require.NoError(t, m.Unregister())
	pinned = 9
	rm = metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if g, ok := md.Data.(metricdata.Gauge[int64]); ok {
				for _, dp := range g.DataPoints {
					assert.NotEqual(t, int64(9), dp.Value, "callback runs after unregister")
				}
			}
		}
	}
}

func findGauge(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Gauge[int64] {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				g, ok := m.Data.(metricdata.Gauge[int64])
				require.True(t, ok, "%s is not an int64 gauge", name)
				return g
			}
		}
	}
	t.Fatalf("metric %s not collected", name)
	return metricdata.Gauge[int64]{}
}
