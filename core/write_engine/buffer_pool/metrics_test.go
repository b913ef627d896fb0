package bufferpool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pagemanager "github.com/sushant-115/gojobuf/core/write_engine/page_manager"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

func collectInt64(t *testing.T, reader sdkmetric.Reader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += dp.Value
				}
			}
		}
	}
	return out
}

func TestMetrics_MirrorStats(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	store := newCountingStore()
	bp, err := New(Config{NumHashEntries: 97, NumSlots: 4}, store,
		WithLogger(zaptest.NewLogger(t)), WithMeter(provider.Meter("bufferpool_test")))
	require.NoError(t, err)
	tableID, err := bp.OpenTable("t.db")
	require.NoError(t, err)
	extendTable(t, store, tableID, 5)

	dirty, err := bp.GetBuffer(tableID, 1)
	require.NoError(t, err)
	bp.MarkDirty(dirty)
	bp.Unpin(dirty)
	getAndUnpin(t, bp, tableID, 2, 3, 4, 4)

	held, err := bp.GetBuffer(tableID, 5) // evicts dirty page 1
	require.NoError(t, err)

	got := collectInt64(t, reader)
	stats := bp.Stats()
	assert.Equal(t, stats.Gets, got["gojobuf.buffer_pool.gets"])
	assert.Equal(t, stats.Reads, got["gojobuf.buffer_pool.reads"])
	assert.Equal(t, stats.Writes, got["gojobuf.buffer_pool.writes"])
	assert.Equal(t, stats.Gets-stats.Reads, got["gojobuf.buffer_pool.hits"])
	assert.Equal(t, int64(1), got["gojobuf.buffer_pool.evictions"])
	assert.Equal(t, int64(1), got["gojobuf.buffer_pool.pinned_slots"])
	assert.Zero(t, got["gojobuf.buffer_pool.victim_unavailable"])

	bp.Unpin(held)
	require.NoError(t, bp.Close())
}

func TestMetrics_VictimUnavailable(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	store := newCountingStore()
	bp, err := New(Config{NumHashEntries: 7, NumSlots: 4}, store, WithMeter(provider.Meter("bufferpool_test")))
	require.NoError(t, err)
	defer bp.Close()
	tableID, err := bp.OpenTable("t.db")
	require.NoError(t, err)
	extendTable(t, store, tableID, 5)

	for p := pagemanager.PageNum(1); p <= 4; p++ {
		_, err := bp.GetBuffer(tableID, p)
		require.NoError(t, err)
	}
	_, err = bp.GetBuffer(tableID, 5)
	require.ErrorIs(t, err, ErrVictimUnavailable)

	got := collectInt64(t, reader)
	assert.Equal(t, int64(1), got["gojobuf.buffer_pool.victim_unavailable"])
	assert.Equal(t, int64(4), got["gojobuf.buffer_pool.pinned_slots"])
}
