package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			found[m.Name] = m
		}
	}
	return found
}

func TestNilMetricsAreNoOps(t *testing.T) {
	poll, err := NewPollMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, poll)

	notify, err := NewNotifyMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, notify)

	// Should not panic
	poll.RecordPoll(context.Background(), "p1", time.Second, true)
	poll.RecordTransition(context.Background(), "result")
	notify.RecordDelivery(context.Background(), false)
	notify.RecordSwept(context.Background(), 3)
}

func TestPollMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := NewPollMetrics(mp)
	require.NoError(t, err)

	metrics.RecordPoll(context.Background(), "p1", 2*time.Second, true)
	metrics.RecordPoll(context.Background(), "p1", time.Second, false)
	metrics.RecordTransition(context.Background(), "report")

	found := collect(t, reader)

	duration, ok := found["match_watch_poll_duration_seconds"]
	require.True(t, ok)
	histogram, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, histogram.DataPoints, 2, "one series per outcome")

	transitions, ok := found["match_watch_transitions_total"]
	require.True(t, ok)
	sum, ok := transitions.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}

func TestNotifyMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := NewNotifyMetrics(mp)
	require.NoError(t, err)

	metrics.RecordDelivery(context.Background(), true)
	metrics.RecordDelivery(context.Background(), true)
	metrics.RecordDelivery(context.Background(), false)
	metrics.RecordSwept(context.Background(), 2)
	metrics.RecordSwept(context.Background(), 0)

	found := collect(t, reader)

	deliveries := found["match_watch_deliveries_total"].Data.(metricdata.Sum[int64])
	var total int64
	for _, dp := range deliveries.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)

	swept := found["match_watch_subscribers_swept_total"].Data.(metricdata.Sum[int64])
	require.Len(t, swept.DataPoints, 1)
	assert.Equal(t, int64(2), swept.DataPoints[0].Value)
}

func TestProviderHandler(t *testing.T) {
	provider, err := NewProvider(context.Background(), "test")
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	metrics, err := NewNotifyMetrics(provider)
	require.NoError(t, err)
	metrics.RecordDelivery(context.Background(), true)

	rec := httptest.NewRecorder()
	provider.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "match_watch_deliveries_total")
}
