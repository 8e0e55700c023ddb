// Package telemetry provides OpenTelemetry instrumentation for the watcher.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// PollMetricsMeterName is the name used for the provider polling meter
	PollMetricsMeterName = "github.com/lysyi3m/match-watch/poll"

	// NotifyMetricsMeterName is the name used for the notification meter
	NotifyMetricsMeterName = "github.com/lysyi3m/match-watch/notify"
)

// PollMetrics holds the instruments for provider poll cycles
type PollMetrics struct {
	pollDuration metric.Float64Histogram
	transitions  metric.Int64Counter
}

// NewPollMetrics creates poll instruments on the given provider.
// If provider is nil, it returns nil (no-op metrics).
func NewPollMetrics(provider metric.MeterProvider) (*PollMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(PollMetricsMeterName)

	pollDuration, err := meter.Float64Histogram(
		"match_watch_poll_duration_seconds",
		metric.WithDescription("Duration of provider poll cycles in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"match_watch_transitions_total",
		metric.WithDescription("Number of match transitions detected"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	return &PollMetrics{
		pollDuration: pollDuration,
		transitions:  transitions,
	}, nil
}

// RecordPoll records the duration and outcome of one poll cycle
func (m *PollMetrics) RecordPoll(ctx context.Context, providerID string, duration time.Duration, success bool) {
	if m == nil || m.pollDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("provider", providerID),
		attribute.Bool("success", success),
	}

	m.pollDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordTransition counts one detected transition by kind
func (m *PollMetrics) RecordTransition(ctx context.Context, kind string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// NotifyMetrics holds the instruments for push delivery and subscriber health
type NotifyMetrics struct {
	deliveries metric.Int64Counter
	swept      metric.Int64Counter
}

// NewNotifyMetrics creates notification instruments on the given provider.
// If provider is nil, it returns nil (no-op metrics).
func NewNotifyMetrics(provider metric.MeterProvider) (*NotifyMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(NotifyMetricsMeterName)

	deliveries, err := meter.Int64Counter(
		"match_watch_deliveries_total",
		metric.WithDescription("Number of push deliveries attempted"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, err
	}

	swept, err := meter.Int64Counter(
		"match_watch_subscribers_swept_total",
		metric.WithDescription("Number of subscribers removed for failing delivery"),
		metric.WithUnit("{subscriber}"),
	)
	if err != nil {
		return nil, err
	}

	return &NotifyMetrics{
		deliveries: deliveries,
		swept:      swept,
	}, nil
}

// RecordDelivery counts one delivery attempt
func (m *NotifyMetrics) RecordDelivery(ctx context.Context, success bool) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordSwept counts subscribers deleted by one sweep
func (m *NotifyMetrics) RecordSwept(ctx context.Context, count int64) {
	if m == nil || m.swept == nil || count <= 0 {
		return
	}
	m.swept.Add(ctx, count)
}
