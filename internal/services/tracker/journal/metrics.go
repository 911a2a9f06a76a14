package journal

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	metricEventsAppended     = "storyweft.journal.events_appended"
	metricSnapshotHits       = "storyweft.journal.snapshot_hits"
	metricSnapshotMisses     = "storyweft.journal.snapshot_misses"
	metricCheckpointFailures = "storyweft.journal.checkpoint_failures"
)

var (
	tracer = otel.Tracer("storyweft/journal")
	meter  = otel.GetMeterProvider().Meter("storyweft/journal")
)

func startSpan(ctx context.Context, name, chatID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attribute.String("chat.id", chatID)))
}

// count bumps a counter, best effort; instruments are cached by the meter.
func count(ctx context.Context, name, chatID string) {
	addCount(ctx, name, chatID, 1)
}

func addCount(ctx context.Context, name, chatID string, n int64) {
	if c, err := meter.Int64Counter(name); err == nil {
		c.Add(ctx, n, otelmetric.WithAttributes(attribute.String("chat.id", chatID)))
	}
}
