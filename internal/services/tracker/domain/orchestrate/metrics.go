package orchestrate

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	metricTurns          = "storyweft.orchestrate.turns"
	metricTurnsAborted   = "storyweft.orchestrate.turns_aborted"
	metricUnitFailures   = "storyweft.orchestrate.unit_failures"
	metricBatchFallbacks = "storyweft.orchestrate.batch_fallbacks"
)

var (
	tracer = otel.Tracer("storyweft/orchestrate")
	meter  = otel.GetMeterProvider().Meter("storyweft/orchestrate")
)

func startTurnSpan(ctx context.Context, chatID string, messageID int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "orchestrate.turn",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.Int64("message.id", messageID)))
}

func startPhaseSpan(ctx context.Context, chatID, phase string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "orchestrate.phase."+phase,
		trace.WithAttributes(attribute.String("chat.id", chatID)))
}

func startUnitSpan(ctx context.Context, chatID, unit string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "orchestrate.unit",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.String("extractor.unit", unit)))
}

// count bumps a counter, best effort; instruments are cached by the meter.
func count(ctx context.Context, name, chatID string) {
	if c, err := meter.Int64Counter(name); err == nil {
		c.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("chat.id", chatID)))
	}
}
