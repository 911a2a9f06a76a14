package generate

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	metricAttempts      = "storyweft.generate.attempts"
	metricParseFailures = "storyweft.generate.parse_failures"
	metricCacheHits     = "storyweft.generate.cache_hits"
	metricCacheMisses   = "storyweft.generate.cache_misses"
	metricBackoffSkips  = "storyweft.generate.backoff_skips"
)

var (
	tracer = otel.Tracer("storyweft/generate")
	meter  = otel.GetMeterProvider().Meter("storyweft/generate")
)

func startGenerateSpan(ctx context.Context, prompt string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "generate",
		trace.WithAttributes(attribute.String("prompt", prompt)))
}

// count bumps a counter, best effort; instruments are cached by the meter.
func count(ctx context.Context, name, prompt string) {
	if c, err := meter.Int64Counter(name); err == nil {
		c.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("prompt", prompt)))
	}
}
