package otel_test

import (
	"context"
	"testing"
	"time"

	"github.com/storyweft/storyweft/internal/platform/otel"
)

func TestSetupIsNoopWithoutExporter(t *testing.T) {
	cases := []struct {
		name     string
		endpoint string
		enabled  string
	}{
		{name: "no endpoint configured", endpoint: "", enabled: ""},
		{name: "explicitly disabled", endpoint: "http://localhost:4318", enabled: "false"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("STORYWEFT_OTEL_ENDPOINT", tc.endpoint)
			t.Setenv("STORYWEFT_OTEL_ENABLED", tc.enabled)

			shutdown, err := otel.Setup(context.Background(), "test-service")
			if err != nil {
				t.Fatalf("Setup: %v", err)
			}
			// The no-op shutdown has nothing to flush, even on a dead context.
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			if err := shutdown(ctx); err != nil {
				t.Fatalf("noop shutdown = %v, want nil", err)
			}
		})
	}
}

func TestSetupBuildsProvidersWhenConfigured(t *testing.T) {
	// Non-routable address so no actual export happens.
	t.Setenv("STORYWEFT_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("STORYWEFT_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	// The metric reader flushes on shutdown and the endpoint is unreachable;
	// only bounded termination matters, not a clean export.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}
