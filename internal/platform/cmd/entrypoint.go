// Package cmd holds startup plumbing shared by storyweft commands:
// env-backed config loading, flag parsing, and telemetry-wrapped run loops.
package cmd

import (
	"context"
	"errors"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/storyweft/storyweft/internal/platform/config"
	"github.com/storyweft/storyweft/internal/platform/otel"
)

// Telemetry shutdown gets a bounded window so a hung exporter cannot
// wedge process exit.
const otelShutdownTimeout = 5 * time.Second

// Service names used for telemetry resource attribution.
const (
	ServiceMCP    = "mcp"
	ServiceReplay = "replay"
)

// ParseConfig fills cfg from the environment. A .env file in the working
// directory seeds unset variables; real environment values win.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	_ = godotenv.Load()
	parsed, err := config.ParseEnv[T]()
	if err != nil {
		return err
	}
	*cfg = parsed
	return nil
}

// ParseArgs parses command-line flags, treating nil args as empty.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// RunWithTelemetry sets up OpenTelemetry for the named service, invokes run,
// and flushes telemetry on the way out.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return errors.New("service name is required")
	}
	if run == nil {
		return errors.New("run function is required")
	}
	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return err
	}
	defer flushTelemetry(service, shutdown)
	return run(ctx)
}

func flushTelemetry(service string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Printf("%s otel shutdown: %v", service, err)
	}
}
