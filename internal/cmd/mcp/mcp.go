// Package mcp parses MCP command configuration and serves the tracker to
// a chat host over stdio.
package mcp

import (
	"context"
	"flag"

	"github.com/storyweft/storyweft/internal/mcp/service"
	"github.com/storyweft/storyweft/internal/platform/cmd"
	"github.com/storyweft/storyweft/internal/services/tracker/generate"
)

// Config holds MCP command configuration.
type Config struct {
	DBPath    string `env:"STORYWEFT_DB_PATH"         envDefault:"storyweft.db"`
	Model     string `env:"STORYWEFT_OPENAI_MODEL"`
	BaseURL   string `env:"STORYWEFT_OPENAI_BASE_URL"`
	APIKey    string `env:"STORYWEFT_OPENAI_API_KEY"`
	Transport string `env:"STORYWEFT_MCP_TRANSPORT"   envDefault:"stdio"`
}

// ParseConfig loads environment defaults and then parses flag overrides.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := cmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite database path")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "generation model name")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "OpenAI-compatible endpoint (empty for the official API)")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "MCP transport: stdio")
	if err := cmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP server and blocks until the context ends.
func Run(ctx context.Context, cfg Config) error {
	return cmd.RunWithTelemetry(ctx, cmd.ServiceMCP, func(ctx context.Context) error {
		return service.Run(ctx, service.Config{
			DBPath: cfg.DBPath,
			OpenAI: generate.OpenAIConfig{
				APIKey:  cfg.APIKey,
				BaseURL: cfg.BaseURL,
				Model:   cfg.Model,
			},
			Transport: service.TransportKind(cfg.Transport),
		})
	})
}
