package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/storyweft/storyweft/internal/mcp/conformance"
	"github.com/storyweft/storyweft/internal/mcp/domain"
	"github.com/storyweft/storyweft/internal/services/tracker/app"
	"github.com/storyweft/storyweft/internal/services/tracker/generate"
	"github.com/storyweft/storyweft/internal/services/tracker/settings"
	"github.com/storyweft/storyweft/internal/services/tracker/storage"
	"github.com/storyweft/storyweft/internal/services/tracker/storage/sqlite"
)

const (
	// serverName and serverVersion are what clients see during initialize.
	serverName    = "Storyweft MCP"
	serverVersion = "0.1.0"

	// conformanceEnvVar turns on the protocol conformance fixtures. Accepted
	// values are "1" and "true".
	conformanceEnvVar = "MCP_CONFORMANCE"
)

// TransportKind selects how the server speaks MCP.
type TransportKind string

const (
	// TransportStdio uses standard input/output for MCP. Hosts launch the
	// server as a child process; nothing binds a network port.
	TransportStdio TransportKind = "stdio"
)

// Config configures the MCP server runtime.
type Config struct {
	// DBPath is the sqlite database holding journals, snapshots, and
	// telemetry.
	DBPath string
	// OpenAI configures the shipped chat-completions generator.
	OpenAI generate.OpenAIConfig
	// Transport selects the MCP transport. Defaults to stdio.
	Transport TransportKind
}

// Deps are the assembled collaborators behind a server. Run builds them
// from Config; tests inject fakes directly.
type Deps struct {
	Store     storage.Store
	Settings  *settings.Settings
	Generator generate.Generator
}

// Server hosts the MCP server over one tracker instance.
type Server struct {
	mcpServer *mcp.Server
	tracker   *app.Service
	queue     *NameQueue
	session   domain.Context
	sessionMu sync.RWMutex
}

// New creates a configured MCP server around the supplied collaborators.
// The tracker takes ownership of the store; Close releases both.
func New(deps Deps) (*Server, error) {
	queue := NewNameQueue()
	tracker, err := app.New(app.Deps{
		Store:         deps.Store,
		Settings:      deps.Settings,
		Generator:     deps.Generator,
		Disambiguator: queue,
	})
	if err != nil {
		return nil, fmt.Errorf("build tracker: %w", err)
	}

	impl := &mcp.Implementation{Name: serverName, Version: serverVersion}
	mcpServer := mcp.NewServer(impl, &mcp.ServerOptions{
		CompletionHandler:  completionHandler,
		SubscribeHandler:   resourceSubscribeHandler,
		UnsubscribeHandler: resourceUnsubscribeHandler,
	})

	server := &Server{mcpServer: mcpServer, tracker: tracker, queue: queue}
	notify := resourceNotifier(mcpServer)

	registerContextTools(mcpServer, tracker, server, notify)
	registerTurnTools(mcpServer, tracker, server.getContext, notify)
	registerReadTools(mcpServer, tracker, server.getContext)
	registerNameTools(mcpServer, tracker, queue, server.getContext, notify)
	registerChatResources(mcpServer, tracker)
	registerContextResources(mcpServer, server)
	if conformanceEnabled() {
		conformance.Register(mcpServer)
	}

	return server, nil
}

// resourceNotifier returns the callback domain handlers use to announce
// resource changes. Failures are logged and dropped; a missed notification
// only delays a client refresh.
func resourceNotifier(mcpServer *mcp.Server) domain.ResourceUpdateNotifier {
	return func(ctx context.Context, uri string) {
		if mcpServer == nil || strings.TrimSpace(uri) == "" {
			return
		}
		if ctx == nil {
			ctx = context.Background()
		}
		params := &mcp.ResourceUpdatedNotificationParams{URI: uri}
		if err := mcpServer.ResourceUpdated(ctx, params); err != nil {
			log.Printf("notify resource %s: %v", uri, err)
		}
	}
}

// completionHandler answers completion/complete with no suggestions.
// TODO: Complete chat ids and resource template variables from the store.
func completionHandler(context.Context, *mcp.CompleteRequest) (*mcp.CompleteResult, error) {
	details := mcp.CompletionResultDetails{Values: []string{}}
	return &mcp.CompleteResult{Completion: details}, nil
}

// errMissingResourceURI rejects subscribe calls that do not address a resource.
var errMissingResourceURI = errors.New("resource uri is required")

// resourceSubscribeHandler accepts any subscription that names a resource.
// Subscriptions carry no server-side state; update fan-out happens on the
// notifier path regardless.
func resourceSubscribeHandler(_ context.Context, req *mcp.SubscribeRequest) error {
	if req != nil && req.Params != nil && strings.TrimSpace(req.Params.URI) != "" {
		return nil
	}
	return errMissingResourceURI
}

// resourceUnsubscribeHandler mirrors the subscribe-side validation.
func resourceUnsubscribeHandler(_ context.Context, req *mcp.UnsubscribeRequest) error {
	if req != nil && req.Params != nil && strings.TrimSpace(req.Params.URI) != "" {
		return nil
	}
	return errMissingResourceURI
}

// Run assembles the production server from cfg and serves it until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	transportKind := cfg.Transport
	if transportKind == "" {
		transportKind = TransportStdio
	}

	switch transportKind {
	case TransportStdio:
		return runWithTransport(ctx, cfg, &mcp.StdioTransport{})
	default:
		return fmt.Errorf("transport %q is not supported", transportKind)
	}
}

// runWithTransport assembles a server from config and serves it over the
// provided transport.
func runWithTransport(ctx context.Context, cfg Config, transport mcp.Transport) error {
	deps, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	server, err := New(deps)
	if err != nil {
		if closeErr := deps.Store.Close(); closeErr != nil {
			return fmt.Errorf("%v; close store: %w", err, closeErr)
		}
		return err
	}
	return server.ServeTransport(ctx, transport)
}

// buildDeps opens the production collaborators configured by cfg.
func buildDeps(cfg Config) (Deps, error) {
	switch {
	case strings.TrimSpace(cfg.DBPath) == "":
		return Deps{}, errors.New("database path is required")
	case strings.TrimSpace(cfg.OpenAI.Model) == "":
		return Deps{}, errors.New("generation model is required")
	}

	trackerSettings, err := settings.Load()
	if err != nil {
		return Deps{}, fmt.Errorf("load settings: %w", err)
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return Deps{}, fmt.Errorf("open store at %s: %w", cfg.DBPath, err)
	}
	return Deps{
		Store:     store,
		Settings:  trackerSettings,
		Generator: generate.NewOpenAI(cfg.OpenAI),
	}, nil
}

// Serve starts the MCP server on stdio and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.ServeTransport(ctx, &mcp.StdioTransport{})
}

// Close releases the tracker and the store it owns.
func (s *Server) Close() error {
	if s == nil || s.tracker == nil {
		return nil
	}
	if err := s.tracker.Close(); err != nil {
		return err
	}
	s.tracker = nil
	return nil
}

// setContext records the chat binding shared by every handler closure.
func (s *Server) setContext(next domain.Context) {
	if s == nil {
		return
	}
	s.sessionMu.Lock()
	s.session = next
	s.sessionMu.Unlock()
}

// getContext returns the currently bound chat context.
func (s *Server) getContext() domain.Context {
	if s == nil {
		return domain.Context{}
	}
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	return s.session
}

// conformanceEnabled reports whether the conformance fixtures should load.
func conformanceEnabled() bool {
	v := strings.TrimSpace(os.Getenv(conformanceEnvVar))
	return v == "1" || strings.EqualFold(v, "true")
}

// ServeTransport starts the MCP server using the provided transport. A
// cancelled or deadline-expired context counts as a clean stop.
func (s *Server) ServeTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return errors.New("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	serveErr := s.mcpServer.Run(ctx, transport)
	if errors.Is(serveErr, context.Canceled) || errors.Is(serveErr, context.DeadlineExceeded) {
		serveErr = nil
	}
	switch closeErr := s.Close(); {
	case serveErr != nil && closeErr != nil:
		return fmt.Errorf("serve MCP: %v; close tracker: %w", serveErr, closeErr)
	case serveErr != nil:
		return fmt.Errorf("serve MCP: %w", serveErr)
	case closeErr != nil:
		return fmt.Errorf("close tracker: %w", closeErr)
	}
	return nil
}
