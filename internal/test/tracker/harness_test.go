//go:build scenario

package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/storyweft/storyweft/internal/mcp/service"
	"github.com/storyweft/storyweft/internal/services/tracker/generate"
	"github.com/storyweft/storyweft/internal/services/tracker/settings"
	"github.com/storyweft/storyweft/internal/services/tracker/storage/memory"
)

const scenarioTimeout = 10 * time.Second

// scriptedGenerator pops queued model responses in order. Scenario
// scripts queue one response per extraction unit the next turn fires.
type scriptedGenerator struct {
	mu        sync.Mutex
	responses []string
}

func (g *scriptedGenerator) push(responses ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responses = append(g.responses, responses...)
}

func (g *scriptedGenerator) Generate(_ context.Context, _ generate.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.responses) == 0 {
		return "", fmt.Errorf("no scripted response left")
	}
	next := g.responses[0]
	g.responses = g.responses[1:]
	return next, nil
}

func (g *scriptedGenerator) Profile() string { return "scenario-profile" }

func (g *scriptedGenerator) pendingResponses() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.responses)
}

// baseSettings builds tracker settings with every category off except
// the ones a scenario's track step switches on.
func baseSettings(track map[string]bool) settings.Settings {
	return settings.Settings{
		TrackTime:                track["time"],
		TrackLocation:            track["location"],
		TrackCharacters:          track["characters"],
		TrackNicknames:           track["nicknames"],
		TrackOutfits:             track["outfits"],
		TrackProps:               track["props"],
		TrackRelationships:       track["relationships"],
		TrackSecrets:             track["secrets"],
		TrackNarrative:           track["narrative"],
		TrackChapters:            track["chapters"],
		MaxConcurrentRequests:    1,
		MaxMessagesToSend:        12,
		MaxChapterMessagesToSend: 40,
		MaxRetries:               0,
		RetryTemperature:         0.3,
		FailureThreshold:         3,
		CooldownBase:             time.Second,
		CooldownMax:              time.Minute,
		CacheMaxAge:              time.Minute,
	}
}

// startTrackerServer serves the MCP tracker over in-memory transports and
// returns a connected client session.
func startTrackerServer(t *testing.T, cfg settings.Settings, gen *scriptedGenerator) (*mcp.ClientSession, func()) {
	t.Helper()

	srv, err := service.New(service.Deps{
		Store:     memory.New(),
		Settings:  &cfg,
		Generator: gen,
	})
	if err != nil {
		t.Fatalf("new MCP server: %v", err)
	}

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ServeTransport(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "scenario-client", Version: "dev"}, nil)
	connectCtx, connectCancel := context.WithTimeout(context.Background(), scenarioTimeout)
	defer connectCancel()
	session, err := client.Connect(connectCtx, clientTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("connect MCP client: %v", err)
	}

	stop := func() {
		if err := session.Close(); err != nil {
			t.Fatalf("close MCP client: %v", err)
		}
		cancel()
		select {
		case err := <-serveErr:
			if err != nil {
				t.Fatalf("tracker server error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for tracker server to stop")
		}
	}
	return session, stop
}

// decodeStructuredContent round-trips a tool result's structured content
// into its typed form.
func decodeStructuredContent[T any](t *testing.T, value any) T {
	t.Helper()

	var out T
	data, err := json.Marshal(value)
	if err == nil {
		err = json.Unmarshal(data, &out)
	}
	if err != nil {
		t.Fatalf("decode structured content: %v", err)
	}
	return out
}

// scenariosDir locates the scenario scripts that sit next to this file.
func scenariosDir(t *testing.T) string {
	t.Helper()

	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("resolve caller path")
	}
	return filepath.Join(filepath.Dir(filename), "scenarios")
}
