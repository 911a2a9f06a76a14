package domain

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/storyweft/storyweft/internal/platform/id"
)

// invocationIDMetaKey is the result meta key correlation ids ride under.
// Turn telemetry records the same id, so a host can join a tool call to
// its audit row.
const invocationIDMetaKey = "storyweft.dev/invocation_id"

// ResourceUpdateNotifier notifies MCP clients about resource updates.
type ResourceUpdateNotifier func(ctx context.Context, uri string)

func newInvocationID() (string, error) {
	return id.NewID()
}

// resultWithInvocation builds a tool result whose meta carries the
// invocation id, when one was issued.
func resultWithInvocation(invocationID string) *mcp.CallToolResult {
	result := &mcp.CallToolResult{}
	if invocationID != "" {
		result.Meta = map[string]any{invocationIDMetaKey: invocationID}
	}
	return result
}

// notifyResources fans one update out to every listed URI, skipping blanks
// and tolerating a nil notifier.
func notifyResources(ctx context.Context, notify ResourceUpdateNotifier, uris ...string) {
	if notify == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for _, uri := range uris {
		if strings.TrimSpace(uri) != "" {
			notify(ctx, uri)
		}
	}
}
