package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ContextSetInput represents the MCP tool input for binding the session
// to a chat.
type ContextSetInput struct {
	ChatID string `json:"chat_id" jsonschema:"chat identifier (required)"`
	Title  string `json:"title,omitempty" jsonschema:"optional chat title"`
}

// ContextSetResult represents the MCP tool output for binding the session.
type ContextSetResult struct {
	Context struct {
		ChatID string `json:"chat_id" jsonschema:"bound chat identifier"`
		Title  string `json:"title,omitempty" jsonschema:"chat title"`
	} `json:"context" jsonschema:"current session context"`
}

// ContextSetTool defines the MCP tool schema for binding the session.
func ContextSetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "context_set",
		Description: "Binds the session to a chat for subsequent tool calls, creating its record and initial snapshot when missing",
	}
}

// ContextSetHandler executes a context bind request. The handler needs
// access to the Server instance to update session state, so it takes the
// tracker plus functions to update and read the server's context.
func ContextSetHandler(
	tracker Tracker,
	setContextFunc func(ctx Context),
	getContextFunc func() Context,
	notify ResourceUpdateNotifier,
) mcp.ToolHandlerFor[ContextSetInput, ContextSetResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ContextSetInput) (*mcp.CallToolResult, ContextSetResult, error) {
		invocationID, err := newInvocationID()
		if err != nil {
			return nil, ContextSetResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		chatID := strings.TrimSpace(input.ChatID)
		if chatID == "" {
			return nil, ContextSetResult{}, fmt.Errorf("chat_id is required")
		}

		runCtx, cancel := context.WithTimeout(ctx, readTimeout)
		defer cancel()

		// Binding also guarantees the chat record and its initial snapshot
		// exist, so later reads never race chat creation.
		record, err := tracker.BindChat(runCtx, chatID, input.Title)
		if err != nil {
			return nil, ContextSetResult{}, fmt.Errorf("bind chat: %w", err)
		}

		if setContextFunc != nil {
			setContextFunc(Context{ChatID: record.ID, Title: record.Title})
		}

		notifyResources(ctx, notify, ContextResource().URI)

		current := Context{ChatID: record.ID, Title: record.Title}
		if getContextFunc != nil {
			current = getContextFunc()
		}
		result := ContextSetResult{}
		result.Context.ChatID = current.ChatID
		if current.Title != "" {
			result.Context.Title = current.Title
		}

		return resultWithInvocation(invocationID), result, nil
	}
}

// ContextResourcePayload represents the MCP resource payload for the
// current session context.
type ContextResourcePayload struct {
	Context struct {
		ChatID *string `json:"chat_id"`
		Title  *string `json:"title"`
	} `json:"context"`
}

// ContextResource defines the MCP resource for the current session context.
func ContextResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "context_current",
		Title:       "Current Context",
		Description: "Readable current session context (chat_id, title)",
		MIMEType:    "application/json",
		URI:         "context://current",
	}
}

// ContextResourceHandler returns a readable current context resource.
func ContextResourceHandler(getContextFunc func() Context) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if getContextFunc == nil {
			return nil, fmt.Errorf("context getter function is not configured")
		}

		uri := ContextResource().URI
		if req != nil && req.Params != nil && req.Params.URI != "" {
			uri = req.Params.URI
		}
		if uri != ContextResource().URI {
			return nil, fmt.Errorf("invalid URI: expected %s, got %q", ContextResource().URI, uri)
		}

		// Unbound fields render as null rather than empty strings.
		current := getContextFunc()
		payload := ContextResourcePayload{}
		if current.ChatID != "" {
			payload.Context.ChatID = &current.ChatID
		}
		if current.Title != "" {
			payload.Context.Title = &current.Title
		}

		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal context: %w", err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     string(data),
				},
			},
		}, nil
	}
}
