package domain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/storyweft/storyweft/internal/services/tracker/app"
)

// EventsListInput represents the MCP tool input for listing events.
type EventsListInput struct {
	ChatID     string `json:"chat_id,omitempty" jsonschema:"chat identifier (defaults to the session context)"`
	PageSize   int    `json:"page_size,omitempty" jsonschema:"events per page (default 50, max 200)"`
	CursorSeq  uint64 `json:"cursor_seq,omitempty" jsonschema:"resume after this sequence number; zero for the first page"`
	Descending bool   `json:"descending,omitempty" jsonschema:"newest first when true"`
	Filter     string `json:"filter,omitempty" jsonschema:"AIP-160 filter over kind, subkind, message_id, swipe_id, and ts"`
}

// EventsListResult represents the MCP tool output for listing events.
type EventsListResult struct {
	Events      []EventEntry `json:"events" jsonschema:"one page of committed events"`
	HasNextPage bool         `json:"has_next_page" jsonschema:"whether more events exist past this page"`
	TotalCount  int          `json:"total_count" jsonschema:"total events matching the filter"`
}

// EventsListTool defines the MCP tool schema for listing events.
func EventsListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "events_list",
		Description: "Pages through the chat's committed events, optionally filtered with an AIP-160 expression",
	}
}

// EventsListHandler executes an event listing request.
func EventsListHandler(tracker Tracker, getContextFunc func() Context) mcp.ToolHandlerFor[EventsListInput, EventsListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input EventsListInput) (*mcp.CallToolResult, EventsListResult, error) {
		invocationID, err := newInvocationID()
		if err != nil {
			return nil, EventsListResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		chatID := resolveChatID(input.ChatID, getContextFunc)
		if chatID == "" {
			return nil, EventsListResult{}, fmt.Errorf("chat_id is required; bind one with context_set first")
		}

		runCtx, cancel := context.WithTimeout(ctx, readTimeout)
		defer cancel()

		page, err := tracker.ListEvents(runCtx, app.EventQuery{
			ChatID:     chatID,
			PageSize:   input.PageSize,
			CursorSeq:  input.CursorSeq,
			Descending: input.Descending,
			Filter:     input.Filter,
		})
		if err != nil {
			return nil, EventsListResult{}, fmt.Errorf("list events: %w", err)
		}

		entries := make([]EventEntry, 0, len(page.Events))
		for _, evt := range page.Events {
			entries = append(entries, eventEntry(evt))
		}

		result := EventsListResult{
			Events:      entries,
			HasNextPage: page.HasNextPage,
			TotalCount:  page.TotalCount,
		}
		return resultWithInvocation(invocationID), result, nil
	}
}

// eventsResourcePageSize caps how many recent events a resource read returns.
const eventsResourcePageSize = 50

// EventListPayload is the resource payload for event listings.
type EventListPayload struct {
	ChatID string       `json:"chat_id"`
	Events []EventEntry `json:"events"`
}

// EventListResourceTemplate defines the MCP resource template for event
// listings.
func EventListResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "chat_events",
		Title:       "Chat Events",
		Description: "Readable listing of a chat's most recent committed events. URI format: chat://{chat_id}/events",
		MIMEType:    "application/json",
		URITemplate: "chat://{chat_id}/events",
	}
}

// EventListResourceHandler reads event listings for MCP resource requests.
func EventListResourceHandler(tracker Tracker) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if tracker == nil {
			return nil, fmt.Errorf("tracker is not configured")
		}
		if req == nil || req.Params == nil || req.Params.URI == "" {
			return nil, fmt.Errorf("chat ID is required; use URI format chat://{chat_id}/events")
		}
		uri := req.Params.URI

		chatID, err := parseChatIDFromResourceURI(uri, "events")
		if err != nil {
			return nil, fmt.Errorf("parse chat ID from URI: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, readTimeout)
		defer cancel()

		// Fetch the newest page, then render oldest first for reading.
		page, err := tracker.ListEvents(runCtx, app.EventQuery{
			ChatID:     chatID,
			PageSize:   eventsResourcePageSize,
			Descending: true,
		})
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}

		payload := EventListPayload{ChatID: chatID, Events: make([]EventEntry, 0, len(page.Events))}
		for i := len(page.Events); i > 0; i-- {
			payload.Events = append(payload.Events, eventEntry(page.Events[i-1]))
		}

		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal event list: %w", err)
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
