package domain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
)

// ChapterEntry is one chapter in tool output.
type ChapterEntry struct {
	Title          string `json:"title" jsonschema:"chapter title"`
	Summary        string `json:"summary,omitempty" jsonschema:"closing summary, present once the chapter ended"`
	StartMessageID int64  `json:"start_message_id" jsonschema:"message the chapter opened at"`
	EndMessageID   *int64 `json:"end_message_id,omitempty" jsonschema:"message the chapter closed at; absent while open"`
	Open           bool   `json:"open" jsonschema:"whether the chapter is still running"`
}

// ChaptersListInput represents the MCP tool input for listing chapters.
type ChaptersListInput struct {
	ChatID       string           `json:"chat_id,omitempty" jsonschema:"chat identifier (defaults to the session context)"`
	MessageID    *int64           `json:"message_id,omitempty" jsonschema:"list chapters as of this message (defaults to the latest tracked message)"`
	Swipes       map[string]int64 `json:"swipes,omitempty" jsonschema:"active swipe per message, keyed by decimal message id"`
	SwipeDefault int64            `json:"swipe_default,omitempty" jsonschema:"swipe assumed for messages not listed in swipes"`
}

// ChaptersListResult represents the MCP tool output for listing chapters.
type ChaptersListResult struct {
	Chapters []ChapterEntry `json:"chapters" jsonschema:"chapters oldest first; at most the last one is open"`
}

// ChaptersListTool defines the MCP tool schema for listing chapters.
func ChaptersListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "chapters_list",
		Description: "Lists the chat's chapters from the projected narrative state",
	}
}

// ChaptersListHandler executes a chapter listing request.
func ChaptersListHandler(tracker Tracker, getContextFunc func() Context) mcp.ToolHandlerFor[ChaptersListInput, ChaptersListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ChaptersListInput) (*mcp.CallToolResult, ChaptersListResult, error) {
		invocationID, err := newInvocationID()
		if err != nil {
			return nil, ChaptersListResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		chatID := resolveChatID(input.ChatID, getContextFunc)
		if chatID == "" {
			return nil, ChaptersListResult{}, fmt.Errorf("chat_id is required; bind one with context_set first")
		}

		swipes, err := parseSwipes(input.Swipes, input.SwipeDefault)
		if err != nil {
			return nil, ChaptersListResult{}, fmt.Errorf("parse swipes: %w", err)
		}

		messageID := int64(-1)
		if input.MessageID != nil {
			messageID = *input.MessageID
		}

		runCtx, cancel := context.WithTimeout(ctx, readTimeout)
		defer cancel()

		chapters, err := tracker.Chapters(runCtx, chatID, messageID, swipes)
		if err != nil {
			return nil, ChaptersListResult{}, fmt.Errorf("list chapters: %w", err)
		}

		result := ChaptersListResult{Chapters: chapterEntries(chapters)}
		return resultWithInvocation(invocationID), result, nil
	}
}

// chapterEntries renders chapters for tool and resource output.
func chapterEntries(chapters []state.Chapter) []ChapterEntry {
	out := make([]ChapterEntry, 0, len(chapters))
	for _, ch := range chapters {
		entry := ChapterEntry{
			Title:          ch.Title,
			Summary:        ch.Summary,
			StartMessageID: ch.StartMessageID,
		}
		if ch.EndMessageID == state.OpenChapterEnd {
			entry.Open = true
		} else {
			end := ch.EndMessageID
			entry.EndMessageID = &end
		}
		out = append(out, entry)
	}
	return out
}

// ChapterListPayload is the resource payload for chapter listings.
type ChapterListPayload struct {
	ChatID   string         `json:"chat_id"`
	Chapters []ChapterEntry `json:"chapters"`
}

// ChapterListResourceTemplate defines the MCP resource template for
// chapter listings.
func ChapterListResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "chat_chapters",
		Title:       "Chat Chapters",
		Description: "Readable listing of a chat's chapters. URI format: chat://{chat_id}/chapters",
		MIMEType:    "application/json",
		URITemplate: "chat://{chat_id}/chapters",
	}
}

// ChapterListResourceHandler reads chapter listings for MCP resource requests.
func ChapterListResourceHandler(tracker Tracker) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if tracker == nil {
			return nil, fmt.Errorf("tracker is not configured")
		}
		if req == nil || req.Params == nil || req.Params.URI == "" {
			return nil, fmt.Errorf("chat ID is required; use URI format chat://{chat_id}/chapters")
		}
		uri := req.Params.URI

		chatID, err := parseChatIDFromResourceURI(uri, "chapters")
		if err != nil {
			return nil, fmt.Errorf("parse chat ID from URI: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, readTimeout)
		defer cancel()

		// Resources carry no swipe context; the host's active swipes are a
		// tool-call concern. The default swipe view is used.
		chapters, err := tracker.Chapters(runCtx, chatID, -1, event.SwipeContext{})
		if err != nil {
			return nil, fmt.Errorf("list chapters: %w", err)
		}

		payload := ChapterListPayload{ChatID: chatID, Chapters: chapterEntries(chapters)}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal chapter list: %w", err)
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
