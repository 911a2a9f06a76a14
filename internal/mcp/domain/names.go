package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/names"
)

// NamesPendingInput represents the MCP tool input for listing pending
// name questions.
type NamesPendingInput struct {
	ChatID string `json:"chat_id,omitempty" jsonschema:"chat identifier (defaults to the session context)"`
}

// NamesPendingResult represents the MCP tool output for listing pending
// name questions.
type NamesPendingResult struct {
	Pending []PendingName `json:"pending" jsonschema:"names awaiting user confirmation"`
}

// NamesPendingTool defines the MCP tool schema for listing pending name
// questions.
func NamesPendingTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "names_pending",
		Description: "Lists character names the tracker could not place, waiting for user confirmation",
	}
}

// NamesPendingHandler executes a pending-names listing request.
func NamesPendingHandler(queue PendingQueue, getContextFunc func() Context) mcp.ToolHandlerFor[NamesPendingInput, NamesPendingResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input NamesPendingInput) (*mcp.CallToolResult, NamesPendingResult, error) {
		invocationID, err := newInvocationID()
		if err != nil {
			return nil, NamesPendingResult{}, fmt.Errorf("generate invocation id: %w", err)
		}
		if queue == nil {
			return nil, NamesPendingResult{}, fmt.Errorf("name queue is not configured")
		}

		chatID := resolveChatID(input.ChatID, getContextFunc)
		if chatID == "" {
			return nil, NamesPendingResult{}, fmt.Errorf("chat_id is required; bind one with context_set first")
		}

		result := NamesPendingResult{Pending: queue.Pending(chatID)}
		if result.Pending == nil {
			result.Pending = []PendingName{}
		}
		return resultWithInvocation(invocationID), result, nil
	}
}

// NameResolutionInput is one user answer to a pending name question.
type NameResolutionInput struct {
	Name       string  `json:"name" jsonschema:"surface form being answered"`
	ResolvedTo *string `json:"resolved_to" jsonschema:"canonical character the name maps to; null dismisses the question"`
}

// NamesConfirmInput represents the MCP tool input for confirming name
// mappings.
type NamesConfirmInput struct {
	ChatID       string                `json:"chat_id,omitempty" jsonschema:"chat identifier (defaults to the session context)"`
	MessageID    int64                 `json:"message_id" jsonschema:"transcript message the confirmations bind to"`
	SwipeID      int64                 `json:"swipe_id,omitempty" jsonschema:"swipe the confirmations bind to"`
	Swipes       map[string]int64      `json:"swipes,omitempty" jsonschema:"active swipe per message, keyed by decimal message id"`
	SwipeDefault int64                 `json:"swipe_default,omitempty" jsonschema:"swipe assumed for messages not listed in swipes"`
	Resolutions  []NameResolutionInput `json:"resolutions" jsonschema:"user answers (required)"`
}

// NamesConfirmResult represents the MCP tool output for confirming name
// mappings.
type NamesConfirmResult struct {
	Events    []EventEntry `json:"events" jsonschema:"alias events appended by the confirmations"`
	Confirmed int          `json:"confirmed" jsonschema:"mappings that appended an alias event"`
	Dismissed int          `json:"dismissed" jsonschema:"questions dismissed without a mapping"`
}

// NamesConfirmTool defines the MCP tool schema for confirming name
// mappings.
func NamesConfirmTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "names_confirm",
		Description: "Applies user answers to pending name questions: mapped names append alias events, null answers dismiss",
	}
}

// NamesConfirmHandler executes a name confirmation request.
func NamesConfirmHandler(tracker Tracker, queue PendingQueue, getContextFunc func() Context, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[NamesConfirmInput, NamesConfirmResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input NamesConfirmInput) (*mcp.CallToolResult, NamesConfirmResult, error) {
		invocationID, err := newInvocationID()
		if err != nil {
			return nil, NamesConfirmResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		chatID := resolveChatID(input.ChatID, getContextFunc)
		if chatID == "" {
			return nil, NamesConfirmResult{}, fmt.Errorf("chat_id is required; bind one with context_set first")
		}
		if len(input.Resolutions) == 0 {
			return nil, NamesConfirmResult{}, fmt.Errorf("resolutions are required")
		}

		swipes, err := parseSwipes(input.Swipes, input.SwipeDefault)
		if err != nil {
			return nil, NamesConfirmResult{}, fmt.Errorf("parse swipes: %w", err)
		}

		confirmed := make([]names.Resolution, 0, len(input.Resolutions))
		answered := make([]string, 0, len(input.Resolutions))
		dismissed := 0
		for _, res := range input.Resolutions {
			name := strings.TrimSpace(res.Name)
			if name == "" {
				continue
			}
			answered = append(answered, name)
			target := ""
			if res.ResolvedTo != nil {
				target = strings.TrimSpace(*res.ResolvedTo)
			}
			if target == "" {
				dismissed++
				continue
			}
			confirmed = append(confirmed, names.Resolution{Name: name, ResolvedTo: target})
		}

		runCtx, cancel := context.WithTimeout(ctx, readTimeout)
		defer cancel()

		events, err := tracker.ConfirmNames(runCtx, chatID, input.MessageID, input.SwipeID, swipes, confirmed)
		if err != nil {
			return nil, NamesConfirmResult{}, fmt.Errorf("confirm names: %w", err)
		}

		// Dismissed questions clear too; the user has answered them.
		if queue != nil {
			queue.Resolve(chatID, answered)
		}

		if len(events) > 0 {
			notifyResources(ctx, notify, eventsResourceURI(chatID))
		}

		result := NamesConfirmResult{
			Events:    eventEntries(events, 0),
			Confirmed: len(events),
			Dismissed: dismissed,
		}
		return resultWithInvocation(invocationID), result, nil
	}
}
