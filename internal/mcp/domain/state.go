package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
)

// StateGetInput represents the MCP tool input for projecting state.
type StateGetInput struct {
	ChatID       string           `json:"chat_id,omitempty" jsonschema:"chat identifier (defaults to the session context)"`
	MessageID    *int64           `json:"message_id,omitempty" jsonschema:"project the state as of this message (defaults to the latest tracked message)"`
	Swipes       map[string]int64 `json:"swipes,omitempty" jsonschema:"active swipe per message, keyed by decimal message id"`
	SwipeDefault int64            `json:"swipe_default,omitempty" jsonschema:"swipe assumed for messages not listed in swipes"`
}

// StateGetResult represents the MCP tool output for projecting state.
type StateGetResult struct {
	ChatID      string `json:"chat_id" jsonschema:"chat identifier"`
	AtMessageID int64  `json:"at_message_id" jsonschema:"message the projection covers up to"`
	LastSeq     uint64 `json:"last_seq" jsonschema:"highest journal sequence folded into the state"`
	StateJSON   string `json:"state_json" jsonschema:"narrative state as JSON"`
}

// StateGetTool defines the MCP tool schema for projecting state.
func StateGetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "state_get",
		Description: "Projects the tracked narrative state at a message (latest by default) under the supplied swipe context",
	}
}

// StateGetHandler executes a state projection request.
func StateGetHandler(tracker Tracker, getContextFunc func() Context) mcp.ToolHandlerFor[StateGetInput, StateGetResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input StateGetInput) (*mcp.CallToolResult, StateGetResult, error) {
		invocationID, err := newInvocationID()
		if err != nil {
			return nil, StateGetResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		chatID := resolveChatID(input.ChatID, getContextFunc)
		if chatID == "" {
			return nil, StateGetResult{}, fmt.Errorf("chat_id is required; bind one with context_set first")
		}

		swipes, err := parseSwipes(input.Swipes, input.SwipeDefault)
		if err != nil {
			return nil, StateGetResult{}, fmt.Errorf("parse swipes: %w", err)
		}

		// Negative projects at the latest tracked message.
		messageID := int64(-1)
		if input.MessageID != nil {
			messageID = *input.MessageID
		}

		runCtx, cancel := context.WithTimeout(ctx, readTimeout)
		defer cancel()

		proj, err := tracker.StateAt(runCtx, chatID, messageID, swipes)
		if err != nil {
			return nil, StateGetResult{}, fmt.Errorf("project state: %w", err)
		}

		data, err := json.Marshal(proj.State)
		if err != nil {
			return nil, StateGetResult{}, fmt.Errorf("marshal state: %w", err)
		}

		result := StateGetResult{
			ChatID:      chatID,
			AtMessageID: proj.AtMessageID,
			LastSeq:     proj.LastSeq,
			StateJSON:   string(data),
		}
		return resultWithInvocation(invocationID), result, nil
	}
}

// SnapshotReplaceInput represents the MCP tool input for replacing the
// initial snapshot.
type SnapshotReplaceInput struct {
	ChatID    string `json:"chat_id,omitempty" jsonschema:"chat identifier (defaults to the session context)"`
	StateJSON string `json:"state_json,omitempty" jsonschema:"authored narrative state as JSON; empty resets to a blank state"`
}

// SnapshotReplaceResult represents the MCP tool output for replacing the
// initial snapshot.
type SnapshotReplaceResult struct {
	ChatID     string `json:"chat_id" jsonschema:"chat identifier"`
	Characters int    `json:"characters" jsonschema:"characters in the seeded state"`
	Chapters   int    `json:"chapters" jsonschema:"chapters in the seeded state"`
}

// SnapshotReplaceTool defines the MCP tool schema for replacing the
// initial snapshot.
func SnapshotReplaceTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "snapshot_replace",
		Description: "Replaces the chat's initial snapshot with an authored starting state and drops derived checkpoints",
	}
}

// SnapshotReplaceHandler executes an initial snapshot replace request.
func SnapshotReplaceHandler(tracker Tracker, getContextFunc func() Context, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[SnapshotReplaceInput, SnapshotReplaceResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SnapshotReplaceInput) (*mcp.CallToolResult, SnapshotReplaceResult, error) {
		invocationID, err := newInvocationID()
		if err != nil {
			return nil, SnapshotReplaceResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		chatID := resolveChatID(input.ChatID, getContextFunc)
		if chatID == "" {
			return nil, SnapshotReplaceResult{}, fmt.Errorf("chat_id is required; bind one with context_set first")
		}

		// Start from a fresh state so an authored document with missing maps
		// still projects cleanly.
		seed := state.New()
		if strings.TrimSpace(input.StateJSON) != "" {
			if err := json.Unmarshal([]byte(input.StateJSON), seed); err != nil {
				return nil, SnapshotReplaceResult{}, fmt.Errorf("parse state_json: %w", err)
			}
		}

		runCtx, cancel := context.WithTimeout(ctx, readTimeout)
		defer cancel()

		if err := tracker.ReplaceInitialSnapshot(runCtx, chatID, seed); err != nil {
			return nil, SnapshotReplaceResult{}, fmt.Errorf("replace initial snapshot: %w", err)
		}

		// The seed feeds every projection, so chapter listings change too.
		notifyResources(ctx, notify, chaptersResourceURI(chatID))

		result := SnapshotReplaceResult{
			ChatID:     chatID,
			Characters: len(seed.Characters),
			Chapters:   len(seed.Chapters),
		}
		return resultWithInvocation(invocationID), result, nil
	}
}
