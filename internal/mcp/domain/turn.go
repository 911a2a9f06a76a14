package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/storyweft/storyweft/internal/services/tracker/app"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/extract"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/orchestrate"
)

// TranscriptMessage is one transcript line in a turn request.
type TranscriptMessage struct {
	MessageID int64  `json:"message_id" jsonschema:"transcript message id"`
	Role      string `json:"role,omitempty" jsonschema:"speaker role (user, assistant, system)"`
	Author    string `json:"author,omitempty" jsonschema:"speaker display name"`
	Text      string `json:"text" jsonschema:"message text"`
}

// TurnRecordInput represents the MCP tool input for recording a turn.
type TurnRecordInput struct {
	ChatID       string              `json:"chat_id,omitempty" jsonschema:"chat identifier (defaults to the session context)"`
	MessageID    int64               `json:"message_id" jsonschema:"transcript message the turn processes"`
	SwipeID      int64               `json:"swipe_id,omitempty" jsonschema:"active swipe of that message"`
	Swipes       map[string]int64    `json:"swipes,omitempty" jsonschema:"active swipe per message, keyed by decimal message id"`
	SwipeDefault int64               `json:"swipe_default,omitempty" jsonschema:"swipe assumed for messages not listed in swipes"`
	Transcript   []TranscriptMessage `json:"transcript" jsonschema:"recent transcript window, oldest first (required)"`
	Timestamp    string              `json:"timestamp,omitempty" jsonschema:"RFC3339 turn timestamp (defaults to now)"`
}

// UnitErrorEntry is one failed extraction unit in tool output.
type UnitErrorEntry struct {
	Unit  string `json:"unit" jsonschema:"failed unit as extractor or extractor:target"`
	Error string `json:"error" jsonschema:"failure description"`
}

// TurnRecordResult represents the MCP tool output for recording a turn.
type TurnRecordResult struct {
	Events     []EventEntry     `json:"events" jsonschema:"events committed by the turn, in append order"`
	FirstSeq   uint64           `json:"first_seq,omitempty" jsonschema:"sequence number of the first committed event; zero when nothing committed"`
	Errors     []UnitErrorEntry `json:"errors,omitempty" jsonschema:"failed extraction units; the rest of the turn still committed"`
	Unresolved []string         `json:"unresolved,omitempty" jsonschema:"character names awaiting disambiguation via names_pending"`
	Ran        []string         `json:"ran,omitempty" jsonschema:"extractors whose cadence fired this turn"`
	Aborted    bool             `json:"aborted,omitempty" jsonschema:"whether the turn was cancelled before committing"`
}

// TurnRecordTool defines the MCP tool schema for recording a turn.
func TurnRecordTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "turn_record",
		Description: "Runs a full extraction turn over the supplied transcript window and appends the resulting events atomically",
	}
}

// TurnRecordHandler executes a turn record request.
func TurnRecordHandler(tracker Tracker, getContextFunc func() Context, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[TurnRecordInput, TurnRecordResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TurnRecordInput) (*mcp.CallToolResult, TurnRecordResult, error) {
		invocationID, err := newInvocationID()
		if err != nil {
			return nil, TurnRecordResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		chatID := resolveChatID(input.ChatID, getContextFunc)
		if chatID == "" {
			return nil, TurnRecordResult{}, fmt.Errorf("chat_id is required; bind one with context_set first")
		}
		if len(input.Transcript) == 0 {
			return nil, TurnRecordResult{}, fmt.Errorf("transcript is required")
		}

		swipes, err := parseSwipes(input.Swipes, input.SwipeDefault)
		if err != nil {
			return nil, TurnRecordResult{}, fmt.Errorf("parse swipes: %w", err)
		}

		var timestamp time.Time
		if input.Timestamp != "" {
			timestamp, err = time.Parse(time.RFC3339, input.Timestamp)
			if err != nil {
				return nil, TurnRecordResult{}, fmt.Errorf("parse timestamp: %w", err)
			}
		}

		transcript := make([]extract.Message, 0, len(input.Transcript))
		for _, msg := range input.Transcript {
			transcript = append(transcript, extract.Message{
				ID:     msg.MessageID,
				Role:   msg.Role,
				Author: msg.Author,
				Text:   msg.Text,
			})
		}

		runCtx, cancel := context.WithTimeout(ctx, turnTimeout)
		defer cancel()

		report, err := tracker.RecordTurn(app.WithInvocation(runCtx, invocationID), orchestrate.TurnInput{
			ChatID:     chatID,
			MessageID:  input.MessageID,
			SwipeID:    input.SwipeID,
			Swipes:     swipes,
			Transcript: transcript,
			Timestamp:  timestamp,
		})
		if err != nil {
			return nil, TurnRecordResult{}, fmt.Errorf("record turn: %w", err)
		}

		if len(report.Events) > 0 {
			notifyResources(ctx, notify, eventsResourceURI(chatID), chaptersResourceURI(chatID))
		}

		result := TurnRecordResult{
			Events:     eventEntries(report.Events, report.FirstSeq),
			FirstSeq:   report.FirstSeq,
			Unresolved: report.Unresolved,
			Ran:        report.Ran,
			Aborted:    report.Aborted,
		}
		for _, unitErr := range report.Errors {
			result.Errors = append(result.Errors, UnitErrorEntry{
				Unit:  unitErr.Qualified(),
				Error: unitErr.Err.Error(),
			})
		}

		return resultWithInvocation(invocationID), result, nil
	}
}
