// Package domain defines the MCP tool surface of the tracker: input and
// output schemas plus the handlers that bridge tool calls to the
// application service.
package domain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/storyweft/storyweft/internal/services/tracker/app"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/names"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/orchestrate"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/projection"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
	"github.com/storyweft/storyweft/internal/services/tracker/storage"
)

// Tracker is the application surface the MCP tools drive.
type Tracker interface {
	BindChat(ctx context.Context, chatID, title string) (storage.ChatRecord, error)
	RecordTurn(ctx context.Context, input orchestrate.TurnInput) (orchestrate.TurnReport, error)
	StateAt(ctx context.Context, chatID string, messageID int64, swipes event.SwipeContext) (projection.Projection, error)
	Chapters(ctx context.Context, chatID string, messageID int64, swipes event.SwipeContext) ([]state.Chapter, error)
	ListEvents(ctx context.Context, q app.EventQuery) (storage.ListEventsPageResult, error)
	ReplaceInitialSnapshot(ctx context.Context, chatID string, st *state.NarrativeState) error
	ConfirmNames(ctx context.Context, chatID string, messageID, swipeID int64, swipes event.SwipeContext, confirmed []names.Resolution) ([]event.Event, error)
}

// Context is the chat the MCP session is bound to.
type Context struct {
	ChatID string
	Title  string
}

// PendingName is one queued name-disambiguation question.
type PendingName struct {
	Name       string   `json:"name" jsonschema:"unresolved surface form"`
	Candidates []string `json:"candidates,omitempty" jsonschema:"canonical characters known when the question was filed"`
}

// PendingQueue is the question store behind the names tools. Questions are
// filed per chat during turns and cleared once the user answers.
type PendingQueue interface {
	Pending(chatID string) []PendingName
	Resolve(chatID string, resolved []string)
}

const (
	// readTimeout bounds bind, projection, and listing calls.
	readTimeout = 10 * time.Second
	// turnTimeout bounds a full extraction turn. It has to cover every
	// model generation the turn fans out, retries included.
	turnTimeout = 3 * time.Minute
)

// resolveChatID prefers the explicit chat id from the tool input and falls
// back to the session context.
func resolveChatID(explicit string, getContext func() Context) string {
	chatID := strings.TrimSpace(explicit)
	if chatID != "" {
		return chatID
	}
	if getContext == nil {
		return ""
	}
	return strings.TrimSpace(getContext().ChatID)
}

// parseSwipes converts the wire swipe map, keyed by decimal message ids,
// into a swipe context.
func parseSwipes(swipes map[string]int64, activeDefault int64) (event.SwipeContext, error) {
	out := event.SwipeContext{Default: activeDefault}
	if len(swipes) == 0 {
		return out, nil
	}
	out.Swipes = make(map[int64]int64, len(swipes))
	for key, swipeID := range swipes {
		messageID, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil {
			return event.SwipeContext{}, fmt.Errorf("swipe key %q is not a message id", key)
		}
		out.Swipes[messageID] = swipeID
	}
	return out, nil
}

// EventEntry is one committed event as rendered in tool output.
type EventEntry struct {
	Seq         uint64 `json:"seq" jsonschema:"journal sequence number"`
	Kind        string `json:"kind" jsonschema:"event kind"`
	Subkind     string `json:"subkind" jsonschema:"event subkind"`
	MessageID   int64  `json:"message_id" jsonschema:"source transcript message"`
	SwipeID     int64  `json:"swipe_id" jsonschema:"source swipe"`
	Timestamp   string `json:"ts" jsonschema:"RFC3339 event timestamp"`
	PayloadJSON string `json:"payload_json" jsonschema:"subkind-specific payload as JSON"`
}

// eventEntry renders one committed event.
func eventEntry(evt event.Event) EventEntry {
	return EventEntry{
		Seq:         evt.Seq,
		Kind:        string(evt.Subkind.Kind()),
		Subkind:     string(evt.Subkind),
		MessageID:   evt.MessageID,
		SwipeID:     evt.SwipeID,
		Timestamp:   formatTimestamp(evt.Timestamp),
		PayloadJSON: string(evt.PayloadJSON),
	}
}

// eventEntries renders a committed batch. Batches carry sequence numbers
// running contiguously from firstSeq; events the journal handed back
// without one are stamped from that base.
func eventEntries(events []event.Event, firstSeq uint64) []EventEntry {
	out := make([]EventEntry, 0, len(events))
	for i, evt := range events {
		entry := eventEntry(evt)
		if entry.Seq == 0 && firstSeq > 0 {
			entry.Seq = firstSeq + uint64(i)
		}
		out = append(out, entry)
	}
	return out
}

// formatTimestamp renders a timestamp for tool output. Zero times render
// empty rather than as the epoch.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
