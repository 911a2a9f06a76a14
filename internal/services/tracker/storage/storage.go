package storage

import (
	"context"
	"time"

	apperrors "github.com/storyweft/storyweft/internal/platform/errors"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such record" states
// and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ChatRecord captures the metadata the tracker keeps per bound chat.
type ChatRecord struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatStore persists chat bindings.
type ChatStore interface {
	// PutChat upserts a chat record.
	PutChat(ctx context.Context, record ChatRecord) error
	// GetChat retrieves a chat record by id.
	GetChat(ctx context.Context, chatID string) (ChatRecord, error)
}

// EventStore owns the event journal boundary that drives projection. The
// journal is append-only and is the source of truth for state reconstruction;
// sequence numbers are assigned here and never reused.
type EventStore interface {
	// AppendEvents atomically appends a batch of events for one chat and
	// returns them with sequence numbers and ids assigned. Either every event
	// in the batch persists or none do.
	AppendEvents(ctx context.Context, chatID string, events []event.Event) ([]event.Event, error)
	// GetEventBySeq retrieves a specific event by sequence number.
	GetEventBySeq(ctx context.Context, chatID string, seq uint64) (event.Event, error)
	// ListEvents returns events ordered by sequence ascending.
	ListEvents(ctx context.Context, chatID string, afterSeq uint64, limit int) ([]event.Event, error)
	// GetLatestEventSeq returns the latest event sequence number for a chat.
	// Returns 0 if no events exist.
	GetLatestEventSeq(ctx context.Context, chatID string) (uint64, error)
	// ListEventsPage returns a paginated, filtered, and sorted list of events.
	ListEventsPage(ctx context.Context, req ListEventsPageRequest) (ListEventsPageResult, error)
}

// ListEventsPageRequest describes filters for event history views.
type ListEventsPageRequest struct {
	// ChatID scopes the query to a specific chat (required).
	ChatID string
	// PageSize is the maximum number of events to return (default: 50, max: 200).
	PageSize int
	// CursorSeq is the sequence number to paginate from (0 for first page).
	CursorSeq uint64
	// Descending orders results by seq desc (newest first) when true.
	Descending bool
	// FilterClause is an optional SQL WHERE clause fragment.
	FilterClause string
	// FilterParams are the positional parameters for the filter clause.
	FilterParams []any
}

// ListEventsPageResult contains paginated event history for introspection
// tooling.
type ListEventsPageResult struct {
	// Events are the events matching the request.
	Events []event.Event
	// HasNextPage indicates whether more results exist past this page.
	HasNextPage bool
	// TotalCount is the total number of events matching the filter.
	TotalCount int
}

// Snapshot is a materialized narrative state checkpoint derived from the
// event journal. Snapshots are accelerators for replay, not the source of
// authority. MessageID -1 holds the chat's initial state, seeded before any
// transcript message.
type Snapshot struct {
	ChatID string
	// MessageID is the inclusive transcript position the snapshot covers.
	MessageID int64
	// EventSeq is the highest journal sequence folded into the snapshot.
	EventSeq uint64
	// StateJSON is the serialized narrative state.
	StateJSON []byte
	// SwipesJSON records the swipe selections the snapshot was folded under.
	// A snapshot is only valid for projections that agree with them.
	SwipesJSON []byte
	CreatedAt  time.Time
}

// InitialSnapshotMessageID is the reserved transcript position for a chat's
// seeded starting state.
const InitialSnapshotMessageID int64 = -1

// SnapshotStore persists replay checkpoints used to jump projection work.
type SnapshotStore interface {
	// PutSnapshot upserts a snapshot at its chat and message position.
	PutSnapshot(ctx context.Context, snap Snapshot) error
	// GetSnapshot retrieves the snapshot at an exact message position.
	GetSnapshot(ctx context.Context, chatID string, messageID int64) (Snapshot, error)
	// ListSnapshotsAtOrBefore returns snapshots at or before the message
	// position, ordered by message id descending.
	ListSnapshotsAtOrBefore(ctx context.Context, chatID string, messageID int64, limit int) ([]Snapshot, error)
	// DeleteSnapshotsFrom removes snapshots at or after the message position.
	// Appends and swipe changes invalidate downstream checkpoints.
	DeleteSnapshotsFrom(ctx context.Context, chatID string, fromMessageID int64) error
}

// TurnTelemetry captures operational observations emitted while processing
// one transcript turn.
type TurnTelemetry struct {
	Timestamp time.Time
	EventName string
	Severity  string
	ChatID    string
	MessageID int64
	SwipeID   int64
	TraceID   string
	SpanID    string
	// Attributes carries structured context; AttributesJSON is its encoded
	// form when the record crosses the persistence boundary.
	Attributes     map[string]any
	AttributesJSON []byte
}

// TelemetryStore persists operational telemetry records for audits and
// incident analysis.
type TelemetryStore interface {
	AppendTurnTelemetry(ctx context.Context, record TurnTelemetry) error
}

// Store is a composite interface for all persistence concerns used across
// event journaling, projection, and queries.
type Store interface {
	ChatStore
	EventStore
	SnapshotStore
	TelemetryStore
	Close() error
}
