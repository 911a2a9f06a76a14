package projection

import (
	"context"
	"errors"
	"strings"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
)

const defaultPageSize = 200

var (
	// ErrEventSourceRequired indicates a missing event source.
	ErrEventSourceRequired = errors.New("event source is required")
	// ErrChatIDRequired indicates a missing chat id.
	ErrChatIDRequired = errors.New("chat id is required")
)

// EventSource lists a chat's events in sequence order for replay.
type EventSource interface {
	ListEvents(ctx context.Context, chatID string, afterSeq uint64, limit int) ([]event.Event, error)
}

// Options configures replay behavior.
type Options struct {
	// UntilMessageID bounds the replay to events at or before this message
	// (inclusive). Negative means no events apply.
	UntilMessageID int64
	// Swipes selects which swipe is active per message.
	Swipes event.SwipeContext
	// PageSize bounds the events fetched per store round-trip.
	PageSize int
}

// Result captures replay outcomes.
type Result struct {
	State   *state.NarrativeState
	LastSeq uint64
	Applied int
}

// Replay folds a chat's active events into a copy of base, in sequence
// order, starting after afterSeq. Events above UntilMessageID or on inactive
// swipes are skipped, so applied sequence numbers are not contiguous; order
// alone carries the total-ordering invariant.
func Replay(ctx context.Context, source EventSource, chatID string, base *state.NarrativeState, afterSeq uint64, opts Options) (Result, error) {
	if source == nil {
		return Result{}, ErrEventSourceRequired
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return Result{}, ErrChatIDRequired
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	applier := Applier{}
	result := Result{State: base.Clone(), LastSeq: afterSeq}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		events, err := source.ListEvents(ctx, chatID, result.LastSeq, pageSize)
		if err != nil {
			return result, err
		}
		if len(events) == 0 {
			return result, nil
		}
		for _, evt := range events {
			result.LastSeq = evt.Seq
			if evt.MessageID > opts.UntilMessageID {
				continue
			}
			if !opts.Swipes.IsActive(evt) {
				continue
			}
			if err := applier.Apply(result.State, evt); err != nil {
				return result, err
			}
			result.Applied++
		}
	}
}

// Fold applies an ordered event slice to a copy of base and returns the
// folded state. It is the in-memory half of Replay, used when the caller
// already holds the events (e.g. a turn's uncommitted output).
func Fold(base *state.NarrativeState, events []event.Event) (*state.NarrativeState, error) {
	applier := Applier{}
	out := base.Clone()
	for _, evt := range events {
		if err := applier.Apply(out, evt); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Projection is a materialized state at a point in the transcript.
type Projection struct {
	// State is the folded narrative state.
	State *state.NarrativeState
	// AtMessageID is the inclusive upper bound the projection covers.
	AtMessageID int64
	// LastSeq is the highest journal sequence inspected while folding.
	LastSeq uint64
}
