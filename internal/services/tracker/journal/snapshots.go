package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
	"github.com/storyweft/storyweft/internal/services/tracker/storage"
)

// swipeSelections is the stored form of the swipe context a snapshot was
// folded under.
type swipeSelections struct {
	Default int64           `json:"default,omitempty"`
	Swipes  map[int64]int64 `json:"swipes,omitempty"`
}

// EnsureInitialSnapshot seeds the chat's reserved starting snapshot when it
// is missing. An existing initial snapshot is left untouched.
func (j *Journal) EnsureInitialSnapshot(ctx context.Context) error {
	_, err := j.store.GetSnapshot(ctx, j.chatID, storage.InitialSnapshotMessageID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return j.putInitialSnapshot(ctx, state.New())
}

// ReplaceInitialSnapshot overwrites the chat's starting state and drops
// every checkpoint derived from the old one.
func (j *Journal) ReplaceInitialSnapshot(ctx context.Context, st *state.NarrativeState) error {
	if st == nil {
		st = state.New()
	}
	if err := j.putInitialSnapshot(ctx, st); err != nil {
		return err
	}
	if err := j.store.DeleteSnapshotsFrom(ctx, j.chatID, 0); err != nil {
		return fmt.Errorf("drop checkpoints after initial snapshot replace: %w", err)
	}
	return nil
}

func (j *Journal) putInitialSnapshot(ctx context.Context, st *state.NarrativeState) error {
	stateJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode initial state: %w", err)
	}
	return j.store.PutSnapshot(ctx, storage.Snapshot{
		ChatID:     j.chatID,
		MessageID:  storage.InitialSnapshotMessageID,
		EventSeq:   0,
		StateJSON:  stateJSON,
		SwipesJSON: []byte("{}"),
		CreatedAt:  j.now().UTC(),
	})
}

// maybeCheckpoint writes a checkpoint after a head-of-transcript append
// once the last snapshot falls a full cadence behind. Turns behind the
// journal head are skipped: a checkpoint's event watermark only holds when
// no stored event beyond its message precedes it. Failures are counted,
// never returned; the append already committed.
func (j *Journal) maybeCheckpoint(ctx context.Context, turnMaxMessage int64, swipes event.SwipeContext) {
	every := j.opts.SnapshotEveryMessages
	if every <= 0 {
		return
	}
	journalMax, ok, err := j.maxMessageID(ctx)
	if err != nil {
		count(ctx, metricCheckpointFailures, j.chatID)
		return
	}
	if !ok || journalMax > turnMaxMessage {
		return
	}

	latest := storage.InitialSnapshotMessageID
	snaps, err := j.store.ListSnapshotsAtOrBefore(ctx, j.chatID, journalMax, 1)
	if err != nil {
		count(ctx, metricCheckpointFailures, j.chatID)
		return
	}
	if len(snaps) > 0 {
		latest = snaps[0].MessageID
	}
	if journalMax-latest < int64(every) {
		return
	}
	if err := j.writeCheckpoint(ctx, journalMax, swipes); err != nil {
		count(ctx, metricCheckpointFailures, j.chatID)
	}
}

// writeCheckpoint projects the chat at messageID and stores the result as
// a snapshot folded under swipes.
func (j *Journal) writeCheckpoint(ctx context.Context, messageID int64, swipes event.SwipeContext) error {
	proj, err := j.projectStateAt(ctx, messageID, swipes)
	if err != nil {
		return err
	}
	stateJSON, err := json.Marshal(proj.State)
	if err != nil {
		return fmt.Errorf("encode snapshot state: %w", err)
	}
	swipesJSON, err := encodeSwipes(swipes)
	if err != nil {
		return fmt.Errorf("encode snapshot swipes: %w", err)
	}
	return j.store.PutSnapshot(ctx, storage.Snapshot{
		ChatID:     j.chatID,
		MessageID:  messageID,
		EventSeq:   proj.LastSeq,
		StateJSON:  stateJSON,
		SwipesJSON: swipesJSON,
		CreatedAt:  j.now().UTC(),
	})
}

// bestSnapshot returns the nearest snapshot at or before messageID whose
// recorded swipe selections agree with swipes, falling back to the initial
// snapshot when no recent candidate agrees.
func (j *Journal) bestSnapshot(ctx context.Context, messageID int64, swipes event.SwipeContext) (storage.Snapshot, bool, error) {
	candidates, err := j.store.ListSnapshotsAtOrBefore(ctx, j.chatID, messageID, snapshotCandidates)
	if err != nil {
		return storage.Snapshot{}, false, err
	}
	sawInitial := false
	for _, snap := range candidates {
		if snap.MessageID == storage.InitialSnapshotMessageID {
			sawInitial = true
		}
		recorded, err := decodeSwipes(snap.SwipesJSON)
		if err != nil {
			return storage.Snapshot{}, false, fmt.Errorf("decode snapshot swipes at message %d: %w", snap.MessageID, err)
		}
		if swipesAgree(snap.MessageID, recorded, swipes) {
			return snap, true, nil
		}
	}
	if sawInitial {
		return storage.Snapshot{}, false, nil
	}

	// The initial snapshot may hold authored state; it must not be lost to
	// the candidate limit.
	snap, err := j.store.GetSnapshot(ctx, j.chatID, storage.InitialSnapshotMessageID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Snapshot{}, false, nil
	}
	if err != nil {
		return storage.Snapshot{}, false, err
	}
	return snap, true, nil
}

// swipesAgree reports whether a snapshot folded under recorded selections
// is reusable for a projection under want. Only messages the snapshot
// covers matter. Differing defaults count as disagreement rather than
// proving agreement message by message.
func swipesAgree(snapshotMessageID int64, recorded, want event.SwipeContext) bool {
	if snapshotMessageID <= storage.InitialSnapshotMessageID {
		return true
	}
	if recorded.Default != want.Default {
		return false
	}
	for id := range recorded.Swipes {
		if id > snapshotMessageID {
			continue
		}
		if recorded.ActiveSwipe(id) != want.ActiveSwipe(id) {
			return false
		}
	}
	for id := range want.Swipes {
		if id > snapshotMessageID {
			continue
		}
		if recorded.ActiveSwipe(id) != want.ActiveSwipe(id) {
			return false
		}
	}
	return true
}

func encodeSwipes(swipes event.SwipeContext) ([]byte, error) {
	return json.Marshal(swipeSelections{Default: swipes.Default, Swipes: swipes.Swipes})
}

func decodeSwipes(raw []byte) (event.SwipeContext, error) {
	if len(raw) == 0 {
		return event.SwipeContext{}, nil
	}
	var sel swipeSelections
	if err := json.Unmarshal(raw, &sel); err != nil {
		return event.SwipeContext{}, err
	}
	return event.SwipeContext{Swipes: sel.Swipes, Default: sel.Default}, nil
}

func decodeState(raw []byte) (*state.NarrativeState, error) {
	st := state.New()
	if len(raw) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, err
	}
	return st, nil
}
