// Package journal gives each chat one facade over the event and snapshot
// stores: deterministic projection, the turn's single atomic append, and
// checkpoint maintenance. Everything here reads or extends the journal;
// nothing rewrites committed history.
package journal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/storyweft/storyweft/internal/platform/errors"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/projection"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
	"github.com/storyweft/storyweft/internal/services/tracker/storage"
)

const (
	defaultPageSize = 200
	// snapshotCandidates bounds how many recent snapshots a projection
	// inspects before falling back to the initial snapshot.
	snapshotCandidates = 8
	// projectionTimeout bounds a detached singleflight replay.
	projectionTimeout = 30 * time.Second
)

// Store is the persistence surface the journal drives.
type Store interface {
	storage.EventStore
	storage.SnapshotStore
}

// Options tunes journal behavior.
type Options struct {
	// SnapshotEveryMessages is the checkpoint cadence in transcript
	// messages. Zero or negative disables periodic checkpoints.
	SnapshotEveryMessages int
	// PageSize bounds events fetched per store round-trip.
	PageSize int
}

// Journal is the per-chat event journal facade.
type Journal struct {
	store  Store
	chatID string
	opts   Options
	group  singleflight.Group
	now    func() time.Time
}

// New creates a journal bound to one chat.
func New(store Store, chatID string, opts Options) (*Journal, error) {
	if store == nil {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "journal store is required")
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, apperrors.New(apperrors.CodeChatEmptyID, "chat id is required")
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	return &Journal{
		store:  store,
		chatID: chatID,
		opts:   opts,
		now:    time.Now,
	}, nil
}

// ChatID returns the chat this journal is bound to.
func (j *Journal) ChatID() string {
	return j.chatID
}

// SetNow overrides the snapshot clock. Test hook.
func (j *Journal) SetNow(now func() time.Time) {
	if now != nil {
		j.now = now
	}
}

// ProjectStateAt folds the chat's active events at or before messageID onto
// the best agreeing snapshot. It is side-effect free and repeatable;
// concurrent identical projections share one replay through singleflight.
func (j *Journal) ProjectStateAt(ctx context.Context, messageID int64, swipes event.SwipeContext) (projection.Projection, error) {
	if err := ctx.Err(); err != nil {
		return projection.Projection{}, err
	}
	ctx, span := startSpan(ctx, "journal.project", j.chatID)
	defer span.End()

	// The replay runs detached from the caller: singleflight reuses the
	// first caller's context, and a shared result must not inherit one
	// waiter's cancellation.
	out, err, _ := j.group.Do(projectionKey(messageID, swipes), func() (any, error) {
		replayCtx, cancel := context.WithTimeout(context.Background(), projectionTimeout)
		defer cancel()
		return j.projectStateAt(replayCtx, messageID, swipes)
	})
	if err != nil {
		return projection.Projection{}, err
	}
	if err := ctx.Err(); err != nil {
		return projection.Projection{}, err
	}

	// Waiters share the computed result; hand each caller its own state.
	proj := out.(projection.Projection)
	proj.State = proj.State.Clone()
	return proj, nil
}

func (j *Journal) projectStateAt(ctx context.Context, messageID int64, swipes event.SwipeContext) (projection.Projection, error) {
	base := state.New()
	var afterSeq uint64
	snap, ok, err := j.bestSnapshot(ctx, messageID, swipes)
	if err != nil {
		return projection.Projection{}, err
	}
	if ok {
		base, err = decodeState(snap.StateJSON)
		if err != nil {
			return projection.Projection{}, fmt.Errorf("decode snapshot state at message %d: %w", snap.MessageID, err)
		}
		afterSeq = snap.EventSeq
		count(ctx, metricSnapshotHits, j.chatID)
	} else {
		count(ctx, metricSnapshotMisses, j.chatID)
	}

	res, err := projection.Replay(ctx, j.store, j.chatID, base, afterSeq, projection.Options{
		UntilMessageID: messageID,
		Swipes:         swipes,
		PageSize:       j.opts.PageSize,
	})
	if err != nil {
		return projection.Projection{}, err
	}
	return projection.Projection{
		State:       res.State,
		AtMessageID: messageID,
		LastSeq:     res.LastSeq,
	}, nil
}

// AppendTurn commits one turn's events atomically and returns the first
// assigned sequence number. Checkpoints at or after the turn's earliest
// message are dropped; checkpoint maintenance never fails a committed
// append.
func (j *Journal) AppendTurn(ctx context.Context, swipes event.SwipeContext, events []event.Event) (uint64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	ctx, span := startSpan(ctx, "journal.append_turn", j.chatID)
	defer span.End()

	appended, err := j.store.AppendEvents(ctx, j.chatID, events)
	if err != nil {
		return 0, fmt.Errorf("append turn events: %w", err)
	}
	addCount(ctx, metricEventsAppended, j.chatID, int64(len(appended)))

	minMessage, maxMessage := appended[0].MessageID, appended[0].MessageID
	for _, evt := range appended[1:] {
		if evt.MessageID < minMessage {
			minMessage = evt.MessageID
		}
		if evt.MessageID > maxMessage {
			maxMessage = evt.MessageID
		}
	}

	if err := j.store.DeleteSnapshotsFrom(ctx, j.chatID, minMessage); err != nil {
		count(ctx, metricCheckpointFailures, j.chatID)
		return appended[0].Seq, nil
	}
	j.maybeCheckpoint(ctx, maxMessage, swipes)
	return appended[0].Seq, nil
}

// ActiveEvents returns the chat's events at or before untilMessageID that
// lie on the timeline swipes describes, in sequence order.
func (j *Journal) ActiveEvents(ctx context.Context, untilMessageID int64, swipes event.SwipeContext) ([]event.Event, error) {
	var out []event.Event
	var afterSeq uint64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := j.store.ListEvents(ctx, j.chatID, afterSeq, j.opts.PageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return out, nil
		}
		for _, evt := range page {
			afterSeq = evt.Seq
			if evt.MessageID > untilMessageID || !swipes.IsActive(evt) {
				continue
			}
			out = append(out, evt)
		}
	}
}

// History returns a committed-history read view bound to one swipe context.
func (j *Journal) History(swipes event.SwipeContext) *HistoryView {
	return &HistoryView{journal: j, swipes: swipes}
}

// LastMessageOfKinds answers the history question directly for callers that
// carry their swipe context per call.
func (j *Journal) LastMessageOfKinds(ctx context.Context, swipes event.SwipeContext, untilMessageID int64, subkinds ...event.Subkind) (int64, bool, error) {
	return j.History(swipes).LastMessageOfKinds(ctx, untilMessageID, subkinds...)
}

// LatestMessageID returns the highest transcript message with any stored
// event, active or not. ok is false for an empty journal.
func (j *Journal) LatestMessageID(ctx context.Context) (int64, bool, error) {
	return j.maxMessageID(ctx)
}

// HistoryView answers window-strategy questions about committed events
// under a fixed swipe context.
type HistoryView struct {
	journal *Journal
	swipes  event.SwipeContext
}

// LastMessageOfKinds returns the highest message at or before
// untilMessageID carrying an active event of any of the given subkinds. ok
// is false when no such event exists.
func (v *HistoryView) LastMessageOfKinds(ctx context.Context, untilMessageID int64, subkinds ...event.Subkind) (int64, bool, error) {
	if len(subkinds) == 0 {
		return 0, false, nil
	}
	match := make(map[event.Subkind]struct{}, len(subkinds))
	for _, s := range subkinds {
		match[s] = struct{}{}
	}

	j := v.journal
	var (
		best     int64
		found    bool
		afterSeq uint64
	)
	for {
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}
		page, err := j.store.ListEvents(ctx, j.chatID, afterSeq, j.opts.PageSize)
		if err != nil {
			return 0, false, err
		}
		if len(page) == 0 {
			return best, found, nil
		}
		for _, evt := range page {
			afterSeq = evt.Seq
			if evt.MessageID > untilMessageID || !v.swipes.IsActive(evt) {
				continue
			}
			if _, ok := match[evt.Subkind]; !ok {
				continue
			}
			if !found || evt.MessageID > best {
				best = evt.MessageID
				found = true
			}
		}
	}
}

// maxMessageID returns the highest message id across every stored event,
// active or not.
func (j *Journal) maxMessageID(ctx context.Context) (int64, bool, error) {
	var (
		best     int64
		found    bool
		afterSeq uint64
	)
	for {
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}
		page, err := j.store.ListEvents(ctx, j.chatID, afterSeq, j.opts.PageSize)
		if err != nil {
			return 0, false, err
		}
		if len(page) == 0 {
			return best, found, nil
		}
		for _, evt := range page {
			afterSeq = evt.Seq
			if !found || evt.MessageID > best {
				best = evt.MessageID
				found = true
			}
		}
	}
}

// projectionKey encodes a projection request deterministically for
// singleflight dedup.
func projectionKey(messageID int64, swipes event.SwipeContext) string {
	ids := make([]int64, 0, len(swipes.Swipes))
	for id := range swipes.Swipes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	fmt.Fprintf(&b, "%d|%d", messageID, swipes.Default)
	for _, id := range ids {
		fmt.Fprintf(&b, "|%d=%d", id, swipes.Swipes[id])
	}
	return b.String()
}
