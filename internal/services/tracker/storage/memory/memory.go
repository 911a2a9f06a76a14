// Package memory provides an in-process implementation of the tracker
// storage contracts for tests and ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/storyweft/storyweft/internal/platform/id"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/storage"
)

const (
	defaultEventsPageSize = 50
	maxEventsPageSize     = 200
)

// Store keeps tracker records in memory behind a mutex.
type Store struct {
	mu        sync.Mutex
	chats     map[string]storage.ChatRecord
	events    map[string][]event.Event
	nextSeq   map[string]uint64
	snapshots map[string]map[int64]storage.Snapshot
	telemetry []storage.TurnTelemetry
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		chats:     make(map[string]storage.ChatRecord),
		events:    make(map[string][]event.Event),
		nextSeq:   make(map[string]uint64),
		snapshots: make(map[string]map[int64]storage.Snapshot),
	}
}

// Close implements the composite store contract. It has nothing to release.
func (s *Store) Close() error {
	return nil
}

// PutChat upserts a chat record.
func (s *Store) PutChat(ctx context.Context, record storage.ChatRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID := strings.TrimSpace(record.ID)
	if chatID == "" {
		return fmt.Errorf("chat id is required")
	}
	record.ID = chatID
	now := time.Now().UTC()
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.chats[chatID]; ok {
		record.CreatedAt = existing.CreatedAt
	} else if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	s.chats[chatID] = record
	return nil
}

// GetChat retrieves a chat record by id.
func (s *Store) GetChat(ctx context.Context, chatID string) (storage.ChatRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ChatRecord{}, err
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return storage.ChatRecord{}, fmt.Errorf("chat id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.chats[chatID]
	if !ok {
		return storage.ChatRecord{}, storage.ErrNotFound
	}
	return record, nil
}

// AppendEvents atomically appends a batch of events for one chat.
func (s *Store) AppendEvents(ctx context.Context, chatID string, events []event.Event) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, fmt.Errorf("chat id is required")
	}
	if len(events) == 0 {
		return nil, nil
	}

	out := make([]event.Event, len(events))
	for i, evt := range events {
		if evt.ChatID == "" {
			evt.ChatID = chatID
		}
		if evt.ChatID != chatID {
			return nil, fmt.Errorf("event %d chat id %q does not match %q", i, evt.ChatID, chatID)
		}
		if err := event.ValidateForAppend(evt); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if evt.Timestamp.IsZero() {
			evt.Timestamp = time.Now().UTC()
		}
		evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)
		if evt.ID == "" {
			eventID, err := id.NewID()
			if err != nil {
				return nil, fmt.Errorf("generate event id: %w", err)
			}
			evt.ID = eventID
		}
		out[i] = evt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.nextSeq[chatID]
	if !ok {
		seq = 1
	}
	for i := range out {
		out[i].Seq = seq
		seq++
	}
	s.nextSeq[chatID] = seq
	s.events[chatID] = append(s.events[chatID], out...)

	return out, nil
}

// GetEventBySeq retrieves a specific event by sequence number.
func (s *Store) GetEventBySeq(ctx context.Context, chatID string, seq uint64) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return event.Event{}, fmt.Errorf("chat id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, evt := range s.events[chatID] {
		if evt.Seq == seq {
			return evt, nil
		}
	}
	return event.Event{}, storage.ErrNotFound
}

// ListEvents returns events ordered by sequence ascending.
func (s *Store) ListEvents(ctx context.Context, chatID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, fmt.Errorf("chat id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var page []event.Event
	for _, evt := range s.events[chatID] {
		if evt.Seq <= afterSeq {
			continue
		}
		page = append(page, evt)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

// GetLatestEventSeq returns the latest event sequence number for a chat.
func (s *Store) GetLatestEventSeq(ctx context.Context, chatID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return 0, fmt.Errorf("chat id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events[chatID]
	if len(events) == 0 {
		return 0, nil
	}
	return events[len(events)-1].Seq, nil
}

// ListEventsPage returns a paginated list of events. The memory store does
// not evaluate SQL filter clauses; requests carrying one are rejected.
func (s *Store) ListEventsPage(ctx context.Context, req storage.ListEventsPageRequest) (storage.ListEventsPageResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.ListEventsPageResult{}, err
	}
	chatID := strings.TrimSpace(req.ChatID)
	if chatID == "" {
		return storage.ListEventsPageResult{}, fmt.Errorf("chat id is required")
	}
	if strings.TrimSpace(req.FilterClause) != "" {
		return storage.ListEventsPageResult{}, fmt.Errorf("filter clauses are not supported by the memory store")
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultEventsPageSize
	}
	if pageSize > maxEventsPageSize {
		pageSize = maxEventsPageSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all := append([]event.Event(nil), s.events[chatID]...)
	if req.Descending {
		sort.Slice(all, func(i, j int) bool { return all[i].Seq > all[j].Seq })
	}

	result := storage.ListEventsPageResult{TotalCount: len(all)}
	for _, evt := range all {
		if req.CursorSeq > 0 {
			if req.Descending && evt.Seq >= req.CursorSeq {
				continue
			}
			if !req.Descending && evt.Seq <= req.CursorSeq {
				continue
			}
		}
		if len(result.Events) == pageSize {
			result.HasNextPage = true
			break
		}
		result.Events = append(result.Events, evt)
	}
	return result, nil
}

// PutSnapshot upserts a snapshot at its chat and message position.
func (s *Store) PutSnapshot(ctx context.Context, snap storage.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID := strings.TrimSpace(snap.ChatID)
	if chatID == "" {
		return fmt.Errorf("chat id is required")
	}
	if snap.MessageID < storage.InitialSnapshotMessageID {
		return fmt.Errorf("snapshot message id %d is out of range", snap.MessageID)
	}
	if len(snap.StateJSON) == 0 {
		return fmt.Errorf("snapshot state is required")
	}
	snap.ChatID = chatID
	if len(snap.SwipesJSON) == 0 {
		snap.SwipesJSON = []byte("{}")
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byMessage, ok := s.snapshots[chatID]
	if !ok {
		byMessage = make(map[int64]storage.Snapshot)
		s.snapshots[chatID] = byMessage
	}
	byMessage[snap.MessageID] = snap
	return nil
}

// GetSnapshot retrieves the snapshot at an exact message position.
func (s *Store) GetSnapshot(ctx context.Context, chatID string, messageID int64) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return storage.Snapshot{}, fmt.Errorf("chat id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[chatID][messageID]
	if !ok {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	return snap, nil
}

// ListSnapshotsAtOrBefore returns snapshots at or before the message
// position, ordered by message id descending.
func (s *Store) ListSnapshotsAtOrBefore(ctx context.Context, chatID string, messageID int64, limit int) ([]storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, fmt.Errorf("chat id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []storage.Snapshot
	for position, snap := range s.snapshots[chatID] {
		if position <= messageID {
			matches = append(matches, snap)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].MessageID > matches[j].MessageID })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// DeleteSnapshotsFrom removes snapshots at or after the message position.
func (s *Store) DeleteSnapshotsFrom(ctx context.Context, chatID string, fromMessageID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return fmt.Errorf("chat id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for position := range s.snapshots[chatID] {
		if position >= fromMessageID {
			delete(s.snapshots[chatID], position)
		}
	}
	return nil
}

// AppendTurnTelemetry records an operational turn observation.
func (s *Store) AppendTurnTelemetry(ctx context.Context, record storage.TurnTelemetry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(record.EventName) == "" {
		return fmt.Errorf("event name is required")
	}
	if strings.TrimSpace(record.Severity) == "" {
		return fmt.Errorf("severity is required")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.telemetry = append(s.telemetry, record)
	return nil
}

// TelemetryEvents returns a copy of the recorded telemetry, oldest first.
func (s *Store) TelemetryEvents() []storage.TurnTelemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.TurnTelemetry(nil), s.telemetry...)
}
