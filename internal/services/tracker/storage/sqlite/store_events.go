package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storyweft/storyweft/internal/platform/id"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/storage"
)

const (
	defaultEventsPageSize = 50
	maxEventsPageSize     = 200
)

// AppendEvents atomically appends a batch of events for one chat. Sequence
// numbers and ids are assigned inside the transaction; either the whole batch
// persists or none of it does.
func (s *Store) AppendEvents(ctx context.Context, chatID string, events []event.Event) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
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

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO event_seqs (chat_id, next_seq) VALUES (?, 1)
ON CONFLICT(chat_id) DO NOTHING
`, chatID); err != nil {
		return nil, fmt.Errorf("init event seq: %w", err)
	}

	var nextSeq int64
	row := tx.QueryRowContext(ctx, `SELECT next_seq FROM event_seqs WHERE chat_id = ?`, chatID)
	if err := row.Scan(&nextSeq); err != nil {
		return nil, fmt.Errorf("get event seq: %w", err)
	}
	if nextSeq <= 0 {
		return nil, fmt.Errorf("event seq is required")
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE event_seqs SET next_seq = next_seq + ? WHERE chat_id = ?
`, int64(len(out)), chatID); err != nil {
		return nil, fmt.Errorf("increment event seq: %w", err)
	}

	for i := range out {
		out[i].Seq = uint64(nextSeq) + uint64(i)
		if _, err := tx.ExecContext(ctx, `
INSERT INTO events (chat_id, seq, event_id, kind, subkind, message_id, swipe_id, timestamp, payload_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
			out[i].ChatID,
			int64(out[i].Seq),
			out[i].ID,
			string(out[i].Subkind.Kind()),
			string(out[i].Subkind),
			out[i].MessageID,
			out[i].SwipeID,
			toMillis(out[i].Timestamp),
			out[i].PayloadJSON,
		); err != nil {
			return nil, fmt.Errorf("append event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return out, nil
}

// GetEventBySeq retrieves a specific event by sequence number.
func (s *Store) GetEventBySeq(ctx context.Context, chatID string, seq uint64) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return event.Event{}, fmt.Errorf("chat id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT chat_id, seq, event_id, subkind, message_id, swipe_id, timestamp, payload_json
FROM events
WHERE chat_id = ? AND seq = ?
`, chatID, int64(seq))

	evt, err := scanEventRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, storage.ErrNotFound
		}
		return event.Event{}, fmt.Errorf("get event by seq: %w", err)
	}
	return evt, nil
}

// ListEvents returns events ordered by sequence ascending.
func (s *Store) ListEvents(ctx context.Context, chatID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, fmt.Errorf("chat id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT chat_id, seq, event_id, subkind, message_id, swipe_id, timestamp, payload_json
FROM events
WHERE chat_id = ? AND seq > ?
ORDER BY seq
LIMIT ?
`, chatID, int64(afterSeq), limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, err := scanEventRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}

// GetLatestEventSeq returns the latest event sequence number for a chat.
func (s *Store) GetLatestEventSeq(ctx context.Context, chatID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return 0, fmt.Errorf("chat id is required")
	}

	var latest int64
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT COALESCE(MAX(seq), 0) FROM events WHERE chat_id = ?
`, chatID)
	if err := row.Scan(&latest); err != nil {
		return 0, fmt.Errorf("get latest event seq: %w", err)
	}
	return uint64(latest), nil
}

// ListEventsPage returns a paginated, filtered, and sorted list of events.
func (s *Store) ListEventsPage(ctx context.Context, req storage.ListEventsPageRequest) (storage.ListEventsPageResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.ListEventsPageResult{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ListEventsPageResult{}, fmt.Errorf("storage is not configured")
	}
	chatID := strings.TrimSpace(req.ChatID)
	if chatID == "" {
		return storage.ListEventsPageResult{}, fmt.Errorf("chat id is required")
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultEventsPageSize
	}
	if pageSize > maxEventsPageSize {
		pageSize = maxEventsPageSize
	}

	whereParts := []string{"chat_id = ?"}
	args := []any{chatID}
	if strings.TrimSpace(req.FilterClause) != "" {
		whereParts = append(whereParts, req.FilterClause)
		args = append(args, req.FilterParams...)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM events WHERE %s`, strings.Join(whereParts, " AND "))
	var totalCount int
	if err := s.sqlDB.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return storage.ListEventsPageResult{}, fmt.Errorf("count events: %w", err)
	}

	order := "seq"
	if req.Descending {
		order = "seq DESC"
	}
	if req.CursorSeq > 0 {
		if req.Descending {
			whereParts = append(whereParts, "seq < ?")
		} else {
			whereParts = append(whereParts, "seq > ?")
		}
		args = append(args, int64(req.CursorSeq))
	}
	args = append(args, pageSize+1)

	query := fmt.Sprintf(`
SELECT chat_id, seq, event_id, subkind, message_id, swipe_id, timestamp, payload_json
FROM events
WHERE %s
ORDER BY %s
LIMIT ?
`, strings.Join(whereParts, " AND "), order)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.ListEventsPageResult{}, fmt.Errorf("list events page: %w", err)
	}
	defer rows.Close()

	result := storage.ListEventsPageResult{TotalCount: totalCount}
	for rows.Next() {
		evt, err := scanEventRows(rows)
		if err != nil {
			return storage.ListEventsPageResult{}, fmt.Errorf("scan event row: %w", err)
		}
		result.Events = append(result.Events, evt)
	}
	if err := rows.Err(); err != nil {
		return storage.ListEventsPageResult{}, fmt.Errorf("iterate event rows: %w", err)
	}

	if len(result.Events) > pageSize {
		result.Events = result.Events[:pageSize]
		result.HasNextPage = true
	}
	return result, nil
}

func scanEventRow(row *sql.Row) (event.Event, error) {
	var (
		evt       event.Event
		seq       int64
		subkind   string
		timestamp int64
	)
	if err := row.Scan(&evt.ChatID, &seq, &evt.ID, &subkind, &evt.MessageID, &evt.SwipeID, &timestamp, &evt.PayloadJSON); err != nil {
		return event.Event{}, err
	}
	evt.Seq = uint64(seq)
	evt.Subkind = event.Subkind(subkind)
	evt.Timestamp = fromMillis(timestamp)
	return evt, nil
}

func scanEventRows(rows *sql.Rows) (event.Event, error) {
	var (
		evt       event.Event
		seq       int64
		subkind   string
		timestamp int64
	)
	if err := rows.Scan(&evt.ChatID, &seq, &evt.ID, &subkind, &evt.MessageID, &evt.SwipeID, &timestamp, &evt.PayloadJSON); err != nil {
		return event.Event{}, err
	}
	evt.Seq = uint64(seq)
	evt.Subkind = event.Subkind(subkind)
	evt.Timestamp = fromMillis(timestamp)
	return evt, nil
}
