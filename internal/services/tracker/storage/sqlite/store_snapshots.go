package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storyweft/storyweft/internal/services/tracker/storage"
)

// PutSnapshot upserts a snapshot at its chat and message position.
func (s *Store) PutSnapshot(ctx context.Context, snap storage.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(snap.ChatID) == "" {
		return fmt.Errorf("chat id is required")
	}
	if snap.MessageID < storage.InitialSnapshotMessageID {
		return fmt.Errorf("snapshot message id %d is out of range", snap.MessageID)
	}
	if len(snap.StateJSON) == 0 {
		return fmt.Errorf("snapshot state is required")
	}
	if len(snap.SwipesJSON) == 0 {
		snap.SwipesJSON = []byte("{}")
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO snapshots (chat_id, message_id, event_seq, state_json, swipes_json, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(chat_id, message_id) DO UPDATE SET
    event_seq = excluded.event_seq,
    state_json = excluded.state_json,
    swipes_json = excluded.swipes_json,
    created_at = excluded.created_at
`,
		strings.TrimSpace(snap.ChatID),
		snap.MessageID,
		int64(snap.EventSeq),
		snap.StateJSON,
		snap.SwipesJSON,
		toMillis(snap.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

// GetSnapshot retrieves the snapshot at an exact message position.
func (s *Store) GetSnapshot(ctx context.Context, chatID string, messageID int64) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Snapshot{}, fmt.Errorf("storage is not configured")
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return storage.Snapshot{}, fmt.Errorf("chat id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT chat_id, message_id, event_seq, state_json, swipes_json, created_at
FROM snapshots
WHERE chat_id = ? AND message_id = ?
`, chatID, messageID)

	snap, err := scanSnapshotRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Snapshot{}, storage.ErrNotFound
		}
		return storage.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshotsAtOrBefore returns snapshots at or before the message position,
// ordered by message id descending.
func (s *Store) ListSnapshotsAtOrBefore(ctx context.Context, chatID string, messageID int64, limit int) ([]storage.Snapshot, error) {
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
SELECT chat_id, message_id, event_seq, state_json, swipes_json, created_at
FROM snapshots
WHERE chat_id = ? AND message_id <= ?
ORDER BY message_id DESC
LIMIT ?
`, chatID, messageID, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []storage.Snapshot
	for rows.Next() {
		var (
			snap      storage.Snapshot
			eventSeq  int64
			createdAt int64
		)
		if err := rows.Scan(&snap.ChatID, &snap.MessageID, &eventSeq, &snap.StateJSON, &snap.SwipesJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snap.EventSeq = uint64(eventSeq)
		snap.CreatedAt = fromMillis(createdAt)
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return snapshots, nil
}

// DeleteSnapshotsFrom removes snapshots at or after the message position.
func (s *Store) DeleteSnapshotsFrom(ctx context.Context, chatID string, fromMessageID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return fmt.Errorf("chat id is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM snapshots WHERE chat_id = ? AND message_id >= ?
`, chatID, fromMessageID); err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}
	return nil
}

func scanSnapshotRow(row *sql.Row) (storage.Snapshot, error) {
	var (
		snap      storage.Snapshot
		eventSeq  int64
		createdAt int64
	)
	if err := row.Scan(&snap.ChatID, &snap.MessageID, &eventSeq, &snap.StateJSON, &snap.SwipesJSON, &createdAt); err != nil {
		return storage.Snapshot{}, err
	}
	snap.EventSeq = uint64(eventSeq)
	snap.CreatedAt = fromMillis(createdAt)
	return snap, nil
}
