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

// PutChat upserts a chat record.
func (s *Store) PutChat(ctx context.Context, record storage.ChatRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("chat id is required")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO chats (id, title, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    title = excluded.title,
    updated_at = excluded.updated_at
`,
		strings.TrimSpace(record.ID),
		record.Title,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put chat: %w", err)
	}
	return nil
}

// GetChat retrieves a chat record by id.
func (s *Store) GetChat(ctx context.Context, chatID string) (storage.ChatRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ChatRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ChatRecord{}, fmt.Errorf("storage is not configured")
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return storage.ChatRecord{}, fmt.Errorf("chat id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, title, created_at, updated_at
FROM chats
WHERE id = ?
`, chatID)

	var (
		record    storage.ChatRecord
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&record.ID, &record.Title, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ChatRecord{}, storage.ErrNotFound
		}
		return storage.ChatRecord{}, fmt.Errorf("get chat: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
