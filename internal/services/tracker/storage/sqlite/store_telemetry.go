package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/storyweft/storyweft/internal/services/tracker/storage"
)

// AppendTurnTelemetry records an operational turn observation.
func (s *Store) AppendTurnTelemetry(ctx context.Context, record storage.TurnTelemetry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	switch {
	case strings.TrimSpace(record.EventName) == "":
		return fmt.Errorf("event name is required")
	case strings.TrimSpace(record.Severity) == "":
		return fmt.Errorf("severity is required")
	}
	ts := record.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	attrs := record.AttributesJSON
	if len(attrs) == 0 && len(record.Attributes) > 0 {
		encoded, err := json.Marshal(record.Attributes)
		if err != nil {
			return fmt.Errorf("marshal telemetry attributes: %w", err)
		}
		attrs = encoded
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO turn_telemetry (timestamp, event_name, severity, chat_id, message_id, swipe_id, trace_id, span_id, attributes_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		toMillis(ts),
		record.EventName,
		record.Severity,
		nullable(record.ChatID),
		record.MessageID,
		record.SwipeID,
		nullable(record.TraceID),
		nullable(record.SpanID),
		attrs,
	)
	if err != nil {
		return fmt.Errorf("append turn telemetry: %w", err)
	}
	return nil
}

// nullable maps blank strings to SQL NULL so optional columns stay null
// instead of holding empty text.
func nullable(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
