package sqlite

import (
	"context"
	"testing"

	"github.com/storyweft/storyweft/internal/services/tracker/storage"
)

func TestAppendTurnTelemetry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.AppendTurnTelemetry(ctx, storage.TurnTelemetry{
		EventName: "turn.completed",
		Severity:  "info",
		ChatID:    "chat-1",
		MessageID: 3,
		SwipeID:   0,
		Attributes: map[string]any{
			"events_appended": 4,
			"failed_units":    0,
		},
	})
	if err != nil {
		t.Fatalf("append telemetry: %v", err)
	}

	var (
		count          int
		attributesJSON []byte
	)
	row := store.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*), MAX(attributes_json) FROM turn_telemetry WHERE chat_id = ?
`, "chat-1")
	if err := row.Scan(&count, &attributesJSON); err != nil {
		t.Fatalf("scan telemetry: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	if len(attributesJSON) == 0 {
		t.Fatal("expected attributes to be marshaled")
	}
}

func TestAppendTurnTelemetryValidates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.AppendTurnTelemetry(ctx, storage.TurnTelemetry{Severity: "info"}); err == nil {
		t.Fatal("expected error for missing event name")
	}
	if err := store.AppendTurnTelemetry(ctx, storage.TurnTelemetry{EventName: "turn.completed"}); err == nil {
		t.Fatal("expected error for missing severity")
	}
}
