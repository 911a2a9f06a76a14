package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker.sqlite")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func testEvent(t *testing.T, chatID string, messageID, swipeID int64, p event.Payload) event.Event {
	t.Helper()
	evt, err := event.New(chatID, messageID, swipeID, time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC), p)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return evt
}
