package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/storyweft/storyweft/internal/services/tracker/storage"
)

func TestPutChatUpserts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutChat(ctx, storage.ChatRecord{ID: "chat-1", Title: "Harbor Story"}); err != nil {
		t.Fatalf("put chat: %v", err)
	}

	got, err := store.GetChat(ctx, "chat-1")
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if got.Title != "Harbor Story" {
		t.Fatalf("title = %q, want %q", got.Title, "Harbor Story")
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}

	if err := store.PutChat(ctx, storage.ChatRecord{ID: "chat-1", Title: "Harbor Story, Revised"}); err != nil {
		t.Fatalf("put chat again: %v", err)
	}
	got, err = store.GetChat(ctx, "chat-1")
	if err != nil {
		t.Fatalf("get chat after update: %v", err)
	}
	if got.Title != "Harbor Story, Revised" {
		t.Fatalf("title = %q, want updated title", got.Title)
	}
}

func TestGetChatMissing(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.GetChat(context.Background(), "chat-missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestPutChatRequiresID(t *testing.T) {
	store := openTestStore(t)

	if err := store.PutChat(context.Background(), storage.ChatRecord{Title: "untitled"}); err == nil {
		t.Fatal("expected error for missing chat id")
	}
}
