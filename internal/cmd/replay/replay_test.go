package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/journal"
	"github.com/storyweft/storyweft/internal/services/tracker/storage/memory"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "storyweft.db" {
		t.Fatalf("db path = %q, want storyweft.db", cfg.DBPath)
	}
	if cfg.MessageID != -1 {
		t.Fatalf("message id = %d, want -1", cfg.MessageID)
	}
	if cfg.Events {
		t.Fatal("events mode should default off")
	}
}

func TestParseConfigFlags(t *testing.T) {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{
		"-db", "replay.db",
		"-chat", "chat-1",
		"-message", "12",
		"-swipe-default", "1",
		"-swipe", "3=2",
		"-swipe", "5=1",
		"-filter", `subkind = "scene.time_changed"`,
		"-events",
	})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.ChatID != "chat-1" {
		t.Fatalf("chat id = %q, want chat-1", cfg.ChatID)
	}
	if cfg.MessageID != 12 {
		t.Fatalf("message id = %d, want 12", cfg.MessageID)
	}
	if cfg.SwipeDefault != 1 {
		t.Fatalf("swipe default = %d, want 1", cfg.SwipeDefault)
	}
	if got := len(cfg.Swipes.selections); got != 2 {
		t.Fatalf("swipe selections = %d, want 2", got)
	}
	if cfg.Swipes.selections[3] != 2 || cfg.Swipes.selections[5] != 1 {
		t.Fatalf("swipe selections = %v, want 3=2 and 5=1", cfg.Swipes.selections)
	}
	if !cfg.Events {
		t.Fatal("events mode should be on")
	}
	if cfg.Filter == "" {
		t.Fatal("filter should be set")
	}
}

func TestSwipeFlagRejectsBadInput(t *testing.T) {
	cases := []string{"3", "a=1", "1=b", "="}
	for _, input := range cases {
		var f swipeFlag
		if err := f.Set(input); err == nil {
			t.Fatalf("Set(%q) should fail", input)
		}
	}
}

// seedJournal appends one time change per message so projections have
// something to fold.
func seedJournal(t *testing.T, store *memory.Store, chatID string, times map[int64]string) {
	t.Helper()
	ctx := context.Background()
	j, err := journal.New(store, chatID, journal.Options{})
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	messages := make([]int64, 0, len(times))
	for messageID := range times {
		messages = append(messages, messageID)
	}
	sort.Slice(messages, func(i, k int) bool { return messages[i] < messages[k] })
	for _, messageID := range messages {
		evt := event.MustNew(chatID, messageID, 0, at, event.TimeChangedPayload{Time: times[messageID]})
		if _, err := j.AppendTurn(ctx, event.SwipeContext{}, []event.Event{evt}); err != nil {
			t.Fatalf("append turn: %v", err)
		}
	}
}

func TestRunWithStoreProjectsState(t *testing.T) {
	store := memory.New()
	seedJournal(t, store, "chat-1", map[int64]string{3: "evening", 7: "midnight"})

	var out bytes.Buffer
	cfg := Config{ChatID: "chat-1", MessageID: -1}
	if err := runWithStore(context.Background(), store, cfg, &out); err != nil {
		t.Fatalf("replay: %v", err)
	}

	var got statePayload
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got.ChatID != "chat-1" {
		t.Fatalf("chat id = %q, want chat-1", got.ChatID)
	}
	if got.AtMessageID != 7 {
		t.Fatalf("at message id = %d, want 7", got.AtMessageID)
	}
	if got.LastSeq != 2 {
		t.Fatalf("last seq = %d, want 2", got.LastSeq)
	}
	if got.State == nil || got.State.Time != "midnight" {
		t.Fatalf("state = %+v, want time midnight", got.State)
	}
}

func TestRunWithStoreProjectsAtMessage(t *testing.T) {
	store := memory.New()
	seedJournal(t, store, "chat-1", map[int64]string{3: "evening", 7: "midnight"})

	var out bytes.Buffer
	cfg := Config{ChatID: "chat-1", MessageID: 3}
	if err := runWithStore(context.Background(), store, cfg, &out); err != nil {
		t.Fatalf("replay: %v", err)
	}

	var got statePayload
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got.AtMessageID != 3 {
		t.Fatalf("at message id = %d, want 3", got.AtMessageID)
	}
	if got.State == nil || got.State.Time != "evening" {
		t.Fatalf("state = %+v, want time evening", got.State)
	}
}

func TestRunWithStoreListsEvents(t *testing.T) {
	store := memory.New()
	seedJournal(t, store, "chat-1", map[int64]string{3: "evening", 7: "midnight"})

	var out bytes.Buffer
	cfg := Config{ChatID: "chat-1", Events: true}
	if err := runWithStore(context.Background(), store, cfg, &out); err != nil {
		t.Fatalf("replay: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2: %q", len(lines), out.String())
	}
	for i, want := range []struct {
		seq       uint64
		messageID int64
	}{{1, 3}, {2, 7}} {
		var line eventLine
		if err := json.Unmarshal([]byte(lines[i]), &line); err != nil {
			t.Fatalf("decode line %d: %v", i, err)
		}
		if line.Seq != want.seq {
			t.Fatalf("line %d seq = %d, want %d", i, line.Seq, want.seq)
		}
		if line.MessageID != want.messageID {
			t.Fatalf("line %d message id = %d, want %d", i, line.MessageID, want.messageID)
		}
		if line.Subkind != string(event.SubkindTimeChanged) {
			t.Fatalf("line %d subkind = %q, want %q", i, line.Subkind, event.SubkindTimeChanged)
		}
		if len(line.Payload) == 0 {
			t.Fatalf("line %d payload is empty", i)
		}
	}
}

func TestRunWithStoreRejectsBadFilter(t *testing.T) {
	store := memory.New()
	cfg := Config{ChatID: "chat-1", Events: true, Filter: "subkind ="}
	err := runWithStore(context.Background(), store, cfg, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected filter parse error")
	}
	if !strings.Contains(err.Error(), "parse filter") {
		t.Fatalf("error = %v, want parse filter failure", err)
	}
}

func TestRunWithStoreRequiresChat(t *testing.T) {
	store := memory.New()
	for _, chatID := range []string{"", "   "} {
		cfg := Config{ChatID: chatID}
		if err := runWithStore(context.Background(), store, cfg, &bytes.Buffer{}); err == nil {
			t.Fatalf("chat id %q should fail", chatID)
		}
	}
}
