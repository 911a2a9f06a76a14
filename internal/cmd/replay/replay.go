// Package replay projects a chat's journal offline: it folds committed
// events into narrative state, or lists them, without touching a model.
package replay

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/storyweft/storyweft/internal/platform/cmd"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
	"github.com/storyweft/storyweft/internal/services/tracker/journal"
	"github.com/storyweft/storyweft/internal/services/tracker/storage"
	"github.com/storyweft/storyweft/internal/services/tracker/storage/filter"
	"github.com/storyweft/storyweft/internal/services/tracker/storage/sqlite"
)

// eventPageSize bounds events fetched per store round-trip when listing.
const eventPageSize = 200

// Config holds replay command configuration.
type Config struct {
	DBPath string `env:"STORYWEFT_DB_PATH" envDefault:"storyweft.db"`

	ChatID       string
	MessageID    int64
	SwipeDefault int64
	Swipes       swipeFlag
	Filter       string
	Events       bool
}

// swipeFlag accumulates repeated -swipe message=swipe selections.
type swipeFlag struct {
	selections map[int64]int64
}

func (f *swipeFlag) String() string {
	if len(f.selections) == 0 {
		return ""
	}
	parts := make([]string, 0, len(f.selections))
	for messageID, swipeID := range f.selections {
		parts = append(parts, fmt.Sprintf("%d=%d", messageID, swipeID))
	}
	return strings.Join(parts, ",")
}

// Set parses one message=swipe pair.
func (f *swipeFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("swipe %q is not message=swipe", value)
	}
	messageID, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return fmt.Errorf("swipe message %q is not a number", parts[0])
	}
	swipeID, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return fmt.Errorf("swipe id %q is not a number", parts[1])
	}
	if f.selections == nil {
		f.selections = make(map[int64]int64)
	}
	f.selections[messageID] = swipeID
	return nil
}

// ParseConfig loads environment defaults and then parses flag overrides.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := cmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite database path")
	fs.StringVar(&cfg.ChatID, "chat", "", "chat id to replay (required)")
	fs.Int64Var(&cfg.MessageID, "message", -1, "project state at this message id (-1 for latest)")
	fs.Int64Var(&cfg.SwipeDefault, "swipe-default", 0, "swipe assumed for messages without a -swipe selection")
	fs.Var(&cfg.Swipes, "swipe", "active swipe as message=swipe (repeatable)")
	fs.StringVar(&cfg.Filter, "filter", "", "AIP-160 filter for -events listings")
	fs.BoolVar(&cfg.Events, "events", false, "list matching events as JSON lines instead of projecting state")
	if err := cmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the replay command against the configured database.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	return cmd.RunWithTelemetry(ctx, cmd.ServiceReplay, func(ctx context.Context) error {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store at %s: %w", cfg.DBPath, err)
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				log.Printf("close store: %v", closeErr)
			}
		}()
		return runWithStore(ctx, store, cfg, out)
	})
}

func runWithStore(ctx context.Context, store storage.Store, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	chatID := strings.TrimSpace(cfg.ChatID)
	if chatID == "" {
		return fmt.Errorf("chat id is required")
	}
	if cfg.Events {
		return listEvents(ctx, store, chatID, cfg.Filter, out)
	}
	swipes := event.SwipeContext{Swipes: cfg.Swipes.selections, Default: cfg.SwipeDefault}
	return projectState(ctx, store, chatID, cfg.MessageID, swipes, out)
}

// statePayload is the projection as printed.
type statePayload struct {
	ChatID      string                `json:"chat_id"`
	AtMessageID int64                 `json:"at_message_id"`
	LastSeq     uint64                `json:"last_seq"`
	State       *state.NarrativeState `json:"state"`
}

func projectState(ctx context.Context, store storage.Store, chatID string, messageID int64, swipes event.SwipeContext, out io.Writer) error {
	j, err := journal.New(store, chatID, journal.Options{})
	if err != nil {
		return err
	}
	if messageID < 0 {
		latest, ok, err := j.LatestMessageID(ctx)
		if err != nil {
			return fmt.Errorf("resolve latest message: %w", err)
		}
		if !ok {
			latest = 0
		}
		messageID = latest
	}
	proj, err := j.ProjectStateAt(ctx, messageID, swipes)
	if err != nil {
		return fmt.Errorf("project state: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(statePayload{
		ChatID:      chatID,
		AtMessageID: proj.AtMessageID,
		LastSeq:     proj.LastSeq,
		State:       proj.State,
	})
}

// eventLine is one committed event as printed, one JSON object per line.
type eventLine struct {
	Seq       uint64          `json:"seq"`
	Subkind   string          `json:"subkind"`
	MessageID int64           `json:"message_id"`
	SwipeID   int64           `json:"swipe_id"`
	Timestamp string          `json:"ts,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

func listEvents(ctx context.Context, store storage.Store, chatID, filterExpr string, out io.Writer) error {
	req := storage.ListEventsPageRequest{ChatID: chatID, PageSize: eventPageSize}
	if strings.TrimSpace(filterExpr) != "" {
		cond, err := filter.ParseEventFilter(filterExpr)
		if err != nil {
			return fmt.Errorf("parse filter: %w", err)
		}
		req.FilterClause = cond.Clause
		req.FilterParams = cond.Params
	}

	enc := json.NewEncoder(out)
	for {
		page, err := store.ListEventsPage(ctx, req)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		for _, evt := range page.Events {
			line := eventLine{
				Seq:       evt.Seq,
				Subkind:   string(evt.Subkind),
				MessageID: evt.MessageID,
				SwipeID:   evt.SwipeID,
				Payload:   json.RawMessage(evt.PayloadJSON),
			}
			if !evt.Timestamp.IsZero() {
				line.Timestamp = evt.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00")
			}
			if err := enc.Encode(line); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
		}
		if !page.HasNextPage || len(page.Events) == 0 {
			return nil
		}
		req.CursorSeq = page.Events[len(page.Events)-1].Seq
	}
}
