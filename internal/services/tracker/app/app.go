// Package app wires one Storyweft instance: persistence, generation,
// extractors, and per-chat orchestration behind the facade the MCP
// service and CLIs call.
package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/storyweft/storyweft/internal/platform/errors"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/names"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/orchestrate"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/projection"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
	"github.com/storyweft/storyweft/internal/services/tracker/extractors"
	"github.com/storyweft/storyweft/internal/services/tracker/generate"
	"github.com/storyweft/storyweft/internal/services/tracker/journal"
	"github.com/storyweft/storyweft/internal/services/tracker/settings"
	"github.com/storyweft/storyweft/internal/services/tracker/storage"
	"github.com/storyweft/storyweft/internal/services/tracker/storage/filter"
)

// telemetryTimeout bounds the detached telemetry write after a turn.
const telemetryTimeout = 5 * time.Second

type invocationKey struct{}

// WithInvocation tags ctx with the host's tool invocation id. Turn
// telemetry picks it up so audit rows can be joined back to the
// originating tool call.
func WithInvocation(ctx context.Context, invocationID string) context.Context {
	return context.WithValue(ctx, invocationKey{}, invocationID)
}

func invocationFromContext(ctx context.Context) (string, bool) {
	invocationID, ok := ctx.Value(invocationKey{}).(string)
	return invocationID, ok && invocationID != ""
}

// Deps are the externally supplied collaborators.
type Deps struct {
	// Store persists chats, events, snapshots, and telemetry.
	Store storage.Store
	// Settings is the full tracker configuration.
	Settings *settings.Settings
	// Generator produces model responses.
	Generator generate.Generator
	// Disambiguator answers unresolved-name questions. Nil means nobody is
	// asked and unresolved names simply surface in turn reports.
	Disambiguator names.Disambiguator
}

// Service is the tracker facade. One Service serves many chats; per-chat
// journals and orchestrators are created on first use and reused for the
// process lifetime.
type Service struct {
	store    storage.Store
	settings *settings.Settings
	generate *generate.Service
	resolver *names.Resolver
	now      func() time.Time

	mu    sync.Mutex
	chats map[string]*chatRuntime
}

// chatRuntime is one chat's machinery. Extractor cadence state lives in
// the orchestrator's registry, so runtimes must survive across turns.
type chatRuntime struct {
	journal *journal.Journal
	orch    *orchestrate.Orchestrator
}

// New wires a Service. The generation result cache and backoff tracker
// are built once here and shared by every chat; the name resolver's
// asked-questions memory is likewise process-wide.
func New(deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "store is required")
	}
	if deps.Settings == nil {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "settings are required")
	}
	if deps.Generator == nil {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "generator is required")
	}
	cfg := deps.Settings
	svc := generate.NewService(
		deps.Generator,
		generate.NewResultCache(cfg.CacheMaxAge),
		generate.NewBackoff(cfg.FailureThreshold, cfg.CooldownBase, cfg.CooldownMax),
		generate.Options{MaxRetries: cfg.MaxRetries, RetryTemperature: cfg.RetryTemperature},
	)
	return &Service{
		store:    deps.Store,
		settings: cfg,
		generate: svc,
		resolver: names.NewResolver(deps.Disambiguator),
		now:      time.Now,
		chats:    make(map[string]*chatRuntime),
	}, nil
}

// SetNow overrides the service clock and every runtime built after the
// call. Test hook.
func (s *Service) SetNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Close releases the store.
func (s *Service) Close() error {
	return s.store.Close()
}

func (s *Service) runtime(chatID string) (*chatRuntime, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, apperrors.New(apperrors.CodeChatEmptyID, "chat id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.chats[chatID]; ok {
		return rt, nil
	}
	j, err := journal.New(s.store, chatID, journal.Options{
		SnapshotEveryMessages: s.settings.SnapshotEveryMessages,
	})
	if err != nil {
		return nil, err
	}
	j.SetNow(s.now)
	orch, err := orchestrate.New(orchestrate.Deps{
		Store:    j,
		Resolver: s.resolver,
		Gate:     s.settings,
		Prompts:  s.settings,
	}, orchestrate.Options{
		MaxConcurrentRequests:    s.settings.MaxConcurrentRequests,
		MaxMessagesToSend:        s.settings.MaxMessagesToSend,
		MaxChapterMessagesToSend: s.settings.MaxChapterMessagesToSend,
	})
	if err != nil {
		return nil, err
	}
	orch.SetNow(s.now)
	for _, e := range extractors.All(extractors.Deps{Service: s.generate, Prompts: s.settings}) {
		orch.Register(e)
	}
	rt := &chatRuntime{journal: j, orch: orch}
	s.chats[chatID] = rt
	return rt, nil
}

// BindChat registers the chat, guaranteeing its record and initial
// snapshot exist. An existing record keeps its creation time, and its
// stored title changes only when the caller supplies a non-empty one.
func (s *Service) BindChat(ctx context.Context, chatID, title string) (storage.ChatRecord, error) {
	rt, err := s.runtime(chatID)
	if err != nil {
		return storage.ChatRecord{}, err
	}
	id := rt.journal.ChatID()

	record := storage.ChatRecord{ID: id, Title: strings.TrimSpace(title)}
	existing, err := s.store.GetChat(ctx, id)
	switch {
	case err == nil:
		record.CreatedAt = existing.CreatedAt
		if record.Title == "" {
			record.Title = existing.Title
		}
	case !errors.Is(err, storage.ErrNotFound):
		return storage.ChatRecord{}, err
	}
	if err := s.store.PutChat(ctx, record); err != nil {
		return storage.ChatRecord{}, err
	}
	if err := rt.journal.EnsureInitialSnapshot(ctx); err != nil {
		return storage.ChatRecord{}, err
	}
	return s.store.GetChat(ctx, id)
}

// Chat returns the stored chat record.
func (s *Service) Chat(ctx context.Context, chatID string) (storage.ChatRecord, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return storage.ChatRecord{}, apperrors.New(apperrors.CodeChatEmptyID, "chat id is required")
	}
	return s.store.GetChat(ctx, chatID)
}

// RecordTurn executes one orchestrator turn and persists its telemetry.
// The report comes back even when individual units failed; only input
// validation, projection, or append failures surface as errors.
func (s *Service) RecordTurn(ctx context.Context, input orchestrate.TurnInput) (orchestrate.TurnReport, error) {
	rt, err := s.runtime(input.ChatID)
	if err != nil {
		return orchestrate.TurnReport{}, err
	}
	report, err := rt.orch.ExecuteTurn(ctx, input)
	s.recordTurnTelemetry(ctx, input, report, err)
	return report, err
}

// recordTurnTelemetry writes one audit row per executed turn. The write is
// detached from the caller's cancellation: a host hanging up after the
// append must not lose the row. Failures are logged, never returned.
func (s *Service) recordTurnTelemetry(ctx context.Context, input orchestrate.TurnInput, report orchestrate.TurnReport, turnErr error) {
	severity := "INFO"
	switch {
	case turnErr != nil || report.Aborted:
		severity = "ERROR"
	case len(report.Errors) > 0 || len(report.Unresolved) > 0:
		severity = "WARN"
	}
	attrs := map[string]any{
		"events": len(report.Events),
		"ran":    report.Ran,
	}
	if report.FirstSeq > 0 {
		attrs["first_seq"] = report.FirstSeq
	}
	if len(report.Errors) > 0 {
		units := make([]string, 0, len(report.Errors))
		for _, ue := range report.Errors {
			units = append(units, ue.Qualified())
		}
		attrs["failed_units"] = units
	}
	if len(report.Unresolved) > 0 {
		attrs["unresolved"] = report.Unresolved
	}
	if report.Aborted {
		attrs["aborted"] = true
	}
	if turnErr != nil {
		attrs["error"] = turnErr.Error()
	}
	if invocationID, ok := invocationFromContext(ctx); ok {
		attrs["invocation_id"] = invocationID
	}
	record := storage.TurnTelemetry{
		Timestamp:  s.now().UTC(),
		EventName:  "tracker.turn",
		Severity:   severity,
		ChatID:     strings.TrimSpace(input.ChatID),
		MessageID:  input.MessageID,
		SwipeID:    input.SwipeID,
		Attributes: attrs,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		record.TraceID = sc.TraceID().String()
		record.SpanID = sc.SpanID().String()
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryTimeout)
	defer cancel()
	if err := s.store.AppendTurnTelemetry(writeCtx, record); err != nil {
		log.Printf("turn telemetry append failed for chat %s: %v", record.ChatID, err)
	}
}

// StateAt projects the chat's state at messageID under the given swipe
// context. A negative messageID means the latest message with any stored
// event; an empty journal projects the initial snapshot.
func (s *Service) StateAt(ctx context.Context, chatID string, messageID int64, swipes event.SwipeContext) (projection.Projection, error) {
	rt, err := s.runtime(chatID)
	if err != nil {
		return projection.Projection{}, err
	}
	if messageID < 0 {
		latest, ok, err := rt.journal.LatestMessageID(ctx)
		if err != nil {
			return projection.Projection{}, err
		}
		if !ok {
			latest = 0
		}
		messageID = latest
	}
	return rt.journal.ProjectStateAt(ctx, messageID, swipes)
}

// Chapters returns the chat's chapters at messageID (latest when
// negative), oldest first. The last chapter may still be open.
func (s *Service) Chapters(ctx context.Context, chatID string, messageID int64, swipes event.SwipeContext) ([]state.Chapter, error) {
	proj, err := s.StateAt(ctx, chatID, messageID, swipes)
	if err != nil {
		return nil, err
	}
	return proj.State.Chapters, nil
}

// EventQuery selects one page of committed events.
type EventQuery struct {
	ChatID    string
	PageSize  int
	CursorSeq uint64
	// Descending pages newest first.
	Descending bool
	// Filter is an optional AIP-160 expression over kind, subkind,
	// message_id, swipe_id, and ts.
	Filter string
}

// ListEvents pages through the chat's committed events in sequence order.
func (s *Service) ListEvents(ctx context.Context, q EventQuery) (storage.ListEventsPageResult, error) {
	chatID := strings.TrimSpace(q.ChatID)
	if chatID == "" {
		return storage.ListEventsPageResult{}, apperrors.New(apperrors.CodeChatEmptyID, "chat id is required")
	}
	req := storage.ListEventsPageRequest{
		ChatID:     chatID,
		PageSize:   q.PageSize,
		CursorSeq:  q.CursorSeq,
		Descending: q.Descending,
	}
	if strings.TrimSpace(q.Filter) != "" {
		cond, err := filter.ParseEventFilter(q.Filter)
		if err != nil {
			return storage.ListEventsPageResult{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "parse event filter", err)
		}
		req.FilterClause = cond.Clause
		req.FilterParams = cond.Params
	}
	return s.store.ListEventsPage(ctx, req)
}

// ReplaceInitialSnapshot swaps the chat's authored starting state and
// drops every checkpoint derived from the old one.
func (s *Service) ReplaceInitialSnapshot(ctx context.Context, chatID string, st *state.NarrativeState) error {
	rt, err := s.runtime(chatID)
	if err != nil {
		return err
	}
	return rt.journal.ReplaceInitialSnapshot(ctx, st)
}

// ConfirmNames applies user-confirmed alias mappings against the state at
// messageID. Each confirmed resolution appends one aka_added event;
// resolutions with an empty target are dismissals and append nothing. The
// returned events carry their assigned sequence numbers.
func (s *Service) ConfirmNames(ctx context.Context, chatID string, messageID, swipeID int64, swipes event.SwipeContext, confirmed []names.Resolution) ([]event.Event, error) {
	rt, err := s.runtime(chatID)
	if err != nil {
		return nil, err
	}
	if len(confirmed) == 0 {
		return nil, nil
	}
	proj, err := rt.journal.ProjectStateAt(ctx, messageID, swipes)
	if err != nil {
		return nil, err
	}
	lookup := names.BuildLookup(proj.State)
	events, err := names.ApplyResolutions(lookup, confirmed, rt.journal.ChatID(), messageID, swipeID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	first, err := rt.journal.AppendTurn(ctx, swipes, events)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Seq = first + uint64(i)
	}
	return events, nil
}
