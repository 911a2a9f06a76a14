// Package orchestrate drives one tracker turn end to end: phase-ordered
// extractor execution over the committed projection, bounded fan-out for
// per-character and per-pair work, name resolution, and the turn's single
// atomic append.
package orchestrate

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/storyweft/storyweft/internal/platform/errors"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/extract"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/names"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/projection"
)

// Store is the journal surface the orchestrator drives. Projection reads
// may happen concurrently; AppendTurn is called at most once per turn.
type Store interface {
	ProjectStateAt(ctx context.Context, messageID int64, swipes event.SwipeContext) (projection.Projection, error)
	AppendTurn(ctx context.Context, swipes event.SwipeContext, events []event.Event) (uint64, error)
	LastMessageOfKinds(ctx context.Context, swipes event.SwipeContext, untilMessageID int64, subkinds ...event.Subkind) (int64, bool, error)
}

// PromptSource reports which extractors carry custom prompt overrides.
// Overrides are authored for the single-target schema, so their presence
// disables the batch path.
type PromptSource interface {
	HasCustomPrompt(name string) bool
}

// Options are the orchestration tunables.
type Options struct {
	// MaxConcurrentRequests bounds fan-out parallelism. Values at or below
	// one run targets sequentially.
	MaxConcurrentRequests int
	// MaxMessagesToSend caps every extractor window.
	MaxMessagesToSend int
	// MaxChapterMessagesToSend caps the chapter category's window instead.
	MaxChapterMessagesToSend int
}

// Deps are the orchestrator's collaborators. Store is required; the rest
// degrade gracefully when absent.
type Deps struct {
	Store    Store
	Resolver *names.Resolver
	Registry *extract.Registry
	Gate     extract.CategoryGate
	Prompts  PromptSource
}

// Orchestrator executes tracker turns. Extractors are registered once at
// wiring time; per-phase registration order is execution order.
type Orchestrator struct {
	store      Store
	resolver   *names.Resolver
	registry   *extract.Registry
	gate       extract.CategoryGate
	prompts    PromptSource
	opts       Options
	extractors map[extract.Phase][]extract.Extractor
	now        func() time.Time
}

// New creates an orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "orchestrator store is required")
	}
	registry := deps.Registry
	if registry == nil {
		registry = extract.NewRegistry()
	}
	return &Orchestrator{
		store:      deps.Store,
		resolver:   deps.Resolver,
		registry:   registry,
		gate:       deps.Gate,
		prompts:    deps.Prompts,
		opts:       opts,
		extractors: make(map[extract.Phase][]extract.Extractor),
		now:        time.Now,
	}, nil
}

// Register adds an extractor to its phase. Registration order within a
// phase is execution order.
func (o *Orchestrator) Register(e extract.Extractor) {
	phase := e.Phase()
	o.extractors[phase] = append(o.extractors[phase], e)
}

// Registry exposes the run-state registry, for wiring and tests.
func (o *Orchestrator) Registry() *extract.Registry {
	return o.registry
}

// SetNow overrides the turn clock. Test hook.
func (o *Orchestrator) SetNow(now func() time.Time) {
	if now != nil {
		o.now = now
	}
}

// TurnInput is one host-supplied turn: the message being processed and the
// transcript window around it.
type TurnInput struct {
	ChatID    string
	MessageID int64
	SwipeID   int64
	// Swipes is the host's view of which swipe is active per message.
	Swipes event.SwipeContext
	// Transcript is the recent transcript window, oldest first.
	Transcript []extract.Message
	// Timestamp stamps the turn's events; zero means now.
	Timestamp time.Time
}

// UnitError is one failed extraction unit. Unit failures never abort
// sibling units or later phases.
type UnitError struct {
	Extractor string
	Target    string
	Err       error
}

// Qualified renders the unit as "extractor:target" for logs and reports.
func (u UnitError) Qualified() string {
	if u.Target == "" {
		return u.Extractor
	}
	return u.Extractor + ":" + u.Target
}

// TurnReport summarizes one executed turn.
type TurnReport struct {
	// Events are the committed events, in append order. Sequence numbers
	// run contiguously from FirstSeq.
	Events []event.Event
	// FirstSeq is the first assigned sequence number; zero when the turn
	// committed nothing.
	FirstSeq uint64
	// Errors lists failed units.
	Errors []UnitError
	// Unresolved lists character surface forms no resolution rule or
	// disambiguation could place.
	Unresolved []string
	// Ran lists the extractors whose cadence fired this turn.
	Ran []string
	// Aborted marks a cancelled turn; nothing was appended.
	Aborted bool
}

// ExecuteTurn runs every phase for one turn, resolves names, and appends
// the turn's events atomically. Cancellation at any checkpoint aborts the
// whole turn without appending. Unit failures are collected in the report
// and are not errors.
func (o *Orchestrator) ExecuteTurn(ctx context.Context, input TurnInput) (TurnReport, error) {
	chatID := strings.TrimSpace(input.ChatID)
	if chatID == "" {
		return TurnReport{}, apperrors.New(apperrors.CodeChatEmptyID, "chat id is required")
	}
	if input.MessageID < 0 {
		return TurnReport{}, apperrors.New(apperrors.CodeInvalidArgument, "message id must not be negative")
	}
	if len(input.Transcript) == 0 {
		return TurnReport{}, apperrors.New(apperrors.CodeTurnEmptyInput, "turn transcript is empty")
	}
	ts := input.Timestamp
	if ts.IsZero() {
		ts = o.now()
	}

	ctx, span := startTurnSpan(ctx, chatID, input.MessageID)
	defer span.End()
	count(ctx, metricTurns, chatID)

	// The base projection stops at the previous message: this turn's own
	// position may hold superseded events from another swipe.
	proj, err := o.store.ProjectStateAt(ctx, input.MessageID-1, input.Swipes)
	if err != nil {
		return TurnReport{}, apperrors.Wrap(apperrors.CodeInternal, "project base state", err)
	}

	turn := &extract.TurnContext{
		ChatID:     chatID,
		MessageID:  input.MessageID,
		SwipeID:    input.SwipeID,
		Swipes:     input.Swipes,
		Timestamp:  ts,
		Transcript: input.Transcript,
		Base:       proj.State,
	}
	run := &turnRun{
		turn:     turn,
		history:  historyView{store: o.store, swipes: input.Swipes},
		produced: make(map[string]bool),
	}

	for _, phase := range extract.Phases() {
		if err := ctx.Err(); err != nil {
			return o.abort(ctx, run, err)
		}
		o.runPhase(ctx, phase, run)
	}
	if err := ctx.Err(); err != nil {
		return o.abort(ctx, run, err)
	}

	events := turn.TurnEvents
	var unresolved []string
	if o.resolver != nil && len(events) > 0 {
		res, err := o.resolver.ResolveTurn(ctx, turn.Base, chatID, input.MessageID, input.SwipeID, ts, events)
		if err != nil && res.Events == nil {
			return TurnReport{}, apperrors.Wrap(apperrors.CodeInternal, "resolve names", err)
		}
		if err != nil {
			// Disambiguation failed but the pass itself is usable.
			run.fail(ctx, "names", "", apperrors.Wrap(apperrors.CodeUnresolvedName, "disambiguate names", err))
		}
		events = res.Events
		unresolved = res.Unresolved
	}
	if err := ctx.Err(); err != nil {
		return o.abort(ctx, run, err)
	}

	firstSeq, err := o.store.AppendTurn(ctx, input.Swipes, events)
	if err != nil {
		return TurnReport{
			Errors: run.errors,
			Ran:    run.ran,
		}, apperrors.Wrap(apperrors.CodeInternal, "append turn", err)
	}

	// Committed: only now does the turn count against extractor history.
	for _, name := range run.ran {
		o.registry.RecordRun(name, input.MessageID)
		if run.produced[name] {
			o.registry.RecordProduced(name, input.MessageID)
		}
	}

	return TurnReport{
		Events:     events,
		FirstSeq:   firstSeq,
		Errors:     run.errors,
		Unresolved: unresolved,
		Ran:        run.ran,
	}, nil
}

func (o *Orchestrator) abort(ctx context.Context, run *turnRun, cause error) (TurnReport, error) {
	count(ctx, metricTurnsAborted, run.turn.ChatID)
	return TurnReport{
		Errors:  run.errors,
		Ran:     run.ran,
		Aborted: true,
	}, apperrors.Wrap(apperrors.CodeAborted, "turn aborted", cause)
}

// historyView adapts the store to the window strategies' read contract
// under one swipe context.
type historyView struct {
	store  Store
	swipes event.SwipeContext
}

func (h historyView) LastMessageOfKinds(ctx context.Context, untilMessageID int64, subkinds ...event.Subkind) (int64, bool, error) {
	return h.store.LastMessageOfKinds(ctx, h.swipes, untilMessageID, subkinds...)
}
