package orchestrate

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/storyweft/storyweft/internal/platform/errors"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/extract"
	"github.com/storyweft/storyweft/internal/services/tracker/settings"
)

// turnRun is one turn's mutable bookkeeping. Only the orchestrating
// goroutine touches it; worker goroutines report through positional result
// slices instead.
type turnRun struct {
	turn     *extract.TurnContext
	history  historyView
	produced map[string]bool
	errors   []UnitError
	ran      []string
}

func (r *turnRun) add(name string, events []event.Event) {
	if len(events) == 0 {
		return
	}
	r.turn.TurnEvents = append(r.turn.TurnEvents, events...)
	r.produced[name] = true
}

func (r *turnRun) fail(ctx context.Context, extractor, target string, err error) {
	unit := UnitError{Extractor: extractor, Target: target, Err: err}
	r.errors = append(r.errors, unit)
	count(ctx, metricUnitFailures, r.turn.ChatID)
	log.Printf("extractor %s failed: %v", unit.Qualified(), err)
}

func (o *Orchestrator) runPhase(ctx context.Context, phase extract.Phase, run *turnRun) {
	extractors := o.extractors[phase]
	if len(extractors) == 0 {
		return
	}
	ctx, span := startPhaseSpan(ctx, run.turn.ChatID, string(phase))
	defer span.End()

	for _, e := range extractors {
		if ctx.Err() != nil {
			return
		}
		rc := extract.RunContext{
			MessageID: run.turn.MessageID,
			State:     o.registry.State(e.Name()),
		}
		if !extract.ShouldRun(e, o.gate, rc) {
			continue
		}
		o.runExtractor(ctx, e, run)
	}
}

func (o *Orchestrator) runExtractor(ctx context.Context, e extract.Extractor, run *turnRun) {
	name := e.Name()
	run.ran = append(run.ran, name)

	window, err := o.resolveWindow(ctx, e, run)
	if err != nil {
		run.fail(ctx, name, "", apperrors.Wrap(apperrors.CodeExtractorFailure, "resolve window", err))
		return
	}
	inv := extract.Invocation{Turn: run.turn, Window: window}

	switch ex := e.(type) {
	case extract.TargetExtractor:
		o.runTargets(ctx, ex, inv, run)
	case extract.GlobalExtractor:
		events, err := o.callGlobal(ctx, run.turn.ChatID, ex, inv)
		if err != nil {
			run.fail(ctx, name, "", err)
			return
		}
		run.add(name, events)
	default:
		run.fail(ctx, name, "", apperrors.New(apperrors.CodeExtractorFailure, "extractor implements no run interface"))
	}
}

// resolveWindow applies the extractor's window strategy to the transcript,
// then the category's hard cap.
func (o *Orchestrator) resolveWindow(ctx context.Context, e extract.Extractor, run *turnRun) ([]extract.Message, error) {
	var window extract.Window
	if ws := e.Window(); ws != nil {
		var err error
		window, err = ws.Resolve(ctx, run.history, run.turn.MessageID)
		if err != nil {
			return nil, err
		}
	}
	limit := o.opts.MaxMessagesToSend
	if e.Category() == settings.CategoryChapters {
		limit = o.opts.MaxChapterMessagesToSend
	}
	return window.Apply(run.turn.Transcript, limit), nil
}

func (o *Orchestrator) runTargets(ctx context.Context, e extract.TargetExtractor, inv extract.Invocation, run *turnRun) {
	targets, err := o.resolveTargets(e, run.turn)
	if err != nil {
		run.fail(ctx, e.Name(), "", err)
		return
	}
	if len(targets) == 0 {
		return
	}
	if batch, ok := e.(extract.BatchExtractor); ok && o.useBatch(e.Name(), len(targets)) {
		if o.runBatch(ctx, batch, inv, targets, run) {
			return
		}
		// Batch path failed; every target retries individually below.
	}
	o.fanOut(ctx, e, inv, targets, run)
}

// resolveTargets expands the extractor's scope against the effective state:
// the base projection plus whatever earlier phases emitted this turn.
func (o *Orchestrator) resolveTargets(e extract.TargetExtractor, turn *extract.TurnContext) ([]extract.Target, error) {
	effective, err := turn.Effective()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "fold turn events", err)
	}
	switch e.Scope() {
	case extract.ScopePerCharacter:
		present := effective.PresentCharacters()
		targets := make([]extract.Target, 0, len(present))
		for _, name := range present {
			targets = append(targets, extract.CharacterTarget(name))
		}
		return targets, nil
	case extract.ScopePerPair:
		pairs := turn.PairTargets
		if pairs == nil {
			pairs = effective.PresentPairs()
		}
		targets := make([]extract.Target, 0, len(pairs))
		for _, p := range pairs {
			targets = append(targets, extract.PairTarget(p[0], p[1]))
		}
		return targets, nil
	default:
		return nil, apperrors.New(apperrors.CodeExtractorFailure, fmt.Sprintf("unsupported extractor scope %q", e.Scope()))
	}
}

// useBatch gates the single-generation path. Custom prompt overrides are
// authored against the single-target schema, and a lone target gains
// nothing from batching.
func (o *Orchestrator) useBatch(name string, targetCount int) bool {
	if targetCount < 2 {
		return false
	}
	return o.prompts == nil || !o.prompts.HasCustomPrompt(name)
}

// runBatch attempts one generation for all targets. Any failure, including
// a result count that does not line up, reports false so the caller can
// fall back; batch failures are never unit errors.
func (o *Orchestrator) runBatch(ctx context.Context, e extract.BatchExtractor, inv extract.Invocation, targets []extract.Target, run *turnRun) bool {
	results, err := o.callBatch(ctx, run.turn.ChatID, e, inv, targets)
	if err == nil && len(results) != len(targets) {
		err = fmt.Errorf("batch returned %d results for %d targets", len(results), len(targets))
	}
	if err != nil {
		count(ctx, metricBatchFallbacks, run.turn.ChatID)
		log.Printf("extractor %s batch failed, retrying per target: %v", e.Name(), err)
		return false
	}
	for _, events := range results {
		run.add(e.Name(), events)
	}
	return true
}

// fanOut runs one generation per target with bounded parallelism. Results
// land by index so committed event order follows target order regardless
// of completion order.
func (o *Orchestrator) fanOut(ctx context.Context, e extract.TargetExtractor, inv extract.Invocation, targets []extract.Target, run *turnRun) {
	name := e.Name()
	chatID := run.turn.ChatID

	workers := o.opts.MaxConcurrentRequests
	if workers > len(targets) {
		workers = len(targets)
	}
	if workers <= 1 {
		for _, target := range targets {
			if ctx.Err() != nil {
				return
			}
			events, err := o.callTarget(ctx, chatID, e, inv, target)
			if err != nil {
				run.fail(ctx, name, target.String(), err)
				continue
			}
			run.add(name, events)
		}
		return
	}

	results := make([][]event.Event, len(targets))
	errs := make([]error, len(targets))
	var eg errgroup.Group
	eg.SetLimit(workers)
	dispatched := 0
	for i := range targets {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			results[i], errs[i] = o.callTarget(ctx, chatID, e, inv, targets[i])
			return nil
		})
		dispatched++
	}
	// Unit errors land in errs; the group itself never fails.
	_ = eg.Wait()

	for i := 0; i < dispatched; i++ {
		if errs[i] != nil {
			run.fail(ctx, name, targets[i].String(), errs[i])
			continue
		}
		run.add(name, results[i])
	}
}

// callGlobal, callTarget, and callBatch wrap the extractor interfaces with
// a unit span and a panic guard, so one misbehaving extractor cannot take
// down the turn.

func (o *Orchestrator) callGlobal(ctx context.Context, chatID string, e extract.GlobalExtractor, inv extract.Invocation) (events []event.Event, err error) {
	ctx, span := startUnitSpan(ctx, chatID, e.Name())
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			events = nil
			err = apperrors.New(apperrors.CodeExtractorFailure, fmt.Sprintf("extractor %s panicked: %v", e.Name(), r))
		}
	}()
	return e.Run(ctx, inv)
}

func (o *Orchestrator) callTarget(ctx context.Context, chatID string, e extract.TargetExtractor, inv extract.Invocation, target extract.Target) (events []event.Event, err error) {
	ctx, span := startUnitSpan(ctx, chatID, e.Name()+":"+target.String())
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			events = nil
			err = apperrors.New(apperrors.CodeExtractorFailure, fmt.Sprintf("extractor %s panicked on %s: %v", e.Name(), target, r))
		}
	}()
	return e.RunTarget(ctx, inv, target)
}

func (o *Orchestrator) callBatch(ctx context.Context, chatID string, e extract.BatchExtractor, inv extract.Invocation, targets []extract.Target) (results [][]event.Event, err error) {
	ctx, span := startUnitSpan(ctx, chatID, e.Name()+":batch")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = apperrors.New(apperrors.CodeExtractorFailure, fmt.Sprintf("extractor %s batch panicked: %v", e.Name(), r))
		}
	}()
	return e.RunBatch(ctx, inv, targets)
}
