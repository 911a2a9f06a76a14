// Package extract defines the extractor contracts: what an extractor is,
// when it runs (cadence), how much transcript it sees (window), and the
// per-extractor run state that cadences consult. The orchestrate package
// drives these contracts; the extractors package provides the concrete
// implementations.
package extract

import (
	"context"
	"strings"
	"time"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/projection"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
	"github.com/storyweft/storyweft/internal/services/tracker/settings"
)

// Phase places an extractor in the fixed per-turn execution order. The
// order is load-bearing: per-character extractors must see the state after
// presence detection, and props runs after outfit changes so discarded
// clothing is visible as a candidate prop.
type Phase string

const (
	PhaseCore                 Phase = "core"
	PhaseCharacterPresence    Phase = "character_presence"
	PhasePerCharacter         Phase = "per_character"
	PhaseProps                Phase = "props"
	PhaseRelationshipSubjects Phase = "relationship_subjects"
	PhasePerPair              Phase = "per_pair"
	PhaseNarrative            Phase = "narrative"
	PhaseChapter              Phase = "chapter"
)

// Phases returns every phase in execution order.
func Phases() []Phase {
	return []Phase{
		PhaseCore,
		PhaseCharacterPresence,
		PhasePerCharacter,
		PhaseProps,
		PhaseRelationshipSubjects,
		PhasePerPair,
		PhaseNarrative,
		PhaseChapter,
	}
}

// Scope describes how an extractor fans out.
type Scope string

const (
	ScopeGlobal       Scope = "global"
	ScopePerCharacter Scope = "character"
	ScopePerPair      Scope = "pair"
)

// Target identifies one fan-out unit: a present character or a sorted pair.
type Target struct {
	Character string
	Pair      [2]string
}

// CharacterTarget builds a per-character target.
func CharacterTarget(name string) Target {
	return Target{Character: name}
}

// PairTarget builds a per-pair target with the names sorted.
func PairTarget(a, b string) Target {
	first, second := state.SortPair(a, b)
	return Target{Pair: [2]string{first, second}}
}

// String renders the target for qualified log lines and error reports.
func (t Target) String() string {
	if t.Character != "" {
		return t.Character
	}
	return t.Pair[0] + "|" + t.Pair[1]
}

// Message is one transcript entry supplied by the host, oldest first in a
// window.
type Message struct {
	ID     int64  `json:"message_id"`
	Role   string `json:"role"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

// FormatMessages renders a transcript window as "Author: text" lines for
// prompt templates.
func FormatMessages(msgs []Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		name := m.Author
		if name == "" {
			name = m.Role
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(m.Text)
	}
	return b.String()
}

// TurnContext carries everything extractors may read during one turn, plus
// the growing list of events earlier extractors produced.
type TurnContext struct {
	ChatID    string
	MessageID int64
	SwipeID   int64
	Swipes    event.SwipeContext
	Timestamp time.Time

	// Transcript is the full window the host supplied, oldest first.
	Transcript []Message

	// Base is the committed projection before this turn. Read-only.
	Base *state.NarrativeState

	// TurnEvents accumulates this turn's output in orchestration order.
	TurnEvents []event.Event

	// PairTargets optionally narrows per-pair fan-out; nil means every
	// present pair.
	PairTargets [][2]string
}

// Effective folds the turn's accumulated events over the base projection,
// giving later phases a view that includes earlier phases' output.
func (tc *TurnContext) Effective() (*state.NarrativeState, error) {
	if len(tc.TurnEvents) == 0 {
		return tc.Base, nil
	}
	return projection.Fold(tc.Base, tc.TurnEvents)
}

// NewEvent builds an event bound to this turn's chat, message, and swipe.
func (tc *TurnContext) NewEvent(p event.Payload) (event.Event, error) {
	return event.New(tc.ChatID, tc.MessageID, tc.SwipeID, tc.Timestamp, p)
}

// Invocation is one extractor activation: the turn context plus the
// transcript slice the extractor's window strategy selected.
type Invocation struct {
	Turn   *TurnContext
	Window []Message
}

// Extractor is the common surface every extractor implements.
type Extractor interface {
	Name() string
	Category() settings.Category
	Phase() Phase
	Cadence() RunStrategy
	Window() WindowStrategy
}

// GlobalExtractor runs once per turn.
type GlobalExtractor interface {
	Extractor
	Run(ctx context.Context, inv Invocation) ([]event.Event, error)
}

// TargetExtractor fans out over characters or pairs, one generation per
// target.
type TargetExtractor interface {
	Extractor
	Scope() Scope
	RunTarget(ctx context.Context, inv Invocation, target Target) ([]event.Event, error)
}

// BatchExtractor can answer every target in a single generation. Results
// are positional: element i holds target i's events.
type BatchExtractor interface {
	TargetExtractor
	RunBatch(ctx context.Context, inv Invocation, targets []Target) ([][]event.Event, error)
}

// CategoryGate reports whether a tracking category is enabled.
type CategoryGate interface {
	Enabled(c settings.Category) bool
}

// ShouldRun ANDs the extractor's category gate with its cadence. A disabled
// category never runs, even when the cadence fires.
func ShouldRun(e Extractor, gate CategoryGate, rc RunContext) bool {
	if gate != nil && !gate.Enabled(e.Category()) {
		return false
	}
	return Evaluate(e.Cadence(), rc)
}
