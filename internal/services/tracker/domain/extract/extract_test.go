package extract

import (
	"testing"
	"time"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
	"github.com/storyweft/storyweft/internal/services/tracker/settings"
)

type fakeGate map[settings.Category]bool

func (g fakeGate) Enabled(c settings.Category) bool { return g[c] }

type fakeExtractor struct {
	name     string
	category settings.Category
	cadence  RunStrategy
}

func (f fakeExtractor) Name() string                { return f.name }
func (f fakeExtractor) Category() settings.Category { return f.category }
func (f fakeExtractor) Phase() Phase                { return PhaseCore }
func (f fakeExtractor) Cadence() RunStrategy        { return f.cadence }
func (f fakeExtractor) Window() WindowStrategy      { return FixedNumber{N: 4} }

func TestShouldRun(t *testing.T) {
	gate := fakeGate{settings.CategoryTime: true}
	enabled := fakeExtractor{name: "time", category: settings.CategoryTime, cadence: EveryNMessages{N: 2}}
	disabled := fakeExtractor{name: "secrets", category: settings.CategorySecrets, cadence: EveryMessage{}}

	if !ShouldRun(enabled, gate, RunContext{MessageID: 1}) {
		t.Error("ShouldRun(enabled, firing cadence) = false, want true")
	}
	if ShouldRun(enabled, gate, RunContext{MessageID: 2}) {
		t.Error("ShouldRun(enabled, idle cadence) = true, want false")
	}
	if ShouldRun(disabled, gate, RunContext{MessageID: 1}) {
		t.Error("ShouldRun(disabled category) = true, want false even when cadence fires")
	}
}

func TestPhasesOrder(t *testing.T) {
	want := []Phase{
		PhaseCore,
		PhaseCharacterPresence,
		PhasePerCharacter,
		PhaseProps,
		PhaseRelationshipSubjects,
		PhasePerPair,
		PhaseNarrative,
		PhaseChapter,
	}
	got := Phases()
	if len(got) != len(want) {
		t.Fatalf("Phases() length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Phases()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTargetString(t *testing.T) {
	if got := CharacterTarget("Luna").String(); got != "Luna" {
		t.Errorf("character target = %q, want Luna", got)
	}
	if got := PairTarget("Zoe", "Ana").String(); got != "Ana|Zoe" {
		t.Errorf("pair target = %q, want Ana|Zoe (sorted)", got)
	}
}

func TestFormatMessages(t *testing.T) {
	got := FormatMessages([]Message{
		{ID: 0, Author: "Luna", Text: "Hello."},
		{ID: 1, Role: "user", Text: "Hi there."},
	})
	want := "Luna: Hello.\nuser: Hi there."
	if got != want {
		t.Errorf("FormatMessages = %q, want %q", got, want)
	}
}

func TestTurnContextEffective(t *testing.T) {
	base := state.New()
	base.Character("Luna").Present = true

	tc := &TurnContext{
		ChatID:    "chat-1",
		MessageID: 4,
		Timestamp: time.UnixMilli(1000),
		Base:      base,
	}

	evt, err := tc.NewEvent(&event.MoodChangedPayload{Character: "Luna", Mood: "wary"})
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	if evt.ChatID != "chat-1" || evt.MessageID != 4 {
		t.Errorf("NewEvent binding = %s/%d, want chat-1/4", evt.ChatID, evt.MessageID)
	}
	tc.TurnEvents = append(tc.TurnEvents, evt)

	eff, err := tc.Effective()
	if err != nil {
		t.Fatalf("Effective() error = %v", err)
	}
	if eff.Characters["Luna"].Mood != "wary" {
		t.Errorf("effective mood = %q, want wary", eff.Characters["Luna"].Mood)
	}
	if base.Characters["Luna"].Mood != "" {
		t.Error("Effective() mutated the base projection")
	}
}

func TestTurnContextEffectiveNoEventsReturnsBase(t *testing.T) {
	base := state.New()
	tc := &TurnContext{Base: base}
	eff, err := tc.Effective()
	if err != nil {
		t.Fatalf("Effective() error = %v", err)
	}
	if eff != base {
		t.Error("Effective() with no events should return the base as-is")
	}
}
