package extractors

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/storyweft/storyweft/internal/platform/errors"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/extract"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
	"github.com/storyweft/storyweft/internal/services/tracker/generate"
	"github.com/storyweft/storyweft/internal/services/tracker/settings"
)

type stubGenerator struct {
	mu       sync.Mutex
	queue    []string
	err      error
	requests []generate.Request
}

func (g *stubGenerator) Generate(_ context.Context, req generate.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	if len(g.queue) == 0 {
		return "", errors.New("no canned response left")
	}
	raw := g.queue[0]
	g.queue = g.queue[1:]
	return raw, nil
}

func (g *stubGenerator) Profile() string { return "test-profile" }

func (g *stubGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func (g *stubGenerator) request(i int) generate.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[i]
}

type stubPrompts map[string]settings.PromptOverride

func (s stubPrompts) CustomPrompt(name string) (settings.PromptOverride, bool) {
	o, ok := s[name]
	return o, ok
}

func newTestDeps(responses ...string) (Deps, *stubGenerator) {
	gen := &stubGenerator{queue: responses}
	svc := generate.NewService(gen, generate.NewResultCache(time.Minute), generate.NewBackoff(3, time.Second, time.Minute), generate.Options{})
	return Deps{Service: svc}, gen
}

func testInvocation(st *state.NarrativeState) extract.Invocation {
	tc := &extract.TurnContext{
		ChatID:    "chat-1",
		MessageID: 7,
		Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Transcript: []extract.Message{
			{ID: 6, Role: "user", Author: "Alice", Text: "The rain is getting worse."},
			{ID: 7, Role: "assistant", Author: "Luna", Text: "Then we stay the night."},
		},
		Base: st,
	}
	return extract.Invocation{Turn: tc, Window: tc.Transcript}
}

func decodePayload(t *testing.T, evt event.Event) event.Payload {
	t.Helper()
	p, err := event.Decode(evt)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return p
}

func subkindList(events []event.Event) string {
	parts := make([]string, len(events))
	for i, e := range events {
		parts[i] = string(e.Subkind)
	}
	return strings.Join(parts, ",")
}

func TestTimeEmitsOnChange(t *testing.T) {
	deps, _ := newTestDeps(`{"changed": true, "time": "that evening"}`)
	st := state.New()
	st.Time = "early morning"

	events, err := NewTime(deps).Run(context.Background(), testInvocation(st))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	p := decodePayload(t, events[0]).(*event.TimeChangedPayload)
	if p.Time != "that evening" {
		t.Fatalf("time = %q, want %q", p.Time, "that evening")
	}
}

func TestTimeUnchangedEmitsNothing(t *testing.T) {
	deps, _ := newTestDeps(`{"changed": false, "time": ""}`)
	st := state.New()
	st.Time = "early morning"

	events, err := NewTime(deps).Run(context.Background(), testInvocation(st))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0", len(events))
	}
}

func TestTimeRepeatedValueSuppressed(t *testing.T) {
	deps, _ := newTestDeps(`{"changed": true, "time": "early morning"}`)
	st := state.New()
	st.Time = "early morning"

	events, err := NewTime(deps).Run(context.Background(), testInvocation(st))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0", len(events))
	}
}

func TestLocationToleratesCodeFences(t *testing.T) {
	deps, _ := newTestDeps("Here you go:\n```json\n{\"changed\": true, \"location\": \"the old mill\"}\n```")
	st := state.New()

	events, err := NewLocation(deps).Run(context.Background(), testInvocation(st))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	p := decodePayload(t, events[0]).(*event.LocationChangedPayload)
	if p.Location != "the old mill" {
		t.Fatalf("location = %q, want %q", p.Location, "the old mill")
	}
}

func TestPresenceFiltersKnownAndUnknown(t *testing.T) {
	deps, _ := newTestDeps(`{"appeared": ["Luna", "Cara"], "departed": ["Bob", "Ghost"]}`)
	st := state.New()
	st.Character("Luna").Present = true
	st.Character("Bob").Present = false

	events, err := NewPresence(deps).Run(context.Background(), testInvocation(st))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Luna is already present, Bob is not present, Ghost is untracked.
	if got := subkindList(events); got != "character.appeared" {
		t.Fatalf("subkinds = %q, want %q", got, "character.appeared")
	}
	p := decodePayload(t, events[0]).(*event.CharacterAppearedPayload)
	if p.Character != "Cara" {
		t.Fatalf("character = %q, want %q", p.Character, "Cara")
	}
}

func TestPresenceDeparture(t *testing.T) {
	deps, _ := newTestDeps(`{"appeared": [], "departed": ["Luna"]}`)
	st := state.New()
	st.Character("Luna").Present = true

	events, err := NewPresence(deps).Run(context.Background(), testInvocation(st))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := subkindList(events); got != "character.departed" {
		t.Fatalf("subkinds = %q, want %q", got, "character.departed")
	}
}

func TestNicknameFiltersAliases(t *testing.T) {
	deps, _ := newTestDeps(`[
		{"character": "Luna", "alias": "moon"},
		{"character": "Luna", "alias": "luna"},
		{"character": "Luna", "alias": "Starlight"},
		{"character": "Ghost", "alias": "G"}
	]`)
	st := state.New()
	luna := st.Character("Luna")
	luna.Present = true
	luna.AKAs = []string{"Moon"}

	events, err := NewNickname(deps).Run(context.Background(), testInvocation(st))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// "moon" is already recorded, "luna" is the character itself, Ghost is
	// untracked.
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	p := decodePayload(t, events[0]).(*event.AKAAddedPayload)
	if p.Character != "Luna" || p.Alias != "Starlight" {
		t.Fatalf("aka = %s/%s, want Luna/Starlight", p.Character, p.Alias)
	}
}

func TestMoodTargetEmitsChange(t *testing.T) {
	deps, _ := newTestDeps(`{"mood": "furious"}`)
	st := state.New()
	luna := st.Character("Luna")
	luna.Present = true
	luna.Mood = "calm"

	events, err := NewMood(deps).RunTarget(context.Background(), testInvocation(st), extract.CharacterTarget("Luna"))
	if err != nil {
		t.Fatalf("RunTarget: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	p := decodePayload(t, events[0]).(*event.MoodChangedPayload)
	if p.Character != "Luna" || p.Mood != "furious" {
		t.Fatalf("mood = %s/%s, want Luna/furious", p.Character, p.Mood)
	}
}

func TestMoodEmptyResponseMeansNoChange(t *testing.T) {
	deps, _ := newTestDeps(`{"mood": ""}`)
	st := state.New()
	st.Character("Luna").Mood = "calm"

	events, err := NewMood(deps).RunTarget(context.Background(), testInvocation(st), extract.CharacterTarget("Luna"))
	if err != nil {
		t.Fatalf("RunTarget: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0", len(events))
	}
}

func TestMoodBatchMatchesCaseInsensitive(t *testing.T) {
	deps, _ := newTestDeps(`[{"character": "luna", "mood": "wary"}]`)
	st := state.New()
	st.Character("Luna").Present = true
	st.Character("Bob").Present = true

	targets := []extract.Target{extract.CharacterTarget("Luna"), extract.CharacterTarget("Bob")}
	results, err := NewMood(deps).RunBatch(context.Background(), testInvocation(st), targets)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if len(results[0]) != 1 {
		t.Fatalf("luna events = %d, want 1", len(results[0]))
	}
	if len(results[1]) != 0 {
		t.Fatalf("bob events = %d, want 0", len(results[1]))
	}
	p := decodePayload(t, results[0][0]).(*event.MoodChangedPayload)
	if p.Character != "Luna" {
		t.Fatalf("character = %q, want canonical %q", p.Character, "Luna")
	}
}

func TestOutfitRejectsUnknownAction(t *testing.T) {
	deps, gen := newTestDeps(`{"changes": [{"slot": "head", "item": "hat", "action": "put_on"}]}`)
	st := state.New()

	_, err := NewOutfit(deps).RunTarget(context.Background(), testInvocation(st), extract.CharacterTarget("Luna"))
	if err == nil {
		t.Fatal("expected parse failure")
	}
	if code := apperrors.CodeOf(err); code != apperrors.CodeParseFailure {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeParseFailure)
	}
	if gen.calls() != 1 {
		t.Fatalf("generator calls = %d, want 1", gen.calls())
	}
}

func TestOutfitRemovalBackfillsItem(t *testing.T) {
	deps, _ := newTestDeps(`{"changes": [{"slot": "head", "item": "", "action": "removed"}]}`)
	st := state.New()
	luna := st.Character("Luna")
	luna.Outfit = map[string]string{"head": "straw hat"}

	events, err := NewOutfit(deps).RunTarget(context.Background(), testInvocation(st), extract.CharacterTarget("Luna"))
	if err != nil {
		t.Fatalf("RunTarget: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	p := decodePayload(t, events[0]).(*event.OutfitChangedPayload)
	if p.Slot != "head" || p.Item != "straw hat" || p.Action != event.OutfitActionRemoved {
		t.Fatalf("change = %s/%s/%s, want head/straw hat/removed", p.Slot, p.Item, p.Action)
	}
}

func TestOutfitRepeatedWearSuppressed(t *testing.T) {
	deps, _ := newTestDeps(`{"changes": [{"slot": "head", "item": "straw hat", "action": "worn"}]}`)
	st := state.New()
	st.Character("Luna").Outfit = map[string]string{"head": "straw hat"}

	events, err := NewOutfit(deps).RunTarget(context.Background(), testInvocation(st), extract.CharacterTarget("Luna"))
	if err != nil {
		t.Fatalf("RunTarget: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0", len(events))
	}
}

func TestPropsLifecycle(t *testing.T) {
	deps, _ := newTestDeps(`{
		"added": [{"name": "letter", "holder": "Luna"}, {"name": "locket", "holder": ""}],
		"removed": [{"name": "dagger"}, {"name": "ghost prop"}],
		"moved": [{"name": "letter", "holder": "Bob"}]
	}`)
	st := state.New()
	st.Props["letter"] = &state.Prop{Name: "letter", Holder: "Luna"}
	st.Props["dagger"] = &state.Prop{Name: "dagger"}

	events, err := NewProps(deps).Run(context.Background(), testInvocation(st))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// letter already exists, ghost prop is untracked.
	want := "prop.added,prop.removed,prop.moved"
	if got := subkindList(events); got != want {
		t.Fatalf("subkinds = %q, want %q", got, want)
	}
	added := decodePayload(t, events[0]).(*event.PropAddedPayload)
	if added.Name != "locket" {
		t.Fatalf("added = %q, want %q", added.Name, "locket")
	}
	moved := decodePayload(t, events[2]).(*event.PropMovedPayload)
	if moved.Name != "letter" || moved.Holder != "Bob" {
		t.Fatalf("moved = %s/%s, want letter/Bob", moved.Name, moved.Holder)
	}
}

func TestPropsUnmovedHolderSuppressed(t *testing.T) {
	deps, _ := newTestDeps(`{"added": [], "removed": [], "moved": [{"name": "letter", "holder": "Luna"}]}`)
	st := state.New()
	st.Props["letter"] = &state.Prop{Name: "letter", Holder: "Luna"}

	events, err := NewProps(deps).Run(context.Background(), testInvocation(st))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0", len(events))
	}
}

func TestRelationshipSubjectsNarrowTargets(t *testing.T) {
	deps, _ := newTestDeps(`{"pairs": [["Bob", "Alice"], ["Ghost", "Alice"]]}`)
	st := state.New()
	st.Character("Alice").Present = true
	st.Character("Bob").Present = true
	st.Character("Cara").Present = true

	inv := testInvocation(st)
	events, err := NewRelationshipSubjects(deps).Run(context.Background(), inv)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0", len(events))
	}
	if inv.Turn.PairTargets == nil {
		t.Fatal("PairTargets still nil")
	}
	if len(inv.Turn.PairTargets) != 1 {
		t.Fatalf("targets = %d, want 1", len(inv.Turn.PairTargets))
	}
	if got := inv.Turn.PairTargets[0]; got != [2]string{"Alice", "Bob"} {
		t.Fatalf("target = %v, want [Alice Bob]", got)
	}
}

func TestRelationshipSubjectsEmptyNarrowingStaysNonNil(t *testing.T) {
	deps, _ := newTestDeps(`{"pairs": []}`)
	st := state.New()
	st.Character("Alice").Present = true
	st.Character("Bob").Present = true

	inv := testInvocation(st)
	if _, err := NewRelationshipSubjects(deps).Run(context.Background(), inv); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if inv.Turn.PairTargets == nil {
		t.Fatal("PairTargets still nil")
	}
	if len(inv.Turn.PairTargets) != 0 {
		t.Fatalf("targets = %d, want 0", len(inv.Turn.PairTargets))
	}
}

func TestRelationshipStatusChange(t *testing.T) {
	deps, _ := newTestDeps(`{"status": "strained", "note": "the letter came between them"}`)
	st := state.New()
	st.Character("Alice").Present = true
	st.Character("Bob").Present = true
	st.Pair("Alice", "Bob").Status = "allies"

	events, err := NewRelationship(deps).RunTarget(context.Background(), testInvocation(st), extract.PairTarget("Bob", "Alice"))
	if err != nil {
		t.Fatalf("RunTarget: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	p := decodePayload(t, events[0]).(*event.RelationshipStatusChangedPayload)
	if p.Pair != [2]string{"Alice", "Bob"} {
		t.Fatalf("pair = %v, want [Alice Bob]", p.Pair)
	}
	if p.Status != "strained" || p.Note != "the letter came between them" {
		t.Fatalf("status = %s (%s)", p.Status, p.Note)
	}
}

func TestRelationshipBatchMatchesReversedPairs(t *testing.T) {
	deps, _ := newTestDeps(`[{"pair": ["cara", "alice"], "status": "rivals", "note": ""}]`)
	st := state.New()
	st.Character("Alice").Present = true
	st.Character("Bob").Present = true
	st.Character("Cara").Present = true

	targets := []extract.Target{extract.PairTarget("Alice", "Bob"), extract.PairTarget("Alice", "Cara")}
	results, err := NewRelationship(deps).RunBatch(context.Background(), testInvocation(st), targets)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if len(results[0]) != 0 {
		t.Fatalf("alice/bob events = %d, want 0", len(results[0]))
	}
	if len(results[1]) != 1 {
		t.Fatalf("alice/cara events = %d, want 1", len(results[1]))
	}
	p := decodePayload(t, results[1][0]).(*event.RelationshipStatusChangedPayload)
	if p.Pair != [2]string{"Alice", "Cara"} || p.Status != "rivals" {
		t.Fatalf("pair = %v status = %q", p.Pair, p.Status)
	}
}

func TestSecretsCanonicalizeAndFilter(t *testing.T) {
	deps, _ := newTestDeps(`{"secrets": [
		{"from": "luna", "toward": "BOB", "secret": "She sent the letter."},
		{"from": "Luna", "toward": "Luna", "secret": "self secret"},
		{"from": "Ghost", "toward": "Bob", "secret": "not their secret"},
		{"from": "Bob", "toward": "Luna", "secret": "he read it already"}
	]}`)
	st := state.New()
	st.Character("Luna").Present = true
	st.Character("Bob").Present = true
	pair := st.Pair("Luna", "Bob")
	pair.Secrets = []state.Secret{{FromCharacter: "Bob", TowardCharacter: "Luna", Secret: "He read it already"}}

	events, err := NewSecrets(deps).RunTarget(context.Background(), testInvocation(st), extract.PairTarget("Luna", "Bob"))
	if err != nil {
		t.Fatalf("RunTarget: %v", err)
	}
	// Self-directed, foreign, and already-tracked secrets are dropped.
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	p := decodePayload(t, events[0]).(*event.SecretRevealedPayload)
	if p.FromCharacter != "Luna" || p.TowardCharacter != "Bob" {
		t.Fatalf("direction = %s->%s, want Luna->Bob", p.FromCharacter, p.TowardCharacter)
	}
	if p.Secret != "She sent the letter." {
		t.Fatalf("secret = %q", p.Secret)
	}
}

func TestNarrativeCapsAndSkipsRepeats(t *testing.T) {
	deps, _ := newTestDeps(`{"beats": [
		"luna sent the letter",
		"The storm trapped everyone inside",
		"Bob found the hidden door",
		"Alice lied about the key",
		"Cara slipped away unnoticed"
	]}`)
	st := state.New()
	st.Beats = []state.Beat{{Text: "Luna sent the letter", MessageID: 3}}

	events, err := NewNarrative(deps).Run(context.Background(), testInvocation(st))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != maxBeatsPerRun {
		t.Fatalf("events = %d, want %d", len(events), maxBeatsPerRun)
	}
	first := decodePayload(t, events[0]).(*event.BeatNotedPayload)
	if first.Text != "The storm trapped everyone inside" {
		t.Fatalf("first beat = %q", first.Text)
	}
}

func TestChapterStartsWhenNoneOpen(t *testing.T) {
	deps, _ := newTestDeps(`{"ended": false, "summary": "", "title": "The Letter"}`)
	st := state.New()

	events, err := NewChapter(deps).Run(context.Background(), testInvocation(st))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := subkindList(events); got != "chapter.started" {
		t.Fatalf("subkinds = %q, want %q", got, "chapter.started")
	}
	p := decodePayload(t, events[0]).(*event.ChapterStartedPayload)
	if p.Title != "The Letter" {
		t.Fatalf("title = %q, want %q", p.Title, "The Letter")
	}
}

func TestChapterQuietWhenNothingBegins(t *testing.T) {
	deps, _ := newTestDeps(`{"ended": false, "summary": "", "title": ""}`)
	st := state.New()

	events, err := NewChapter(deps).Run(context.Background(), testInvocation(st))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0", len(events))
	}
}

func TestChapterEndEmitsSummaryThenNext(t *testing.T) {
	deps, _ := newTestDeps(`{"ended": true, "summary": "Luna confessed and the storm broke.", "title": "The Storm"}`)
	st := state.New()
	st.Chapters = []state.Chapter{{Title: "The Letter", StartMessageID: 0, EndMessageID: state.OpenChapterEnd}}

	events, err := NewChapter(deps).Run(context.Background(), testInvocation(st))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "chapter.ended,chapter.started"
	if got := subkindList(events); got != want {
		t.Fatalf("subkinds = %q, want %q", got, want)
	}
	ended := decodePayload(t, events[0]).(*event.ChapterEndedPayload)
	if ended.Title != "" {
		t.Fatalf("ended title = %q, want empty so the open title is kept", ended.Title)
	}
	if ended.Summary != "Luna confessed and the storm broke." {
		t.Fatalf("summary = %q", ended.Summary)
	}
	started := decodePayload(t, events[1]).(*event.ChapterStartedPayload)
	if started.Title != "The Storm" {
		t.Fatalf("next title = %q, want %q", started.Title, "The Storm")
	}
}

func TestChapterEndRequiresSummary(t *testing.T) {
	deps, _ := newTestDeps(`{"ended": true, "summary": "", "title": ""}`)
	st := state.New()
	st.Chapters = []state.Chapter{{Title: "The Letter", EndMessageID: state.OpenChapterEnd}}

	_, err := NewChapter(deps).Run(context.Background(), testInvocation(st))
	if err == nil {
		t.Fatal("expected parse failure")
	}
	if code := apperrors.CodeOf(err); code != apperrors.CodeParseFailure {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeParseFailure)
	}
}

func TestPromptOverridesApplyByName(t *testing.T) {
	temp := 0.9
	deps, gen := newTestDeps(`{"changed": false, "time": ""}`)
	deps.Prompts = stubPrompts{
		"time": {User: "CUSTOM {{.Time}}", Temperature: &temp},
	}
	st := state.New()
	st.Time = "morning"

	if _, err := NewTime(deps).Run(context.Background(), testInvocation(st)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	req := gen.request(0)
	if req.User != "CUSTOM morning" {
		t.Fatalf("user prompt = %q, want override applied", req.User)
	}
	if req.System == "" || strings.HasPrefix(req.System, "CUSTOM") {
		t.Fatalf("system prompt = %q, want default kept", req.System)
	}
	if req.Temperature != temp {
		t.Fatalf("temperature = %v, want %v", req.Temperature, temp)
	}
}

func TestBatchPromptOverrideIsSeparate(t *testing.T) {
	deps, gen := newTestDeps(`[]`)
	deps.Prompts = stubPrompts{
		"mood.batch": {User: "BATCH ONLY {{.Characters}}"},
	}
	st := state.New()
	st.Character("Luna").Present = true
	st.Character("Bob").Present = true

	targets := []extract.Target{extract.CharacterTarget("Luna"), extract.CharacterTarget("Bob")}
	if _, err := NewMood(deps).RunBatch(context.Background(), testInvocation(st), targets); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if got := gen.request(0).User; !strings.HasPrefix(got, "BATCH ONLY") {
		t.Fatalf("batch user prompt = %q, want .batch override applied", got)
	}
}

func TestAllRegistrationOrder(t *testing.T) {
	deps, _ := newTestDeps()
	all := All(deps)
	want := []string{
		"time", "location", "presence", "nickname", "outfit", "mood",
		"position", "props", "relationship_subjects", "relationship",
		"secrets", "narrative", "chapter",
	}
	if len(all) != len(want) {
		t.Fatalf("extractors = %d, want %d", len(all), len(want))
	}
	for i, e := range all {
		if e.Name() != want[i] {
			t.Fatalf("extractor %d = %q, want %q", i, e.Name(), want[i])
		}
	}
}
