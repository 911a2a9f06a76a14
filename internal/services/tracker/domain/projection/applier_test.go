package projection

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
)

func testEvent(t *testing.T, messageID int64, p event.Payload) event.Event {
	t.Helper()
	evt, err := event.New("chat-1", messageID, 0, time.Unix(0, 0).UTC(), p)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return evt
}

func TestApplySceneEvents(t *testing.T) {
	applier := Applier{}
	s := state.New()

	if err := applier.Apply(s, testEvent(t, 0, &event.TimeChangedPayload{Time: "dawn"})); err != nil {
		t.Fatalf("apply time_changed: %v", err)
	}
	if err := applier.Apply(s, testEvent(t, 0, &event.LocationChangedPayload{Location: "observatory"})); err != nil {
		t.Fatalf("apply location_changed: %v", err)
	}

	if s.Time != "dawn" {
		t.Fatalf("time = %q, want %q", s.Time, "dawn")
	}
	if s.Location != "observatory" {
		t.Fatalf("location = %q, want %q", s.Location, "observatory")
	}
}

func TestApplyCharacterPresence(t *testing.T) {
	applier := Applier{}
	s := state.New()

	if err := applier.Apply(s, testEvent(t, 1, &event.CharacterAppearedPayload{Character: "Luna"})); err != nil {
		t.Fatalf("apply appeared: %v", err)
	}
	if !s.Characters["Luna"].Present {
		t.Fatal("Luna should be present after character.appeared")
	}

	if err := applier.Apply(s, testEvent(t, 2, &event.CharacterDepartedPayload{Character: "Luna"})); err != nil {
		t.Fatalf("apply departed: %v", err)
	}
	c, ok := s.Characters["Luna"]
	if !ok {
		t.Fatal("departed character should keep its record")
	}
	if c.Present {
		t.Fatal("Luna should not be present after character.departed")
	}

	if err := applier.Apply(s, testEvent(t, 3, &event.CharacterAppearedPayload{})); err == nil {
		t.Fatal("expected error for empty character name")
	}
}

func TestApplyCharacterDetails(t *testing.T) {
	applier := Applier{}
	s := state.New()

	if err := applier.Apply(s, testEvent(t, 1, &event.MoodChangedPayload{Character: "Luna", Mood: "wistful"})); err != nil {
		t.Fatalf("apply mood_changed: %v", err)
	}
	if err := applier.Apply(s, testEvent(t, 1, &event.PositionChangedPayload{Character: "Luna", Position: "by the window"})); err != nil {
		t.Fatalf("apply position_changed: %v", err)
	}

	c := s.Characters["Luna"]
	if c == nil {
		t.Fatal("mood_changed should create the character record")
	}
	if c.Mood != "wistful" {
		t.Fatalf("mood = %q, want %q", c.Mood, "wistful")
	}
	if c.Position != "by the window" {
		t.Fatalf("position = %q, want %q", c.Position, "by the window")
	}
	if c.Present {
		t.Fatal("detail events should not mark the character present")
	}
}

func TestApplyOutfitChanged(t *testing.T) {
	applier := Applier{}
	s := state.New()

	worn := &event.OutfitChangedPayload{Character: "Luna", Slot: "head", Item: "sun hat", Action: event.OutfitActionWorn}
	if err := applier.Apply(s, testEvent(t, 1, worn)); err != nil {
		t.Fatalf("apply worn: %v", err)
	}
	if got := s.Characters["Luna"].Outfit["head"]; got != "sun hat" {
		t.Fatalf("outfit slot = %q, want %q", got, "sun hat")
	}

	removed := &event.OutfitChangedPayload{Character: "Luna", Slot: "head", Item: "sun hat", Action: event.OutfitActionRemoved}
	if err := applier.Apply(s, testEvent(t, 2, removed)); err != nil {
		t.Fatalf("apply removed: %v", err)
	}
	if _, ok := s.Characters["Luna"].Outfit["head"]; ok {
		t.Fatal("removed slot should be deleted from the outfit")
	}

	bogus := &event.OutfitChangedPayload{Character: "Luna", Slot: "head", Action: "misplaced"}
	if err := applier.Apply(s, testEvent(t, 3, bogus)); err == nil {
		t.Fatal("expected error for unknown outfit action")
	}
}

func TestApplyPropEvents(t *testing.T) {
	applier := Applier{}
	s := state.New()

	if err := applier.Apply(s, testEvent(t, 1, &event.PropAddedPayload{Name: "locket", Holder: "Luna"})); err != nil {
		t.Fatalf("apply added: %v", err)
	}
	if got := s.Props["locket"].Holder; got != "Luna" {
		t.Fatalf("holder = %q, want %q", got, "Luna")
	}

	if err := applier.Apply(s, testEvent(t, 2, &event.PropMovedPayload{Name: "locket", Holder: "Bob"})); err != nil {
		t.Fatalf("apply moved: %v", err)
	}
	if got := s.Props["locket"].Holder; got != "Bob" {
		t.Fatalf("holder after move = %q, want %q", got, "Bob")
	}

	// Moving a prop the projection never saw added still records it.
	if err := applier.Apply(s, testEvent(t, 3, &event.PropMovedPayload{Name: "lantern", Holder: "Ash"})); err != nil {
		t.Fatalf("apply move of unseen prop: %v", err)
	}
	if got := s.Props["lantern"].Holder; got != "Ash" {
		t.Fatalf("unseen prop holder = %q, want %q", got, "Ash")
	}

	if err := applier.Apply(s, testEvent(t, 4, &event.PropRemovedPayload{Name: "locket"})); err != nil {
		t.Fatalf("apply removed: %v", err)
	}
	if _, ok := s.Props["locket"]; ok {
		t.Fatal("removed prop should leave the state")
	}
}

func TestApplyRelationshipEvents(t *testing.T) {
	applier := Applier{}
	s := state.New()

	status := &event.RelationshipStatusChangedPayload{Pair: [2]string{"Bob", "Luna"}, Status: "uneasy allies", Note: "after the rooftop argument"}
	if err := applier.Apply(s, testEvent(t, 4, status)); err != nil {
		t.Fatalf("apply status_changed: %v", err)
	}

	pair := s.Pairs[state.PairKey("Luna", "Bob")]
	if pair == nil {
		t.Fatal("status_changed should create the pair record")
	}
	if pair.Status != "uneasy allies" {
		t.Fatalf("status = %q, want %q", pair.Status, "uneasy allies")
	}
	wantLog := []state.StatusChange{{Status: "uneasy allies", Note: "after the rooftop argument", MessageID: 4}}
	if !reflect.DeepEqual(pair.StatusLog, wantLog) {
		t.Fatalf("status log = %+v, want %+v", pair.StatusLog, wantLog)
	}

	secret := &event.SecretRevealedPayload{FromCharacter: "Luna", TowardCharacter: "Bob", Secret: "the locket was stolen"}
	if err := applier.Apply(s, testEvent(t, 6, secret)); err != nil {
		t.Fatalf("apply secret_revealed: %v", err)
	}
	wantSecrets := []state.Secret{{FromCharacter: "Luna", TowardCharacter: "Bob", Secret: "the locket was stolen", MessageID: 6}}
	if !reflect.DeepEqual(pair.Secrets, wantSecrets) {
		t.Fatalf("secrets = %+v, want %+v", pair.Secrets, wantSecrets)
	}
}

func TestApplyAKAAdded(t *testing.T) {
	applier := Applier{}
	s := state.New()

	if err := applier.Apply(s, testEvent(t, 2, &event.AKAAddedPayload{Character: "Jonathan", Alias: "Johnny"})); err != nil {
		t.Fatalf("apply aka_added: %v", err)
	}
	got := s.Characters["Jonathan"].AKAs
	if !reflect.DeepEqual(got, []string{"Johnny"}) {
		t.Fatalf("akas = %v, want %v", got, []string{"Johnny"})
	}

	if err := applier.Apply(s, testEvent(t, 3, &event.AKAAddedPayload{Alias: "Johnny"})); err == nil {
		t.Fatal("expected error for aka_added without a character")
	}
}

func TestApplyBeatNoted(t *testing.T) {
	applier := Applier{}
	s := state.New()

	if err := applier.Apply(s, testEvent(t, 7, &event.BeatNotedPayload{Text: "Luna finally opens the letter"})); err != nil {
		t.Fatalf("apply beat_noted: %v", err)
	}
	want := []state.Beat{{Text: "Luna finally opens the letter", MessageID: 7}}
	if !reflect.DeepEqual(s.Beats, want) {
		t.Fatalf("beats = %+v, want %+v", s.Beats, want)
	}
}

func TestApplyChapterLifecycle(t *testing.T) {
	applier := Applier{}

	t.Run("started then ended", func(t *testing.T) {
		s := state.New()
		if err := applier.Apply(s, testEvent(t, 0, &event.ChapterStartedPayload{Title: "Arrival"})); err != nil {
			t.Fatalf("apply started: %v", err)
		}
		if got := s.OpenChapter(); got == nil || got.Title != "Arrival" {
			t.Fatalf("open chapter = %+v, want open %q", got, "Arrival")
		}
		if err := applier.Apply(s, testEvent(t, 9, &event.ChapterEndedPayload{Summary: "Luna reaches the observatory."})); err != nil {
			t.Fatalf("apply ended: %v", err)
		}
		want := []state.Chapter{{Title: "Arrival", Summary: "Luna reaches the observatory.", StartMessageID: 0, EndMessageID: 9}}
		if !reflect.DeepEqual(s.Chapters, want) {
			t.Fatalf("chapters = %+v, want %+v", s.Chapters, want)
		}
	})

	t.Run("ended overrides title when set", func(t *testing.T) {
		s := state.New()
		if err := applier.Apply(s, testEvent(t, 0, &event.ChapterStartedPayload{Title: "Working Title"})); err != nil {
			t.Fatalf("apply started: %v", err)
		}
		if err := applier.Apply(s, testEvent(t, 5, &event.ChapterEndedPayload{Title: "The Storm", Summary: "It breaks."})); err != nil {
			t.Fatalf("apply ended: %v", err)
		}
		if got := s.Chapters[0].Title; got != "The Storm" {
			t.Fatalf("title = %q, want %q", got, "The Storm")
		}
	})

	t.Run("started closes the open chapter", func(t *testing.T) {
		s := state.New()
		if err := applier.Apply(s, testEvent(t, 0, &event.ChapterStartedPayload{Title: "One"})); err != nil {
			t.Fatalf("apply started: %v", err)
		}
		if err := applier.Apply(s, testEvent(t, 12, &event.ChapterStartedPayload{Title: "Two"})); err != nil {
			t.Fatalf("apply second started: %v", err)
		}
		if got := s.Chapters[0].EndMessageID; got != 12 {
			t.Fatalf("first chapter end = %d, want 12", got)
		}
		open := s.OpenChapter()
		if open == nil || open.Title != "Two" {
			t.Fatalf("open chapter = %+v, want open %q", open, "Two")
		}
	})

	t.Run("ended without open chapter records a closed one", func(t *testing.T) {
		s := state.New()
		if err := applier.Apply(s, testEvent(t, 8, &event.ChapterEndedPayload{Title: "Prologue", Summary: "Before the rain."})); err != nil {
			t.Fatalf("apply ended: %v", err)
		}
		want := []state.Chapter{{Title: "Prologue", Summary: "Before the rain.", StartMessageID: 0, EndMessageID: 8}}
		if !reflect.DeepEqual(s.Chapters, want) {
			t.Fatalf("chapters = %+v, want %+v", s.Chapters, want)
		}

		if err := applier.Apply(s, testEvent(t, 20, &event.ChapterEndedPayload{Title: "Interlude"})); err != nil {
			t.Fatalf("apply second ended: %v", err)
		}
		got := s.Chapters[1]
		if got.StartMessageID != 9 || got.EndMessageID != 20 {
			t.Fatalf("chapter bounds = [%d, %d], want [9, 20]", got.StartMessageID, got.EndMessageID)
		}
	})
}

func TestApplyRejectsMalformedPayload(t *testing.T) {
	applier := Applier{}
	s := state.New()

	evt := testEvent(t, 1, &event.TimeChangedPayload{Time: "dusk"})
	evt.PayloadJSON = []byte("{not json")
	err := applier.Apply(s, evt)
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if !strings.Contains(err.Error(), string(event.SubkindTimeChanged)) {
		t.Fatalf("error %q should name the subkind", err)
	}
}
