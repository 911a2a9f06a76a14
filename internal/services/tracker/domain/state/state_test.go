package state

import (
	"reflect"
	"testing"
)

func TestPairKeySymmetry(t *testing.T) {
	tests := []struct {
		a, b string
		want string
	}{
		{"Alice", "Bob", "Alice|Bob"},
		{"Bob", "Alice", "Alice|Bob"},
		{"luna", "Bob", "Bob|luna"},
		{"Zoe", "Zoe", "Zoe|Zoe"},
	}

	for _, tt := range tests {
		if got := PairKey(tt.a, tt.b); got != tt.want {
			t.Errorf("PairKey(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
		if PairKey(tt.a, tt.b) != PairKey(tt.b, tt.a) {
			t.Errorf("PairKey(%q, %q) != PairKey(%q, %q)", tt.a, tt.b, tt.b, tt.a)
		}
	}
}

func TestPresentPairsIndependentOfInsertionOrder(t *testing.T) {
	build := func(names ...string) *NarrativeState {
		s := New()
		for _, name := range names {
			c := s.Character(name)
			c.Present = true
		}
		return s
	}

	a := build("Luna", "Bob", "Ash")
	b := build("Ash", "Luna", "Bob")

	if !reflect.DeepEqual(a.PresentPairs(), b.PresentPairs()) {
		t.Fatalf("pair lists differ: %v vs %v", a.PresentPairs(), b.PresentPairs())
	}
	want := [][2]string{{"Ash", "Bob"}, {"Ash", "Luna"}, {"Bob", "Luna"}}
	if !reflect.DeepEqual(a.PresentPairs(), want) {
		t.Fatalf("pairs = %v, want %v", a.PresentPairs(), want)
	}
}

func TestPresentCharactersSkipsDeparted(t *testing.T) {
	s := New()
	s.Character("Luna").Present = true
	s.Character("Bob").Present = false

	got := s.PresentCharacters()
	if !reflect.DeepEqual(got, []string{"Luna"}) {
		t.Fatalf("present = %v, want [Luna]", got)
	}
}

func TestAddAKADedupesAndSorts(t *testing.T) {
	c := &Character{Name: "John"}
	c.AddAKA("Johnny")
	c.AddAKA("JJ")
	c.AddAKA("Johnny")
	c.AddAKA("John")
	c.AddAKA("")

	if !reflect.DeepEqual(c.AKAs, []string{"JJ", "Johnny"}) {
		t.Fatalf("akas = %v, want [JJ Johnny]", c.AKAs)
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := New()
	luna := s.Character("Luna")
	luna.Present = true
	luna.Outfit = map[string]string{"head": "hat"}
	luna.AddAKA("Moon")
	p := s.Pair("Luna", "Bob")
	p.Status = "friends"
	p.StatusLog = []StatusChange{{Status: "friends", MessageID: 3}}
	s.Props["knife"] = &Prop{Name: "knife", Holder: "Luna"}
	s.Beats = []Beat{{Text: "a storm rolls in", MessageID: 2}}
	s.Chapters = []Chapter{{Title: "One", StartMessageID: 0, EndMessageID: OpenChapterEnd}}

	clone := s.Clone()

	clone.Character("Luna").Outfit["head"] = "crown"
	clone.Character("Luna").AddAKA("Lulu")
	clone.Pair("Luna", "Bob").StatusLog[0].Status = "rivals"
	clone.Props["knife"].Holder = "Bob"
	clone.Beats[0].Text = "changed"
	clone.Chapters[0].Title = "Changed"

	if s.Characters["Luna"].Outfit["head"] != "hat" {
		t.Fatal("outfit mutation leaked into original")
	}
	if len(s.Characters["Luna"].AKAs) != 1 {
		t.Fatal("aka mutation leaked into original")
	}
	if s.Pairs[PairKey("Luna", "Bob")].StatusLog[0].Status != "friends" {
		t.Fatal("status log mutation leaked into original")
	}
	if s.Props["knife"].Holder != "Luna" {
		t.Fatal("prop mutation leaked into original")
	}
	if s.Beats[0].Text != "a storm rolls in" {
		t.Fatal("beat mutation leaked into original")
	}
	if s.Chapters[0].Title != "One" {
		t.Fatal("chapter mutation leaked into original")
	}
}

func TestOpenChapter(t *testing.T) {
	s := New()
	if s.OpenChapter() != nil {
		t.Fatal("expected nil open chapter on empty state")
	}
	s.Chapters = append(s.Chapters, Chapter{Title: "One", StartMessageID: 0, EndMessageID: 4})
	if s.OpenChapter() != nil {
		t.Fatal("expected nil open chapter when last chapter is closed")
	}
	s.Chapters = append(s.Chapters, Chapter{Title: "Two", StartMessageID: 5, EndMessageID: OpenChapterEnd})
	open := s.OpenChapter()
	if open == nil || open.Title != "Two" {
		t.Fatalf("open chapter = %+v, want Two", open)
	}
}
