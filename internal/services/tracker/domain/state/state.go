// Package state holds the materialized narrative state derived from a chat's
// event journal. State is only ever produced by projection; nothing here
// mutates committed history.
package state

import (
	"sort"
	"strings"
)

// OpenChapterEnd marks a chapter that has started but not ended.
const OpenChapterEnd int64 = -1

// NarrativeState is the tracked story state as of a point in the transcript.
type NarrativeState struct {
	// Time is the current in-story time description.
	Time string `json:"time,omitempty"`
	// Location is the current scene location.
	Location string `json:"location,omitempty"`
	// Characters maps canonical character names to their tracked state.
	Characters map[string]*Character `json:"characters,omitempty"`
	// Pairs maps sorted pair keys to relationship state.
	Pairs map[string]*Pair `json:"pairs,omitempty"`
	// Props maps prop names to tracked props currently in play.
	Props map[string]*Prop `json:"props,omitempty"`
	// Beats lists notable story beats in journal order.
	Beats []Beat `json:"beats,omitempty"`
	// Chapters lists chapters in journal order; the last may still be open.
	Chapters []Chapter `json:"chapters,omitempty"`
}

// Character is the tracked state of one canonical character.
type Character struct {
	Name     string `json:"name"`
	Present  bool   `json:"present"`
	Mood     string `json:"mood,omitempty"`
	Position string `json:"position,omitempty"`
	// Outfit maps slot names to worn items; removed slots are deleted.
	Outfit map[string]string `json:"outfit,omitempty"`
	// AKAs lists alternate surface forms, sorted, without duplicates.
	AKAs []string `json:"akas,omitempty"`
}

// Pair is the tracked relationship state between two characters.
type Pair struct {
	// Names holds the two canonical names, sorted lexicographically.
	Names [2]string `json:"names"`
	// Status is the current relationship status.
	Status string `json:"status,omitempty"`
	// StatusLog records every status transition with its source message, so
	// rollback can re-derive any earlier version of the relationship.
	StatusLog []StatusChange `json:"status_log,omitempty"`
	// Secrets lists secrets revealed between the pair.
	Secrets []Secret `json:"secrets,omitempty"`
}

// StatusChange is one entry in a pair's status history.
type StatusChange struct {
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
	MessageID int64  `json:"message_id"`
}

// Secret is a secret one character revealed to another.
type Secret struct {
	FromCharacter   string `json:"from_character"`
	TowardCharacter string `json:"toward_character"`
	Secret          string `json:"secret"`
	MessageID       int64  `json:"message_id"`
}

// Prop is a tracked prop currently in play.
type Prop struct {
	Name   string `json:"name"`
	Holder string `json:"holder,omitempty"`
}

// Beat is a notable story beat.
type Beat struct {
	Text      string `json:"text"`
	MessageID int64  `json:"message_id"`
}

// Chapter is a chapter of the story.
type Chapter struct {
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
	// StartMessageID is the message the chapter opened at.
	StartMessageID int64 `json:"start_message_id"`
	// EndMessageID is the message the chapter closed at, or OpenChapterEnd.
	EndMessageID int64 `json:"end_message_id"`
}

// New returns an empty narrative state with allocated maps.
func New() *NarrativeState {
	return &NarrativeState{
		Characters: make(map[string]*Character),
		Pairs:      make(map[string]*Pair),
		Props:      make(map[string]*Prop),
	}
}

// PairKey returns the canonical key for a character pair: the two names
// sorted lexicographically. PairKey(a, b) == PairKey(b, a).
func PairKey(a, b string) string {
	first, second := SortPair(a, b)
	return first + "|" + second
}

// SortPair returns the two names in lexicographic order.
func SortPair(a, b string) (string, string) {
	if strings.Compare(a, b) <= 0 {
		return a, b
	}
	return b, a
}

// Character returns the tracked character by canonical name, creating it
// when absent.
func (s *NarrativeState) Character(name string) *Character {
	if s.Characters == nil {
		s.Characters = make(map[string]*Character)
	}
	c, ok := s.Characters[name]
	if !ok {
		c = &Character{Name: name}
		s.Characters[name] = c
	}
	return c
}

// Pair returns the tracked pair for two names, creating it when absent.
func (s *NarrativeState) Pair(a, b string) *Pair {
	if s.Pairs == nil {
		s.Pairs = make(map[string]*Pair)
	}
	key := PairKey(a, b)
	p, ok := s.Pairs[key]
	if !ok {
		first, second := SortPair(a, b)
		p = &Pair{Names: [2]string{first, second}}
		s.Pairs[key] = p
	}
	return p
}

// PresentCharacters returns the names of characters currently present,
// sorted lexicographically.
func (s *NarrativeState) PresentCharacters() []string {
	var names []string
	for name, c := range s.Characters {
		if c.Present {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// PresentPairs returns every unique sorted pair of present characters,
// ordered lexicographically by pair key. The result is independent of map
// iteration order.
func (s *NarrativeState) PresentPairs() [][2]string {
	names := s.PresentCharacters()
	var pairs [][2]string
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			pairs = append(pairs, [2]string{names[i], names[j]})
		}
	}
	return pairs
}

// CanonicalNames returns every tracked character name, sorted.
func (s *NarrativeState) CanonicalNames() []string {
	names := make([]string, 0, len(s.Characters))
	for name := range s.Characters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddAKA records an alias on the character, keeping AKAs sorted and unique.
// Aliases equal to the canonical name are ignored.
func (c *Character) AddAKA(alias string) {
	if alias == "" || alias == c.Name {
		return
	}
	for _, existing := range c.AKAs {
		if existing == alias {
			return
		}
	}
	c.AKAs = append(c.AKAs, alias)
	sort.Strings(c.AKAs)
}

// OpenChapter returns the last chapter when it is still open, or nil.
func (s *NarrativeState) OpenChapter() *Chapter {
	if len(s.Chapters) == 0 {
		return nil
	}
	last := &s.Chapters[len(s.Chapters)-1]
	if last.EndMessageID == OpenChapterEnd {
		return last
	}
	return nil
}

// Clone returns a deep copy of the state.
func (s *NarrativeState) Clone() *NarrativeState {
	if s == nil {
		return New()
	}
	out := &NarrativeState{
		Time:     s.Time,
		Location: s.Location,
	}
	out.Characters = make(map[string]*Character, len(s.Characters))
	for name, c := range s.Characters {
		cc := *c
		if c.Outfit != nil {
			cc.Outfit = make(map[string]string, len(c.Outfit))
			for slot, item := range c.Outfit {
				cc.Outfit[slot] = item
			}
		}
		cc.AKAs = append([]string(nil), c.AKAs...)
		out.Characters[name] = &cc
	}
	out.Pairs = make(map[string]*Pair, len(s.Pairs))
	for key, p := range s.Pairs {
		pp := *p
		pp.StatusLog = append([]StatusChange(nil), p.StatusLog...)
		pp.Secrets = append([]Secret(nil), p.Secrets...)
		out.Pairs[key] = &pp
	}
	out.Props = make(map[string]*Prop, len(s.Props))
	for name, p := range s.Props {
		pp := *p
		out.Props[name] = &pp
	}
	out.Beats = append([]Beat(nil), s.Beats...)
	out.Chapters = append([]Chapter(nil), s.Chapters...)
	return out
}
