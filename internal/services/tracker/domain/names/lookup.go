package names

import (
	"sort"
	"strings"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
)

// entry is one resolvable surface form.
type entry struct {
	raw   string
	norm  string
	owner string
}

// Lookup maps surface forms to canonical character names. Canonical names
// map to themselves; aliases map to their owner. Kept sorted so fuzzy ties
// break lexicographically.
type Lookup struct {
	exact      map[string]string
	normalized map[string]string
	canonicals []entry
	aliases    []entry
}

// NewLookup creates an empty lookup.
func NewLookup() *Lookup {
	return &Lookup{
		exact:      make(map[string]string),
		normalized: make(map[string]string),
	}
}

// BuildLookup indexes every canonical name and recorded AKA in the
// projection. Canonicals are indexed first so they win normalized-form
// collisions with aliases.
func BuildLookup(st *state.NarrativeState) *Lookup {
	l := NewLookup()
	if st == nil {
		return l
	}
	canonical := st.CanonicalNames()
	for _, name := range canonical {
		l.AddCanonical(name)
	}
	for _, name := range canonical {
		for _, aka := range st.Characters[name].AKAs {
			l.AddAlias(aka, name)
		}
	}
	return l
}

// AddCanonical registers a canonical character name. A surface form
// previously known as an alias is promoted.
func (l *Lookup) AddCanonical(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if owner, exists := l.exact[name]; exists {
		if owner == name {
			return
		}
		l.aliases = removeEntry(l.aliases, name)
	}
	l.exact[name] = name
	n := StripHonorific(Normalize(name))
	if _, taken := l.normalized[n]; !taken {
		l.normalized[n] = name
	}
	l.canonicals = insertSorted(l.canonicals, entry{raw: name, norm: Normalize(name), owner: name})
}

// AddAlias registers a surface form owned by a canonical name. Aliases
// never shadow canonical names.
func (l *Lookup) AddAlias(alias, owner string) {
	alias = strings.TrimSpace(alias)
	owner = strings.TrimSpace(owner)
	if alias == "" || owner == "" || alias == owner {
		return
	}
	if existing, taken := l.exact[alias]; taken && existing == alias {
		return // alias collides with a canonical name
	}
	if _, taken := l.exact[alias]; taken {
		return
	}
	l.exact[alias] = owner
	n := StripHonorific(Normalize(alias))
	if _, taken := l.normalized[n]; !taken {
		l.normalized[n] = owner
	}
	l.aliases = insertSorted(l.aliases, entry{raw: alias, norm: Normalize(alias), owner: owner})
}

// Extend teaches the lookup this turn's own definitions: aka_added events
// and newly appeared characters, so a character introduced mid-turn is
// referenceable later in the same turn.
func (l *Lookup) Extend(events []event.Event) error {
	for _, evt := range events {
		switch evt.Subkind {
		case event.SubkindCharacterAppeared:
			p, err := event.Decode(evt)
			if err != nil {
				return err
			}
			l.AddCanonical(p.(*event.CharacterAppearedPayload).Character)
		case event.SubkindAKAAdded:
			p, err := event.Decode(evt)
			if err != nil {
				return err
			}
			aka := p.(*event.AKAAddedPayload)
			l.AddAlias(aka.Alias, aka.Character)
		}
	}
	return nil
}

// Canonical returns the canonical names in sorted order.
func (l *Lookup) Canonical() []string {
	out := make([]string, len(l.canonicals))
	for i, e := range l.canonicals {
		out[i] = e.raw
	}
	return out
}

// Resolve maps a surface form to a canonical name: direct lookup, then
// normalized (case-folded, diacritics and honorifics stripped), then fuzzy
// against canonical names, then fuzzy against aliases. Fuzzy allows one
// edit for short names and two for longer ones; ties go to the
// lexicographically smaller candidate.
func (l *Lookup) Resolve(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", false
	}
	if owner, ok := l.exact[trimmed]; ok {
		return owner, true
	}
	n := StripHonorific(Normalize(trimmed))
	if n == "" {
		return "", false
	}
	if owner, ok := l.normalized[n]; ok {
		return owner, true
	}
	if owner, ok := fuzzyResolve(n, l.canonicals); ok {
		return owner, true
	}
	if owner, ok := fuzzyResolve(n, l.aliases); ok {
		return owner, true
	}
	return "", false
}

func fuzzyResolve(normInput string, candidates []entry) (string, bool) {
	allowance := fuzzyAllowance(normInput)
	owner := ""
	bestDist := allowance + 1
	for _, cand := range candidates {
		dist, ok := editDistanceWithin(normInput, cand.norm, allowance)
		if !ok {
			continue
		}
		// Strict improvement only: the slice is sorted, so equal distance
		// keeps the lexicographically smaller candidate.
		if dist < bestDist {
			owner = cand.owner
			bestDist = dist
		}
	}
	return owner, owner != ""
}

func insertSorted(entries []entry, e entry) []entry {
	i := sort.Search(len(entries), func(i int) bool { return entries[i].raw >= e.raw })
	if i < len(entries) && entries[i].raw == e.raw {
		return entries
	}
	entries = append(entries, entry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

func removeEntry(entries []entry, raw string) []entry {
	for i, e := range entries {
		if e.raw == raw {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}
