package names

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
)

// Resolution is one disambiguation answer. An empty ResolvedTo dismisses
// the name; the turn's events commit with the unresolved surface form.
type Resolution struct {
	Name       string `json:"name"`
	ResolvedTo string `json:"resolved_to"`
}

// Disambiguator asks about names no lookup rule could place. canonical is
// offered as the menu of known characters.
type Disambiguator interface {
	Disambiguate(ctx context.Context, unresolved []string, canonical []string) ([]Resolution, error)
}

type chatKey struct{}

// WithChat tags ctx with the chat id a resolution pass runs under.
// ResolveTurn applies it before asking the disambiguator, so
// implementations that park questions instead of answering inline can
// file them under the right chat.
func WithChat(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatKey{}, chatID)
}

// ChatFromContext returns the chat id WithChat recorded.
func ChatFromContext(ctx context.Context) (string, bool) {
	chatID, ok := ctx.Value(chatKey{}).(string)
	return chatID, ok
}

// resolveRule rewrites one event's character references through the lookup,
// returning the possibly-updated event and the surface forms that did not
// resolve. A nil rule marks a subkind that carries no character references.
type resolveRule func(l *Lookup, evt event.Event) (event.Event, []string, error)

// resolveRules covers every registered subkind; the parity test fails when
// a subkind is added without deciding its resolution behavior. aka_added is
// deliberately nil: those events define aliases, they are never rewritten.
var resolveRules = map[event.Subkind]resolveRule{
	event.SubkindTimeChanged:     nil,
	event.SubkindLocationChanged: nil,
	event.SubkindBeatNoted:       nil,
	event.SubkindChapterStarted:  nil,
	event.SubkindChapterEnded:    nil,
	event.SubkindPropRemoved:     nil,
	event.SubkindAKAAdded:        nil,

	event.SubkindCharacterAppeared: singleName(func(p event.Payload) *string {
		return &p.(*event.CharacterAppearedPayload).Character
	}),
	event.SubkindCharacterDeparted: singleName(func(p event.Payload) *string {
		return &p.(*event.CharacterDepartedPayload).Character
	}),
	event.SubkindMoodChanged: singleName(func(p event.Payload) *string {
		return &p.(*event.MoodChangedPayload).Character
	}),
	event.SubkindPositionChanged: singleName(func(p event.Payload) *string {
		return &p.(*event.PositionChangedPayload).Character
	}),
	event.SubkindOutfitChanged: singleName(func(p event.Payload) *string {
		return &p.(*event.OutfitChangedPayload).Character
	}),
	event.SubkindPropAdded: singleName(func(p event.Payload) *string {
		return &p.(*event.PropAddedPayload).Holder
	}),
	event.SubkindPropMoved: singleName(func(p event.Payload) *string {
		return &p.(*event.PropMovedPayload).Holder
	}),

	event.SubkindRelationshipStatusChanged: resolvePair,
	event.SubkindSecretRevealed:            resolveSecret,
}

// RuleSubkinds lists every subkind with a declared resolution rule,
// including the explicit no-reference ones. Parity test support.
func RuleSubkinds() []event.Subkind {
	out := make([]event.Subkind, 0, len(resolveRules))
	for s := range resolveRules {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// resolveName maps one surface form, reporting it when unresolved. Empty
// references (an unheld prop's holder) pass through silently.
func resolveName(l *Lookup, raw string) (string, []string) {
	if strings.TrimSpace(raw) == "" {
		return raw, nil
	}
	if canonical, ok := l.Resolve(raw); ok {
		return canonical, nil
	}
	return raw, []string{raw}
}

func singleName(field func(event.Payload) *string) resolveRule {
	return func(l *Lookup, evt event.Event) (event.Event, []string, error) {
		p, err := event.Decode(evt)
		if err != nil {
			return evt, nil, err
		}
		ref := field(p)
		resolved, missing := resolveName(l, *ref)
		if resolved == *ref {
			return evt, missing, nil
		}
		*ref = resolved
		out, err := event.WithPayload(evt, p)
		if err != nil {
			return evt, nil, err
		}
		return out, missing, nil
	}
}

func resolvePair(l *Lookup, evt event.Event) (event.Event, []string, error) {
	p, err := event.Decode(evt)
	if err != nil {
		return evt, nil, err
	}
	rel := p.(*event.RelationshipStatusChangedPayload)
	a, missingA := resolveName(l, rel.Pair[0])
	b, missingB := resolveName(l, rel.Pair[1])
	missing := append(missingA, missingB...)
	if a == rel.Pair[0] && b == rel.Pair[1] {
		return evt, missing, nil
	}
	first, second := state.SortPair(a, b)
	rel.Pair = [2]string{first, second}
	out, err := event.WithPayload(evt, rel)
	if err != nil {
		return evt, nil, err
	}
	return out, missing, nil
}

func resolveSecret(l *Lookup, evt event.Event) (event.Event, []string, error) {
	p, err := event.Decode(evt)
	if err != nil {
		return evt, nil, err
	}
	sec := p.(*event.SecretRevealedPayload)
	from, missingFrom := resolveName(l, sec.FromCharacter)
	toward, missingToward := resolveName(l, sec.TowardCharacter)
	missing := append(missingFrom, missingToward...)
	if from == sec.FromCharacter && toward == sec.TowardCharacter {
		return evt, missing, nil
	}
	sec.FromCharacter = from
	sec.TowardCharacter = toward
	out, err := event.WithPayload(evt, sec)
	if err != nil {
		return evt, nil, err
	}
	return out, missing, nil
}

// ResolvePass rewrites every character reference in events through l,
// returning updated events and the unresolved surface forms deduplicated in
// first-appearance order.
func ResolvePass(l *Lookup, events []event.Event) ([]event.Event, []string, error) {
	out := make([]event.Event, len(events))
	var unresolved []string
	seen := make(map[string]struct{})
	for i, evt := range events {
		rule, known := resolveRules[evt.Subkind]
		if !known {
			return nil, nil, fmt.Errorf("no name resolution rule for event subkind %q", evt.Subkind)
		}
		if rule == nil {
			out[i] = evt
			continue
		}
		resolved, missing, err := rule(l, evt)
		if err != nil {
			return nil, nil, err
		}
		out[i] = resolved
		for _, name := range missing {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			unresolved = append(unresolved, name)
		}
	}
	return out, unresolved, nil
}

// ApplyResolutions teaches the lookup the confirmed mappings and returns
// synthetic aka_added events recording them, bound to the given source. An
// answer whose target is itself unknown registers the target as a new
// canonical name.
func ApplyResolutions(l *Lookup, confirmed []Resolution, chatID string, messageID, swipeID int64, at time.Time) ([]event.Event, error) {
	var out []event.Event
	for _, res := range confirmed {
		name := strings.TrimSpace(res.Name)
		target := strings.TrimSpace(res.ResolvedTo)
		if name == "" || target == "" {
			continue
		}
		owner := target
		if canonical, ok := l.Resolve(target); ok {
			owner = canonical
		} else {
			l.AddCanonical(owner)
		}
		l.AddAlias(name, owner)
		evt, err := event.New(chatID, messageID, swipeID, at, &event.AKAAddedPayload{Character: owner, Alias: name})
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, nil
}

// Resolver runs the per-turn resolution pass and remembers which names it
// already asked the disambiguator about, per chat, for the process
// lifetime.
type Resolver struct {
	disambiguator Disambiguator
	mu            sync.Mutex
	asked         map[string]struct{}
}

// NewResolver creates a resolver. A nil disambiguator leaves unresolved
// names to the turn report.
func NewResolver(d Disambiguator) *Resolver {
	return &Resolver{
		disambiguator: d,
		asked:         make(map[string]struct{}),
	}
}

// TurnResolution reports the outcome of a turn's resolution pass.
type TurnResolution struct {
	// Events is the rewritten turn output plus any synthetic aka_added
	// events from confirmed resolutions.
	Events []event.Event
	// Unresolved lists surface forms still unresolved after disambiguation.
	Unresolved []string
}

// ResolveTurn rewrites events' character references against base plus the
// turn's own definitions, then asks the disambiguator about unresolved
// names it has not asked before in this chat. Confirmed mappings are
// applied in a second pass and recorded as synthetic aka_added events bound
// to (messageID, swipeID). On disambiguator failure the returned resolution
// is still usable: events keep their unresolved forms and err reports the
// failure.
func (r *Resolver) ResolveTurn(ctx context.Context, base *state.NarrativeState, chatID string, messageID, swipeID int64, at time.Time, events []event.Event) (TurnResolution, error) {
	lookup := BuildLookup(base)
	if err := lookup.Extend(events); err != nil {
		return TurnResolution{}, err
	}
	resolved, unresolved, err := ResolvePass(lookup, events)
	if err != nil {
		return TurnResolution{}, err
	}
	result := TurnResolution{Events: resolved, Unresolved: unresolved}
	if len(unresolved) == 0 || r.disambiguator == nil {
		return result, nil
	}

	toAsk := r.filterUnasked(chatID, unresolved)
	if len(toAsk) == 0 {
		return result, nil
	}
	answers, err := r.disambiguator.Disambiguate(WithChat(ctx, chatID), toAsk, lookup.Canonical())
	if err != nil {
		return result, fmt.Errorf("disambiguate names: %w", err)
	}
	r.markAsked(chatID, toAsk)

	akaEvents, err := ApplyResolutions(lookup, answers, chatID, messageID, swipeID, at)
	if err != nil {
		return result, err
	}
	if len(akaEvents) == 0 {
		return result, nil
	}

	resolved, unresolved, err = ResolvePass(lookup, resolved)
	if err != nil {
		return result, err
	}
	return TurnResolution{
		Events:     append(resolved, akaEvents...),
		Unresolved: unresolved,
	}, nil
}

// ResetAsked forgets the asked-name history. Test hook.
func (r *Resolver) ResetAsked() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asked = make(map[string]struct{})
}

func (r *Resolver) filterUnasked(chatID string, names []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, name := range names {
		if _, done := r.asked[askedKey(chatID, name)]; !done {
			out = append(out, name)
		}
	}
	return out
}

func (r *Resolver) markAsked(chatID string, names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		r.asked[askedKey(chatID, name)] = struct{}{}
	}
}

func askedKey(chatID, name string) string {
	return chatID + "\x00" + name
}
