package extractors

import (
	"context"
	"sort"
	"strings"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/extract"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
	"github.com/storyweft/storyweft/internal/services/tracker/generate"
	"github.com/storyweft/storyweft/internal/services/tracker/prompt"
	"github.com/storyweft/storyweft/internal/services/tracker/settings"
)

// characterOf returns the tracked character or an empty view, so callers
// can read current values without nil checks.
func characterOf(st *state.NarrativeState, name string) *state.Character {
	if c, ok := st.Characters[name]; ok {
		return c
	}
	return &state.Character{Name: name}
}

var moodDefaults = defaults{
	system: `You track one character's mood in a roleplay chat.
Report the character's current emotional state in a few words.
Respond with a single JSON object and nothing else:
{"mood": "<current mood>"}
Use an empty string when the mood did not change.`,
	user: `Character: {{.Character}}
Last known mood: {{.Mood}}

Recent messages:
{{.Transcript}}

What is {{.Character}}'s mood now?`,
	temperature: 0.2,
	maxTokens:   150,
}

var moodBatchDefaults = defaults{
	system: `You track character moods in a roleplay chat.
For each listed character, report their current emotional state in a few
words. Respond with a single JSON array and nothing else:
[{"character": "<name>", "mood": "<current mood>"}]
Use an empty mood string for characters whose mood did not change.`,
	user: `Characters and their last known moods:
{{.Characters}}

Recent messages:
{{.Transcript}}

What is each character's mood now?`,
	temperature: 0.2,
	maxTokens:   400,
}

type moodExtractor struct{ base }

// NewMood extracts per-character mood changes.
func NewMood(deps Deps) extract.BatchExtractor {
	return &moodExtractor{base{
		deps:     deps,
		name:     "mood",
		category: settings.CategoryCharacters,
		phase:    extract.PhasePerCharacter,
		cadence:  extract.EveryMessage{},
		window:   extract.FixedNumber{N: 4},
	}}
}

func (e *moodExtractor) Scope() extract.Scope { return extract.ScopePerCharacter }

type moodResponse struct {
	Mood string `json:"mood"`
}

type moodBatchEntry struct {
	Character string `json:"character"`
	Mood      string `json:"mood"`
}

func (e *moodExtractor) RunTarget(ctx context.Context, inv extract.Invocation, target extract.Target) ([]event.Event, error) {
	st, err := inv.Turn.Effective()
	if err != nil {
		return nil, err
	}
	current := characterOf(st, target.Character)
	data := struct {
		Character  string
		Mood       string
		Transcript string
	}{target.Character, valueOr(current.Mood, "unknown"), extract.FormatMessages(inv.Window)}

	p, err := e.buildPrompt(moodDefaults, data)
	if err != nil {
		return nil, err
	}
	res := generate.Do(ctx, e.deps.Service, p, prompt.DecodeObject[moodResponse])
	if !res.OK {
		return nil, res.Err
	}
	return moodEvents(inv, target.Character, current.Mood, res.Data.Mood)
}

func (e *moodExtractor) RunBatch(ctx context.Context, inv extract.Invocation, targets []extract.Target) ([][]event.Event, error) {
	st, err := inv.Turn.Effective()
	if err != nil {
		return nil, err
	}
	data := struct {
		Characters string
		Transcript string
	}{
		describeCharacters(st, func(c *state.Character) string {
			return "mood: " + valueOr(c.Mood, "unknown")
		}),
		extract.FormatMessages(inv.Window),
	}

	p, err := e.buildNamedPrompt(e.name+".batch", moodBatchDefaults, data)
	if err != nil {
		return nil, err
	}
	res := generate.Do(ctx, e.deps.Service, p, func(raw string) ([]moodBatchEntry, bool) {
		out, ok := prompt.DecodeArray[moodBatchEntry](raw)
		if !ok {
			return nil, false
		}
		for _, entry := range out {
			if strings.TrimSpace(entry.Character) == "" {
				return nil, false
			}
		}
		return out, true
	})
	if !res.OK {
		return nil, res.Err
	}

	byName := make(map[string]string, len(res.Data))
	for _, entry := range res.Data {
		byName[strings.ToLower(strings.TrimSpace(entry.Character))] = entry.Mood
	}
	out := make([][]event.Event, len(targets))
	for i, target := range targets {
		mood, ok := byName[strings.ToLower(target.Character)]
		if !ok {
			continue
		}
		events, err := moodEvents(inv, target.Character, characterOf(st, target.Character).Mood, mood)
		if err != nil {
			return nil, err
		}
		out[i] = events
	}
	return out, nil
}

func moodEvents(inv extract.Invocation, character, current, next string) ([]event.Event, error) {
	next = strings.TrimSpace(next)
	if next == "" || next == current {
		return nil, nil
	}
	evt, err := inv.Turn.NewEvent(&event.MoodChangedPayload{Character: character, Mood: next})
	if err != nil {
		return nil, err
	}
	return []event.Event{evt}, nil
}

var positionDefaults = defaults{
	system: `You track one character's physical position within a roleplay
scene: where they are and what posture they hold.
Respond with a single JSON object and nothing else:
{"position": "<current position>"}
Use an empty string when the position did not change.`,
	user: `Character: {{.Character}}
Last known position: {{.Position}}

Recent messages:
{{.Transcript}}

Where is {{.Character}} now?`,
	temperature: 0.2,
	maxTokens:   150,
}

var positionBatchDefaults = defaults{
	system: `You track character positions within a roleplay scene: where
each character is and what posture they hold.
Respond with a single JSON array and nothing else:
[{"character": "<name>", "position": "<current position>"}]
Use an empty position string for characters who did not move.`,
	user: `Characters and their last known positions:
{{.Characters}}

Recent messages:
{{.Transcript}}

Where is each character now?`,
	temperature: 0.2,
	maxTokens:   400,
}

type positionExtractor struct{ base }

// NewPosition extracts per-character position changes.
func NewPosition(deps Deps) extract.BatchExtractor {
	return &positionExtractor{base{
		deps:     deps,
		name:     "position",
		category: settings.CategoryCharacters,
		phase:    extract.PhasePerCharacter,
		cadence:  extract.EveryMessage{},
		window:   extract.FixedNumber{N: 4},
	}}
}

func (e *positionExtractor) Scope() extract.Scope { return extract.ScopePerCharacter }

type positionResponse struct {
	Position string `json:"position"`
}

type positionBatchEntry struct {
	Character string `json:"character"`
	Position  string `json:"position"`
}

func (e *positionExtractor) RunTarget(ctx context.Context, inv extract.Invocation, target extract.Target) ([]event.Event, error) {
	st, err := inv.Turn.Effective()
	if err != nil {
		return nil, err
	}
	current := characterOf(st, target.Character)
	data := struct {
		Character  string
		Position   string
		Transcript string
	}{target.Character, valueOr(current.Position, "unknown"), extract.FormatMessages(inv.Window)}

	p, err := e.buildPrompt(positionDefaults, data)
	if err != nil {
		return nil, err
	}
	res := generate.Do(ctx, e.deps.Service, p, prompt.DecodeObject[positionResponse])
	if !res.OK {
		return nil, res.Err
	}
	return positionEvents(inv, target.Character, current.Position, res.Data.Position)
}

func (e *positionExtractor) RunBatch(ctx context.Context, inv extract.Invocation, targets []extract.Target) ([][]event.Event, error) {
	st, err := inv.Turn.Effective()
	if err != nil {
		return nil, err
	}
	data := struct {
		Characters string
		Transcript string
	}{
		describeCharacters(st, func(c *state.Character) string {
			return "position: " + valueOr(c.Position, "unknown")
		}),
		extract.FormatMessages(inv.Window),
	}

	p, err := e.buildNamedPrompt(e.name+".batch", positionBatchDefaults, data)
	if err != nil {
		return nil, err
	}
	res := generate.Do(ctx, e.deps.Service, p, func(raw string) ([]positionBatchEntry, bool) {
		out, ok := prompt.DecodeArray[positionBatchEntry](raw)
		if !ok {
			return nil, false
		}
		for _, entry := range out {
			if strings.TrimSpace(entry.Character) == "" {
				return nil, false
			}
		}
		return out, true
	})
	if !res.OK {
		return nil, res.Err
	}

	byName := make(map[string]string, len(res.Data))
	for _, entry := range res.Data {
		byName[strings.ToLower(strings.TrimSpace(entry.Character))] = entry.Position
	}
	out := make([][]event.Event, len(targets))
	for i, target := range targets {
		position, ok := byName[strings.ToLower(target.Character)]
		if !ok {
			continue
		}
		events, err := positionEvents(inv, target.Character, characterOf(st, target.Character).Position, position)
		if err != nil {
			return nil, err
		}
		out[i] = events
	}
	return out, nil
}

func positionEvents(inv extract.Invocation, character, current, next string) ([]event.Event, error) {
	next = strings.TrimSpace(next)
	if next == "" || next == current {
		return nil, nil
	}
	evt, err := inv.Turn.NewEvent(&event.PositionChangedPayload{Character: character, Position: next})
	if err != nil {
		return nil, err
	}
	return []event.Event{evt}, nil
}

var outfitDefaults = defaults{
	system: `You track what one character is wearing in a roleplay scene.
Report changes per clothing slot (for example: head, torso, legs, feet,
hands, accessory). Respond with a single JSON object and nothing else:
{"changes": [{"slot": "<slot>", "item": "<item>", "action": "worn"|"removed"}]}
Use an empty changes array when nothing about the outfit changed.`,
	user: `Character: {{.Character}}
Currently wearing:
{{.Outfit}}

Recent messages:
{{.Transcript}}

What changed about {{.Character}}'s outfit?`,
	temperature: 0.2,
	maxTokens:   300,
}

var outfitBatchDefaults = defaults{
	system: `You track what characters are wearing in a roleplay scene.
Report changes per character and clothing slot (for example: head, torso,
legs, feet, hands, accessory). Respond with a single JSON array and nothing
else:
[{"character": "<name>", "changes": [{"slot": "<slot>", "item": "<item>", "action": "worn"|"removed"}]}]
Use empty changes arrays for characters whose outfits did not change.`,
	user: `Characters and their current outfits:
{{.Characters}}

Recent messages:
{{.Transcript}}

What changed about each character's outfit?`,
	temperature: 0.2,
	maxTokens:   500,
}

type outfitExtractor struct{ base }

// NewOutfit extracts per-character outfit changes.
func NewOutfit(deps Deps) extract.BatchExtractor {
	return &outfitExtractor{base{
		deps:     deps,
		name:     "outfit",
		category: settings.CategoryOutfits,
		phase:    extract.PhasePerCharacter,
		cadence:  extract.EveryMessage{},
		window:   extract.FixedNumber{N: 6},
	}}
}

func (e *outfitExtractor) Scope() extract.Scope { return extract.ScopePerCharacter }

type outfitChange struct {
	Slot   string `json:"slot"`
	Item   string `json:"item"`
	Action string `json:"action"`
}

type outfitResponse struct {
	Changes []outfitChange `json:"changes"`
}

type outfitBatchEntry struct {
	Character string         `json:"character"`
	Changes   []outfitChange `json:"changes"`
}

func validOutfitChanges(changes []outfitChange) bool {
	for _, ch := range changes {
		if strings.TrimSpace(ch.Slot) == "" {
			return false
		}
		switch ch.Action {
		case event.OutfitActionWorn:
			if strings.TrimSpace(ch.Item) == "" {
				return false
			}
		case event.OutfitActionRemoved:
		default:
			return false
		}
	}
	return true
}

func describeOutfit(c *state.Character) string {
	if len(c.Outfit) == 0 {
		return "(nothing tracked)"
	}
	slots := make([]string, 0, len(c.Outfit))
	for slot := range c.Outfit {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	var b strings.Builder
	for i, slot := range slots {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(slot)
		b.WriteString(": ")
		b.WriteString(c.Outfit[slot])
	}
	return b.String()
}

func (e *outfitExtractor) RunTarget(ctx context.Context, inv extract.Invocation, target extract.Target) ([]event.Event, error) {
	st, err := inv.Turn.Effective()
	if err != nil {
		return nil, err
	}
	current := characterOf(st, target.Character)
	data := struct {
		Character  string
		Outfit     string
		Transcript string
	}{target.Character, describeOutfit(current), extract.FormatMessages(inv.Window)}

	p, err := e.buildPrompt(outfitDefaults, data)
	if err != nil {
		return nil, err
	}
	res := generate.Do(ctx, e.deps.Service, p, func(raw string) (outfitResponse, bool) {
		out, ok := prompt.DecodeObject[outfitResponse](raw)
		if !ok || !validOutfitChanges(out.Changes) {
			return out, false
		}
		return out, true
	})
	if !res.OK {
		return nil, res.Err
	}
	return outfitEvents(inv, current, res.Data.Changes)
}

func (e *outfitExtractor) RunBatch(ctx context.Context, inv extract.Invocation, targets []extract.Target) ([][]event.Event, error) {
	st, err := inv.Turn.Effective()
	if err != nil {
		return nil, err
	}
	data := struct {
		Characters string
		Transcript string
	}{
		describeCharacters(st, func(c *state.Character) string {
			if len(c.Outfit) == 0 {
				return "nothing tracked"
			}
			return strings.ReplaceAll(describeOutfit(c), "\n", "; ")
		}),
		extract.FormatMessages(inv.Window),
	}

	p, err := e.buildNamedPrompt(e.name+".batch", outfitBatchDefaults, data)
	if err != nil {
		return nil, err
	}
	res := generate.Do(ctx, e.deps.Service, p, func(raw string) ([]outfitBatchEntry, bool) {
		out, ok := prompt.DecodeArray[outfitBatchEntry](raw)
		if !ok {
			return nil, false
		}
		for _, entry := range out {
			if strings.TrimSpace(entry.Character) == "" || !validOutfitChanges(entry.Changes) {
				return nil, false
			}
		}
		return out, true
	})
	if !res.OK {
		return nil, res.Err
	}

	byName := make(map[string][]outfitChange, len(res.Data))
	for _, entry := range res.Data {
		byName[strings.ToLower(strings.TrimSpace(entry.Character))] = entry.Changes
	}
	out := make([][]event.Event, len(targets))
	for i, target := range targets {
		changes, ok := byName[strings.ToLower(target.Character)]
		if !ok {
			continue
		}
		events, err := outfitEvents(inv, characterOf(st, target.Character), changes)
		if err != nil {
			return nil, err
		}
		out[i] = events
	}
	return out, nil
}

func outfitEvents(inv extract.Invocation, current *state.Character, changes []outfitChange) ([]event.Event, error) {
	var events []event.Event
	for _, ch := range changes {
		slot := strings.TrimSpace(ch.Slot)
		item := strings.TrimSpace(ch.Item)
		worn, tracked := current.Outfit[slot]
		switch ch.Action {
		case event.OutfitActionWorn:
			if tracked && worn == item {
				continue
			}
		case event.OutfitActionRemoved:
			if !tracked {
				continue
			}
			if item == "" {
				item = worn
			}
		}
		evt, err := inv.Turn.NewEvent(&event.OutfitChangedPayload{
			Character: current.Name,
			Slot:      slot,
			Item:      item,
			Action:    ch.Action,
		})
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}
