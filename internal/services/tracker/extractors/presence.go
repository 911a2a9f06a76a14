package extractors

import (
	"context"
	"strings"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/extract"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
	"github.com/storyweft/storyweft/internal/services/tracker/generate"
	"github.com/storyweft/storyweft/internal/services/tracker/prompt"
	"github.com/storyweft/storyweft/internal/services/tracker/settings"
)

var presenceDefaults = defaults{
	system: `You track which characters are physically present in a roleplay
scene. A character is present when they are in the scene right now, not
merely mentioned or remembered.
Use the canonical spelling when the character is already known.
Respond with a single JSON object and nothing else:
{"appeared": ["name"], "departed": ["name"]}
Use empty arrays when nobody entered or left.`,
	user: `Known characters: {{.Known}}
Currently present: {{.Present}}

Recent messages:
{{.Transcript}}

Who entered the scene, and who left?`,
	temperature: 0.2,
	maxTokens:   300,
}

type presenceExtractor struct{ base }

// NewPresence extracts character arrivals and departures.
func NewPresence(deps Deps) extract.GlobalExtractor {
	return &presenceExtractor{base{
		deps:     deps,
		name:     "presence",
		category: settings.CategoryCharacters,
		phase:    extract.PhaseCharacterPresence,
		cadence:  extract.EveryMessage{},
		window:   extract.FixedNumber{N: 6},
	}}
}

type presenceResponse struct {
	Appeared []string `json:"appeared"`
	Departed []string `json:"departed"`
}

func (e *presenceExtractor) Run(ctx context.Context, inv extract.Invocation) ([]event.Event, error) {
	st, err := inv.Turn.Effective()
	if err != nil {
		return nil, err
	}
	data := struct {
		Known      string
		Present    string
		Transcript string
	}{
		joinNames(st.CanonicalNames()),
		joinNames(st.PresentCharacters()),
		extract.FormatMessages(inv.Window),
	}

	p, err := e.buildPrompt(presenceDefaults, data)
	if err != nil {
		return nil, err
	}
	res := generate.Do(ctx, e.deps.Service, p, func(raw string) (presenceResponse, bool) {
		out, ok := prompt.DecodeObject[presenceResponse](raw)
		if !ok {
			return out, false
		}
		for _, name := range out.Appeared {
			if strings.TrimSpace(name) == "" {
				return out, false
			}
		}
		for _, name := range out.Departed {
			if strings.TrimSpace(name) == "" {
				return out, false
			}
		}
		return out, true
	})
	if !res.OK {
		return nil, res.Err
	}

	var events []event.Event
	seen := make(map[string]bool)
	for _, raw := range res.Data.Appeared {
		name := strings.TrimSpace(raw)
		if seen[name] {
			continue
		}
		seen[name] = true
		// Known-and-present characters appearing again is transcript noise.
		if c, ok := st.Characters[name]; ok && c.Present {
			continue
		}
		evt, err := inv.Turn.NewEvent(&event.CharacterAppearedPayload{Character: name})
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	for _, raw := range res.Data.Departed {
		name := strings.TrimSpace(raw)
		if seen[name] {
			continue
		}
		seen[name] = true
		// Departures only make sense for characters tracked as present.
		c, ok := st.Characters[name]
		if !ok || !c.Present {
			continue
		}
		evt, err := inv.Turn.NewEvent(&event.CharacterDepartedPayload{Character: name})
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}

var nicknameDefaults = defaults{
	system: `You spot alternate names in a roleplay chat: nicknames, titles,
epithets, and shorthand the participants use for known characters.
Only report names actually used in the messages for a known character.
Respond with a single JSON array and nothing else:
[{"character": "<canonical name>", "alias": "<name as used>"}]
Use an empty array when no new aliases were used.`,
	user: `Known characters and their recorded aliases:
{{.Characters}}

Recent messages:
{{.Transcript}}

Which new aliases were used?`,
	temperature: 0.2,
	maxTokens:   300,
}

type nicknameExtractor struct{ base }

// NewNickname extracts newly used aliases for known characters.
func NewNickname(deps Deps) extract.GlobalExtractor {
	return &nicknameExtractor{base{
		deps:     deps,
		name:     "nickname",
		category: settings.CategoryNicknames,
		phase:    extract.PhaseCharacterPresence,
		cadence:  extract.EveryNMessages{N: 3},
		window:   extract.FixedNumber{N: 10},
	}}
}

type nicknameEntry struct {
	Character string `json:"character"`
	Alias     string `json:"alias"`
}

func (e *nicknameExtractor) Run(ctx context.Context, inv extract.Invocation) ([]event.Event, error) {
	st, err := inv.Turn.Effective()
	if err != nil {
		return nil, err
	}
	data := struct {
		Characters string
		Transcript string
	}{
		describeCharacters(st, func(c *state.Character) string {
			if len(c.AKAs) == 0 {
				return ""
			}
			return "aka " + strings.Join(c.AKAs, ", ")
		}),
		extract.FormatMessages(inv.Window),
	}

	p, err := e.buildPrompt(nicknameDefaults, data)
	if err != nil {
		return nil, err
	}
	res := generate.Do(ctx, e.deps.Service, p, func(raw string) ([]nicknameEntry, bool) {
		out, ok := prompt.DecodeArray[nicknameEntry](raw)
		if !ok {
			return nil, false
		}
		for _, entry := range out {
			if strings.TrimSpace(entry.Character) == "" || strings.TrimSpace(entry.Alias) == "" {
				return nil, false
			}
		}
		return out, true
	})
	if !res.OK {
		return nil, res.Err
	}

	var events []event.Event
	for _, entry := range res.Data {
		character := strings.TrimSpace(entry.Character)
		alias := strings.TrimSpace(entry.Alias)
		c, ok := st.Characters[character]
		if !ok || strings.EqualFold(alias, character) {
			continue
		}
		if hasAKA(c, alias) {
			continue
		}
		evt, err := inv.Turn.NewEvent(&event.AKAAddedPayload{Character: character, Alias: alias})
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}

func hasAKA(c *state.Character, alias string) bool {
	for _, known := range c.AKAs {
		if strings.EqualFold(known, alias) {
			return true
		}
	}
	return false
}
