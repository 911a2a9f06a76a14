package extractors

import (
	"context"
	"strings"

	"github.com/storyweft/storyweft/internal/services/tracker/domain/event"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/extract"
	"github.com/storyweft/storyweft/internal/services/tracker/generate"
	"github.com/storyweft/storyweft/internal/services/tracker/prompt"
	"github.com/storyweft/storyweft/internal/services/tracker/settings"
)

var propsDefaults = defaults{
	system: `You track significant props in a roleplay scene: objects the
story pays attention to, like a letter, a weapon, or a keepsake. Ignore
incidental scenery.
Respond with a single JSON object and nothing else:
{"added": [{"name": "<prop>", "holder": "<character or empty>"}],
 "removed": [{"name": "<prop>"}],
 "moved": [{"name": "<prop>", "holder": "<character or empty>"}]}
"moved" means the prop changed hands or was set down. Use empty arrays when
nothing changed.`,
	user: `Props currently in play:
{{.Props}}

Present characters: {{.Present}}

Recent messages:
{{.Transcript}}

Which props entered play, left play, or changed hands?`,
	temperature: 0.2,
	maxTokens:   400,
}

type propsExtractor struct{ base }

// NewProps extracts prop lifecycle changes.
func NewProps(deps Deps) extract.GlobalExtractor {
	return &propsExtractor{base{
		deps:     deps,
		name:     "props",
		category: settings.CategoryProps,
		phase:    extract.PhaseProps,
		cadence:  extract.EveryMessage{},
		window: extract.SinceLastEventOfKinds{Subkinds: []event.Subkind{
			event.SubkindPropAdded,
			event.SubkindPropRemoved,
			event.SubkindPropMoved,
		}},
	}}
}

type propEntry struct {
	Name   string `json:"name"`
	Holder string `json:"holder"`
}

type propsResponse struct {
	Added   []propEntry `json:"added"`
	Removed []propEntry `json:"removed"`
	Moved   []propEntry `json:"moved"`
}

func (r propsResponse) valid() bool {
	for _, group := range [][]propEntry{r.Added, r.Removed, r.Moved} {
		for _, entry := range group {
			if strings.TrimSpace(entry.Name) == "" {
				return false
			}
		}
	}
	return true
}

func (e *propsExtractor) Run(ctx context.Context, inv extract.Invocation) ([]event.Event, error) {
	st, err := inv.Turn.Effective()
	if err != nil {
		return nil, err
	}
	data := struct {
		Props      string
		Present    string
		Transcript string
	}{describeProps(st), joinNames(st.PresentCharacters()), extract.FormatMessages(inv.Window)}

	p, err := e.buildPrompt(propsDefaults, data)
	if err != nil {
		return nil, err
	}
	res := generate.Do(ctx, e.deps.Service, p, func(raw string) (propsResponse, bool) {
		out, ok := prompt.DecodeObject[propsResponse](raw)
		if !ok || !out.valid() {
			return out, false
		}
		return out, true
	})
	if !res.OK {
		return nil, res.Err
	}

	var events []event.Event
	for _, entry := range res.Data.Added {
		name := strings.TrimSpace(entry.Name)
		if _, tracked := st.Props[name]; tracked {
			continue
		}
		evt, err := inv.Turn.NewEvent(&event.PropAddedPayload{Name: name, Holder: strings.TrimSpace(entry.Holder)})
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	for _, entry := range res.Data.Removed {
		name := strings.TrimSpace(entry.Name)
		if _, tracked := st.Props[name]; !tracked {
			continue
		}
		evt, err := inv.Turn.NewEvent(&event.PropRemovedPayload{Name: name})
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	for _, entry := range res.Data.Moved {
		name := strings.TrimSpace(entry.Name)
		holder := strings.TrimSpace(entry.Holder)
		tracked, ok := st.Props[name]
		if !ok || tracked.Holder == holder {
			continue
		}
		evt, err := inv.Turn.NewEvent(&event.PropMovedPayload{Name: name, Holder: holder})
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}
