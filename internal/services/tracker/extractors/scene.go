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

var timeDefaults = defaults{
	system: `You track the passage of in-story time in a roleplay chat.
Report the current time as the scene presents it: a time of day, a date, or
a relative marker like "the next morning".
Respond with a single JSON object and nothing else:
{"changed": true|false, "time": "<short description>"}
Set "changed" to false when time did not move since the last known value.`,
	user: `Last known time: {{.Time}}

Messages since then:
{{.Transcript}}

Did the in-story time change?`,
	temperature: 0.2,
	maxTokens:   200,
}

type timeExtractor struct{ base }

// NewTime extracts scene time changes.
func NewTime(deps Deps) extract.GlobalExtractor {
	return &timeExtractor{base{
		deps:     deps,
		name:     "time",
		category: settings.CategoryTime,
		phase:    extract.PhaseCore,
		cadence:  extract.EveryMessage{},
		window:   extract.SinceLastEventOfKinds{Subkinds: []event.Subkind{event.SubkindTimeChanged}},
	}}
}

type sceneResponse struct {
	Changed  bool   `json:"changed"`
	Time     string `json:"time"`
	Location string `json:"location"`
}

func (e *timeExtractor) Run(ctx context.Context, inv extract.Invocation) ([]event.Event, error) {
	st, err := inv.Turn.Effective()
	if err != nil {
		return nil, err
	}
	data := struct {
		Time       string
		Transcript string
	}{valueOr(st.Time, "unknown"), extract.FormatMessages(inv.Window)}

	p, err := e.buildPrompt(timeDefaults, data)
	if err != nil {
		return nil, err
	}
	res := generate.Do(ctx, e.deps.Service, p, func(raw string) (sceneResponse, bool) {
		out, ok := prompt.DecodeObject[sceneResponse](raw)
		if !ok {
			return out, false
		}
		if out.Changed && strings.TrimSpace(out.Time) == "" {
			return out, false
		}
		return out, true
	})
	if !res.OK {
		return nil, res.Err
	}
	next := strings.TrimSpace(res.Data.Time)
	if !res.Data.Changed || next == "" || next == st.Time {
		return nil, nil
	}
	evt, err := inv.Turn.NewEvent(&event.TimeChangedPayload{Time: next})
	if err != nil {
		return nil, err
	}
	return []event.Event{evt}, nil
}

var locationDefaults = defaults{
	system: `You track the current location of a roleplay scene.
Report where the scene is taking place, as specifically as the story allows.
Respond with a single JSON object and nothing else:
{"changed": true|false, "location": "<short description>"}
Set "changed" to false when the scene has not moved.`,
	user: `Last known location: {{.Location}}

Messages since then:
{{.Transcript}}

Did the scene location change?`,
	temperature: 0.2,
	maxTokens:   200,
}

type locationExtractor struct{ base }

// NewLocation extracts scene location changes.
func NewLocation(deps Deps) extract.GlobalExtractor {
	return &locationExtractor{base{
		deps:     deps,
		name:     "location",
		category: settings.CategoryLocation,
		phase:    extract.PhaseCore,
		cadence:  extract.EveryMessage{},
		window:   extract.SinceLastEventOfKinds{Subkinds: []event.Subkind{event.SubkindLocationChanged}},
	}}
}

func (e *locationExtractor) Run(ctx context.Context, inv extract.Invocation) ([]event.Event, error) {
	st, err := inv.Turn.Effective()
	if err != nil {
		return nil, err
	}
	data := struct {
		Location   string
		Transcript string
	}{valueOr(st.Location, "unknown"), extract.FormatMessages(inv.Window)}

	p, err := e.buildPrompt(locationDefaults, data)
	if err != nil {
		return nil, err
	}
	res := generate.Do(ctx, e.deps.Service, p, func(raw string) (sceneResponse, bool) {
		out, ok := prompt.DecodeObject[sceneResponse](raw)
		if !ok {
			return out, false
		}
		if out.Changed && strings.TrimSpace(out.Location) == "" {
			return out, false
		}
		return out, true
	})
	if !res.OK {
		return nil, res.Err
	}
	next := strings.TrimSpace(res.Data.Location)
	if !res.Data.Changed || next == "" || next == st.Location {
		return nil, nil
	}
	evt, err := inv.Turn.NewEvent(&event.LocationChangedPayload{Location: next})
	if err != nil {
		return nil, err
	}
	return []event.Event{evt}, nil
}
