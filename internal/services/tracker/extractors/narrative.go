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

// maxBeatsPerRun caps how many beats one run may note so a chatty model
// cannot flood the timeline.
const maxBeatsPerRun = 3

var narrativeDefaults = defaults{
	system: `You note narrative beats in a roleplay scene: short plot-level
observations worth remembering, like "Luna admitted she sent the letter" or
"the storm forced everyone inside". Skip small talk and restatements of
beats already noted.
Respond with a single JSON object and nothing else:
{"beats": ["<one sentence per beat>"]}
Use an empty array when nothing beat-worthy happened.`,
	user: `Beats already noted:
{{.Beats}}

Recent messages:
{{.Transcript}}

What new beats happened?`,
	temperature: 0.3,
	maxTokens:   400,
}

type narrativeExtractor struct{ base }

// NewNarrative notes plot beats.
func NewNarrative(deps Deps) extract.GlobalExtractor {
	return &narrativeExtractor{base{
		deps:     deps,
		name:     "narrative",
		category: settings.CategoryNarrative,
		phase:    extract.PhaseNarrative,
		cadence:  extract.EveryNMessages{N: 4, Offset: 2},
		window:   extract.FixedNumber{N: 8},
	}}
}

type beatsResponse struct {
	Beats []string `json:"beats"`
}

func (r beatsResponse) valid() bool {
	for _, b := range r.Beats {
		if strings.TrimSpace(b) == "" {
			return false
		}
	}
	return true
}

func (e *narrativeExtractor) Run(ctx context.Context, inv extract.Invocation) ([]event.Event, error) {
	st, err := inv.Turn.Effective()
	if err != nil {
		return nil, err
	}
	recent := recentBeats(st, 5)
	data := struct {
		Beats      string
		Transcript string
	}{describeBeats(recent), extract.FormatMessages(inv.Window)}

	p, err := e.buildPrompt(narrativeDefaults, data)
	if err != nil {
		return nil, err
	}
	res := generate.Do(ctx, e.deps.Service, p, func(raw string) (beatsResponse, bool) {
		out, ok := prompt.DecodeObject[beatsResponse](raw)
		return out, ok && out.valid()
	})
	if !res.OK {
		return nil, res.Err
	}

	var events []event.Event
	for _, text := range res.Data.Beats {
		if len(events) == maxBeatsPerRun {
			break
		}
		text = strings.TrimSpace(text)
		if repeatsBeat(recent, text) {
			continue
		}
		evt, err := inv.Turn.NewEvent(&event.BeatNotedPayload{Text: text})
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}

func recentBeats(st *state.NarrativeState, n int) []state.Beat {
	if len(st.Beats) <= n {
		return st.Beats
	}
	return st.Beats[len(st.Beats)-n:]
}

func describeBeats(beats []state.Beat) string {
	if len(beats) == 0 {
		return "(none yet)"
	}
	var b strings.Builder
	for i, beat := range beats {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(beat.Text)
	}
	return b.String()
}

func repeatsBeat(recent []state.Beat, text string) bool {
	for _, beat := range recent {
		if strings.EqualFold(beat.Text, text) {
			return true
		}
	}
	return false
}

var chapterDefaults = defaults{
	system: `You detect chapter boundaries in a roleplay story: a chapter is a
coherent stretch of scenes, and it ends on a clear shift such as a time
jump, a major location change, or a plot resolution.
Respond with a single JSON object and nothing else:
{"ended": <bool>, "summary": "<2-3 sentence summary of the ended chapter, or empty>", "title": "<title of the chapter that begins, or empty>"}
When a chapter ends, "summary" is required. Only fill "title" when a new
chapter clearly begins.`,
	user: `{{if .HasOpen}}Current chapter: {{.Title}}

Messages in this chapter:
{{.Transcript}}

Has this chapter ended? If so, summarize it and, if the next chapter has
clearly begun, give it a title.{{else}}Chapters so far:
{{.Chapters}}

Recent messages:
{{.Transcript}}

Has a new chapter begun? If so, give it a title.{{end}}`,
	temperature: 0.3,
	maxTokens:   500,
}

type chapterExtractor struct{ base }

// NewChapter detects chapter boundaries and summarizes ended chapters.
func NewChapter(deps Deps) extract.GlobalExtractor {
	return &chapterExtractor{base{
		deps:     deps,
		name:     "chapter",
		category: settings.CategoryChapters,
		phase:    extract.PhaseChapter,
		cadence:  extract.EveryMessage{},
		window:   extract.SinceLastEventOfKinds{Subkinds: []event.Subkind{event.SubkindChapterEnded}},
	}}
}

type chapterResponse struct {
	Ended   bool   `json:"ended"`
	Summary string `json:"summary"`
	Title   string `json:"title"`
}

func (e *chapterExtractor) Run(ctx context.Context, inv extract.Invocation) ([]event.Event, error) {
	st, err := inv.Turn.Effective()
	if err != nil {
		return nil, err
	}
	open := st.OpenChapter()
	data := struct {
		HasOpen    bool
		Title      string
		Chapters   string
		Transcript string
	}{
		HasOpen:    open != nil,
		Chapters:   describeChapters(st.Chapters),
		Transcript: extract.FormatMessages(inv.Window),
	}
	if open != nil {
		data.Title = open.Title
	}

	p, err := e.buildPrompt(chapterDefaults, data)
	if err != nil {
		return nil, err
	}
	res := generate.Do(ctx, e.deps.Service, p, func(raw string) (chapterResponse, bool) {
		out, ok := prompt.DecodeObject[chapterResponse](raw)
		if !ok {
			return out, false
		}
		if out.Ended && strings.TrimSpace(out.Summary) == "" {
			return out, false
		}
		return out, true
	})
	if !res.OK {
		return nil, res.Err
	}

	title := strings.TrimSpace(res.Data.Title)
	var events []event.Event
	if open == nil {
		if title == "" {
			return nil, nil
		}
		evt, err := inv.Turn.NewEvent(&event.ChapterStartedPayload{Title: title})
		if err != nil {
			return nil, err
		}
		return []event.Event{evt}, nil
	}
	if !res.Data.Ended {
		return nil, nil
	}
	// Leaving Title empty keeps the open chapter's own title.
	ended, err := inv.Turn.NewEvent(&event.ChapterEndedPayload{Summary: strings.TrimSpace(res.Data.Summary)})
	if err != nil {
		return nil, err
	}
	events = append(events, ended)
	if title != "" {
		started, err := inv.Turn.NewEvent(&event.ChapterStartedPayload{Title: title})
		if err != nil {
			return nil, err
		}
		events = append(events, started)
	}
	return events, nil
}

func describeChapters(chapters []state.Chapter) string {
	if len(chapters) == 0 {
		return "(none yet)"
	}
	var b strings.Builder
	for i, ch := range chapters {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(ch.Title)
		if ch.Summary != "" {
			b.WriteString(": ")
			b.WriteString(ch.Summary)
		}
	}
	return b.String()
}
