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

var subjectsDefaults = defaults{
	system: `You identify which character pairs had meaningful relationship
development in a roleplay scene: a shift in trust, affection, rivalry, or
power between two specific characters. Ordinary conversation does not count.
Respond with a single JSON object and nothing else:
{"pairs": [["<character>", "<character>"]]}
List only pairs with real development. Use an empty array when none did.`,
	user: `Pairs currently in the scene:
{{.Pairs}}

Recent messages:
{{.Transcript}}

Which of these pairs had meaningful relationship development?`,
	temperature: 0.2,
	maxTokens:   300,
}

type subjectsExtractor struct{ base }

// NewRelationshipSubjects narrows the per-pair phase to pairs the scene
// actually developed. It emits no events; a failed run leaves the fan-out
// covering every present pair.
func NewRelationshipSubjects(deps Deps) extract.GlobalExtractor {
	return &subjectsExtractor{base{
		deps:     deps,
		name:     "relationship_subjects",
		category: settings.CategoryRelationships,
		phase:    extract.PhaseRelationshipSubjects,
		cadence:  extract.EveryNMessages{N: 2},
		window:   extract.FixedNumber{N: 8},
	}}
}

type subjectsResponse struct {
	Pairs [][2]string `json:"pairs"`
}

func (e *subjectsExtractor) Run(ctx context.Context, inv extract.Invocation) ([]event.Event, error) {
	st, err := inv.Turn.Effective()
	if err != nil {
		return nil, err
	}
	present := st.PresentPairs()
	if len(present) == 0 {
		return nil, nil
	}
	data := struct {
		Pairs      string
		Transcript string
	}{describePairs(present), extract.FormatMessages(inv.Window)}

	p, err := e.buildPrompt(subjectsDefaults, data)
	if err != nil {
		return nil, err
	}
	res := generate.Do(ctx, e.deps.Service, p, func(raw string) (subjectsResponse, bool) {
		out, ok := prompt.DecodeObject[subjectsResponse](raw)
		if !ok {
			return out, false
		}
		for _, pair := range out.Pairs {
			if strings.TrimSpace(pair[0]) == "" || strings.TrimSpace(pair[1]) == "" {
				return out, false
			}
		}
		return out, true
	})
	if !res.OK {
		return nil, res.Err
	}

	picked := make(map[string]bool, len(res.Data.Pairs))
	for _, pair := range res.Data.Pairs {
		key := state.PairKey(strings.TrimSpace(pair[0]), strings.TrimSpace(pair[1]))
		picked[strings.ToLower(key)] = true
	}
	// Non-nil even when empty: an empty narrowing skips the phase, a nil
	// one means every present pair.
	narrowed := make([][2]string, 0, len(picked))
	for _, pair := range present {
		if picked[strings.ToLower(state.PairKey(pair[0], pair[1]))] {
			narrowed = append(narrowed, pair)
		}
	}
	inv.Turn.PairTargets = narrowed
	return nil, nil
}

var relationshipDefaults = defaults{
	system: `You track the relationship status between two roleplay
characters: a short label like "allies", "strained", "romantic tension",
"open rivals". Only report a new status when the scene clearly shifted it.
Respond with a single JSON object and nothing else:
{"status": "<new status or empty>", "note": "<one sentence on what shifted, or empty>"}
Use an empty status when the relationship did not change.`,
	user: `Characters: {{.First}} and {{.Second}}
Current status: {{.Status}}

Recent messages:
{{.Transcript}}

Did the relationship between {{.First}} and {{.Second}} shift?`,
	temperature: 0.2,
	maxTokens:   200,
}

var relationshipBatchDefaults = defaults{
	system: `You track relationship statuses between pairs of roleplay
characters: short labels like "allies", "strained", "romantic tension".
Only report pairs whose status clearly shifted in the scene.
Respond with a single JSON array and nothing else:
[{"pair": ["<character>", "<character>"], "status": "<new status>", "note": "<one sentence>"}]
Use an empty array when no pair shifted.`,
	user: `Pairs and their current statuses:
{{.Pairs}}

Recent messages:
{{.Transcript}}

Which pairs shifted, and to what status?`,
	temperature: 0.2,
	maxTokens:   500,
}

type relationshipExtractor struct{ base }

// NewRelationship tracks pairwise relationship status.
func NewRelationship(deps Deps) extract.BatchExtractor {
	return &relationshipExtractor{base{
		deps:     deps,
		name:     "relationship",
		category: settings.CategoryRelationships,
		phase:    extract.PhasePerPair,
		cadence:  extract.EveryNMessages{N: 2},
		window:   extract.FixedNumber{N: 8},
	}}
}

func (e *relationshipExtractor) Scope() extract.Scope { return extract.ScopePerPair }

type relationshipEntry struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type relationshipBatchEntry struct {
	Pair   [2]string `json:"pair"`
	Status string    `json:"status"`
	Note   string    `json:"note"`
}

func (e *relationshipExtractor) RunTarget(ctx context.Context, inv extract.Invocation, target extract.Target) ([]event.Event, error) {
	st, err := inv.Turn.Effective()
	if err != nil {
		return nil, err
	}
	pair := pairOf(st, target.Pair[0], target.Pair[1])
	data := struct {
		First      string
		Second     string
		Status     string
		Transcript string
	}{pair.Names[0], pair.Names[1], valueOr(pair.Status, "not established"), extract.FormatMessages(inv.Window)}

	p, err := e.buildPrompt(relationshipDefaults, data)
	if err != nil {
		return nil, err
	}
	res := generate.Do(ctx, e.deps.Service, p, prompt.DecodeObject[relationshipEntry])
	if !res.OK {
		return nil, res.Err
	}
	return relationshipEvents(inv, pair, res.Data.Status, res.Data.Note)
}

func (e *relationshipExtractor) RunBatch(ctx context.Context, inv extract.Invocation, targets []extract.Target) ([][]event.Event, error) {
	st, err := inv.Turn.Effective()
	if err != nil {
		return nil, err
	}
	var lines strings.Builder
	for i, target := range targets {
		if i > 0 {
			lines.WriteString("\n")
		}
		pair := pairOf(st, target.Pair[0], target.Pair[1])
		lines.WriteString(pair.Names[0])
		lines.WriteString(" & ")
		lines.WriteString(pair.Names[1])
		lines.WriteString(" (status: ")
		lines.WriteString(valueOr(pair.Status, "not established"))
		lines.WriteString(")")
	}
	data := struct {
		Pairs      string
		Transcript string
	}{lines.String(), extract.FormatMessages(inv.Window)}

	p, err := e.buildNamedPrompt(e.name+".batch", relationshipBatchDefaults, data)
	if err != nil {
		return nil, err
	}
	res := generate.Do(ctx, e.deps.Service, p, func(raw string) ([]relationshipBatchEntry, bool) {
		out, ok := prompt.DecodeArray[relationshipBatchEntry](raw)
		if !ok {
			return out, false
		}
		for _, entry := range out {
			if strings.TrimSpace(entry.Pair[0]) == "" || strings.TrimSpace(entry.Pair[1]) == "" {
				return out, false
			}
		}
		return out, true
	})
	if !res.OK {
		return nil, res.Err
	}

	byKey := make(map[string]relationshipBatchEntry, len(res.Data))
	for _, entry := range res.Data {
		key := state.PairKey(strings.TrimSpace(entry.Pair[0]), strings.TrimSpace(entry.Pair[1]))
		byKey[strings.ToLower(key)] = entry
	}
	out := make([][]event.Event, len(targets))
	for i, target := range targets {
		entry, ok := byKey[strings.ToLower(state.PairKey(target.Pair[0], target.Pair[1]))]
		if !ok {
			continue
		}
		events, err := relationshipEvents(inv, pairOf(st, target.Pair[0], target.Pair[1]), entry.Status, entry.Note)
		if err != nil {
			return nil, err
		}
		out[i] = events
	}
	return out, nil
}

func relationshipEvents(inv extract.Invocation, pair *state.Pair, status, note string) ([]event.Event, error) {
	status = strings.TrimSpace(status)
	if status == "" || status == pair.Status {
		return nil, nil
	}
	evt, err := inv.Turn.NewEvent(&event.RelationshipStatusChangedPayload{
		Pair:   pair.Names,
		Status: status,
		Note:   strings.TrimSpace(note),
	})
	if err != nil {
		return nil, err
	}
	return []event.Event{evt}, nil
}

var secretsDefaults = defaults{
	system: `You track secrets between two roleplay characters: something one
of them knows or did that they are keeping from the other. Only report
secrets the scene establishes or reveals; do not invent any.
Respond with a single JSON object and nothing else:
{"secrets": [{"from": "<keeper>", "toward": "<kept from>", "secret": "<one sentence>"}]}
Both names must be the two characters given. Use an empty array when there
are no new secrets.`,
	user: `Characters: {{.First}} and {{.Second}}
Secrets already tracked:
{{.Known}}

Recent messages:
{{.Transcript}}

What new secrets does either keep from the other?`,
	temperature: 0.2,
	maxTokens:   400,
}

type secretsExtractor struct{ base }

// NewSecrets tracks directional secrets inside a pair.
func NewSecrets(deps Deps) extract.TargetExtractor {
	return &secretsExtractor{base{
		deps:     deps,
		name:     "secrets",
		category: settings.CategorySecrets,
		phase:    extract.PhasePerPair,
		cadence:  extract.EveryNMessages{N: 4},
		window:   extract.FixedNumber{N: 10},
	}}
}

func (e *secretsExtractor) Scope() extract.Scope { return extract.ScopePerPair }

type secretEntry struct {
	From   string `json:"from"`
	Toward string `json:"toward"`
	Secret string `json:"secret"`
}

type secretsResponse struct {
	Secrets []secretEntry `json:"secrets"`
}

func (r secretsResponse) valid() bool {
	for _, s := range r.Secrets {
		if strings.TrimSpace(s.From) == "" || strings.TrimSpace(s.Toward) == "" || strings.TrimSpace(s.Secret) == "" {
			return false
		}
	}
	return true
}

func (e *secretsExtractor) RunTarget(ctx context.Context, inv extract.Invocation, target extract.Target) ([]event.Event, error) {
	st, err := inv.Turn.Effective()
	if err != nil {
		return nil, err
	}
	pair := pairOf(st, target.Pair[0], target.Pair[1])
	data := struct {
		First      string
		Second     string
		Known      string
		Transcript string
	}{pair.Names[0], pair.Names[1], describeSecrets(pair), extract.FormatMessages(inv.Window)}

	p, err := e.buildPrompt(secretsDefaults, data)
	if err != nil {
		return nil, err
	}
	res := generate.Do(ctx, e.deps.Service, p, func(raw string) (secretsResponse, bool) {
		out, ok := prompt.DecodeObject[secretsResponse](raw)
		return out, ok && out.valid()
	})
	if !res.OK {
		return nil, res.Err
	}

	var events []event.Event
	for _, entry := range res.Data.Secrets {
		from, okFrom := matchPairName(entry.From, pair)
		toward, okToward := matchPairName(entry.Toward, pair)
		if !okFrom || !okToward || from == toward {
			continue
		}
		text := strings.TrimSpace(entry.Secret)
		if knownSecret(pair, from, toward, text) {
			continue
		}
		evt, err := inv.Turn.NewEvent(&event.SecretRevealedPayload{
			FromCharacter:   from,
			TowardCharacter: toward,
			Secret:          text,
		})
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}

// pairOf returns the tracked pair or an empty view, without the lazy
// creation Pair does on the shared state.
func pairOf(st *state.NarrativeState, a, b string) *state.Pair {
	if p, ok := st.Pairs[state.PairKey(a, b)]; ok {
		return p
	}
	first, second := state.SortPair(a, b)
	return &state.Pair{Names: [2]string{first, second}}
}

// matchPairName canonicalizes a model-supplied name against the pair.
func matchPairName(name string, pair *state.Pair) (string, bool) {
	name = strings.TrimSpace(name)
	for _, n := range pair.Names {
		if strings.EqualFold(name, n) {
			return n, true
		}
	}
	return "", false
}

func knownSecret(pair *state.Pair, from, toward, text string) bool {
	for _, s := range pair.Secrets {
		if s.FromCharacter == from && s.TowardCharacter == toward && strings.EqualFold(s.Secret, text) {
			return true
		}
	}
	return false
}

func describeSecrets(pair *state.Pair) string {
	if len(pair.Secrets) == 0 {
		return "(none tracked)"
	}
	var b strings.Builder
	for i, s := range pair.Secrets {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(s.FromCharacter)
		b.WriteString(" keeps from ")
		b.WriteString(s.TowardCharacter)
		b.WriteString(": ")
		b.WriteString(s.Secret)
	}
	return b.String()
}
