// Package extractors holds the concrete extraction units the orchestrator
// schedules: scene time and location, character presence and nicknames,
// per-character appearance, props, relationships and secrets, narrative
// beats, and chapter boundaries. Each extractor renders a default prompt
// template (overridable per deployment), runs it through the generation
// service, and turns the parsed response into journal events.
package extractors

import (
	"sort"
	"strings"

	apperrors "github.com/storyweft/storyweft/internal/platform/errors"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/extract"
	"github.com/storyweft/storyweft/internal/services/tracker/domain/state"
	"github.com/storyweft/storyweft/internal/services/tracker/generate"
	"github.com/storyweft/storyweft/internal/services/tracker/prompt"
	"github.com/storyweft/storyweft/internal/services/tracker/settings"
)

// PromptSource supplies per-extractor prompt overrides.
type PromptSource interface {
	CustomPrompt(name string) (settings.PromptOverride, bool)
}

// Deps is what every extractor needs: the generation service and the
// override table. Prompts may be nil.
type Deps struct {
	Service *generate.Service
	Prompts PromptSource
}

// All returns every extractor in registration order. Order within a phase
// is execution order.
func All(deps Deps) []extract.Extractor {
	return []extract.Extractor{
		NewTime(deps),
		NewLocation(deps),
		NewPresence(deps),
		NewNickname(deps),
		NewOutfit(deps),
		NewMood(deps),
		NewPosition(deps),
		NewProps(deps),
		NewRelationshipSubjects(deps),
		NewRelationship(deps),
		NewSecrets(deps),
		NewNarrative(deps),
		NewChapter(deps),
	}
}

type base struct {
	deps     Deps
	name     string
	category settings.Category
	phase    extract.Phase
	cadence  extract.RunStrategy
	window   extract.WindowStrategy
}

func (b *base) Name() string                   { return b.name }
func (b *base) Category() settings.Category    { return b.category }
func (b *base) Phase() extract.Phase           { return b.phase }
func (b *base) Cadence() extract.RunStrategy   { return b.cadence }
func (b *base) Window() extract.WindowStrategy { return b.window }

// defaults carries an extractor's built-in prompt configuration.
type defaults struct {
	system      string
	user        string
	temperature float64
	maxTokens   int
}

// buildPrompt renders the extractor's templates over data, preferring the
// configured override when one exists. Override fields replace their
// default individually, so an override may restyle just the user template.
func (b *base) buildPrompt(def defaults, data any) (generate.Prompt, error) {
	return b.buildNamedPrompt(b.name, def, data)
}

// buildNamedPrompt is buildPrompt under an explicit prompt name. Batch
// extractors use it with a ".batch" suffix so the single and batch forms
// get separate cache and cooldown buckets.
func (b *base) buildNamedPrompt(name string, def defaults, data any) (generate.Prompt, error) {
	system, user, temp := def.system, def.user, def.temperature
	if b.deps.Prompts != nil {
		if o, ok := b.deps.Prompts.CustomPrompt(name); ok {
			if o.System != "" {
				system = o.System
			}
			if o.User != "" {
				user = o.User
			}
			if o.Temperature != nil {
				temp = *o.Temperature
			}
		}
	}
	sys, err := prompt.Render(name+".system", system, data)
	if err != nil {
		return generate.Prompt{}, apperrors.Wrap(apperrors.CodeExtractorFailure, "render system prompt", err)
	}
	usr, err := prompt.Render(name+".user", user, data)
	if err != nil {
		return generate.Prompt{}, apperrors.Wrap(apperrors.CodeExtractorFailure, "render user prompt", err)
	}
	return generate.Prompt{
		Name:        name,
		System:      sys,
		User:        usr,
		Temperature: temp,
		MaxTokens:   def.maxTokens,
	}, nil
}

func valueOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// joinNames renders a name list for a prompt.
func joinNames(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}

// describeCharacters renders one line per present character with its
// tracked detail, e.g. "Luna (mood: wary)".
func describeCharacters(st *state.NarrativeState, detail func(c *state.Character) string) string {
	present := st.PresentCharacters()
	if len(present) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, name := range present {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(name)
		if d := detail(st.Characters[name]); d != "" {
			b.WriteString(" (")
			b.WriteString(d)
			b.WriteString(")")
		}
	}
	return b.String()
}

// describePairs renders present pairs as "A & B" lines.
func describePairs(pairs [][2]string) string {
	if len(pairs) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p[0])
		b.WriteString(" & ")
		b.WriteString(p[1])
	}
	return b.String()
}

// describeProps renders tracked props as "name (held by holder)" lines.
func describeProps(st *state.NarrativeState) string {
	if len(st.Props) == 0 {
		return "(none)"
	}
	names := make([]string, 0, len(st.Props))
	for name := range st.Props {
		names = append(names, name)
	}
	// Map order is random; prompts need stable rendering for the cache.
	sort.Strings(names)
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(name)
		if holder := st.Props[name].Holder; holder != "" {
			b.WriteString(" (held by ")
			b.WriteString(holder)
			b.WriteString(")")
		}
	}
	return b.String()
}
