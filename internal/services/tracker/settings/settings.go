// Package settings holds the runtime knobs for the tracker: which
// narrative categories are tracked, fan-out and window limits, retry and
// backoff tuning, and optional per-prompt template overrides loaded from a
// YAML file. Consumers depend on narrow views (a category gate, a prompt
// source) rather than on the whole struct.
package settings

import (
	"fmt"
	"time"

	"github.com/storyweft/storyweft/internal/platform/config"
)

// Category names a group of extractors that can be toggled together.
type Category string

const (
	CategoryTime          Category = "time"
	CategoryLocation      Category = "location"
	CategoryCharacters    Category = "characters"
	CategoryNicknames     Category = "nicknames"
	CategoryOutfits       Category = "outfits"
	CategoryProps         Category = "props"
	CategoryRelationships Category = "relationships"
	CategorySecrets       Category = "secrets"
	CategoryNarrative     Category = "narrative"
	CategoryChapters      Category = "chapters"
)

// Categories returns every known category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryTime,
		CategoryLocation,
		CategoryCharacters,
		CategoryNicknames,
		CategoryOutfits,
		CategoryProps,
		CategoryRelationships,
		CategorySecrets,
		CategoryNarrative,
		CategoryChapters,
	}
}

// Settings is the full tracker configuration, parsed from STORYWEFT_*
// environment variables with sensible defaults.
type Settings struct {
	TrackTime          bool `env:"STORYWEFT_TRACK_TIME" envDefault:"true"`
	TrackLocation      bool `env:"STORYWEFT_TRACK_LOCATION" envDefault:"true"`
	TrackCharacters    bool `env:"STORYWEFT_TRACK_CHARACTERS" envDefault:"true"`
	TrackNicknames     bool `env:"STORYWEFT_TRACK_NICKNAMES" envDefault:"true"`
	TrackOutfits       bool `env:"STORYWEFT_TRACK_OUTFITS" envDefault:"true"`
	TrackProps         bool `env:"STORYWEFT_TRACK_PROPS" envDefault:"true"`
	TrackRelationships bool `env:"STORYWEFT_TRACK_RELATIONSHIPS" envDefault:"true"`
	TrackSecrets       bool `env:"STORYWEFT_TRACK_SECRETS" envDefault:"true"`
	TrackNarrative     bool `env:"STORYWEFT_TRACK_NARRATIVE" envDefault:"true"`
	TrackChapters      bool `env:"STORYWEFT_TRACK_CHAPTERS" envDefault:"true"`

	// Fan-out and transcript window limits.
	MaxConcurrentRequests    int `env:"STORYWEFT_MAX_CONCURRENT_REQUESTS" envDefault:"3"`
	MaxMessagesToSend        int `env:"STORYWEFT_MAX_MESSAGES_TO_SEND" envDefault:"12"`
	MaxChapterMessagesToSend int `env:"STORYWEFT_MAX_CHAPTER_MESSAGES_TO_SEND" envDefault:"40"`

	// Parse/retry layer tuning.
	MaxRetries       int           `env:"STORYWEFT_MAX_RETRIES" envDefault:"2"`
	RetryTemperature float64       `env:"STORYWEFT_RETRY_TEMPERATURE" envDefault:"0.3"`
	FailureThreshold int           `env:"STORYWEFT_BACKOFF_FAILURE_THRESHOLD" envDefault:"2"`
	CooldownBase     time.Duration `env:"STORYWEFT_BACKOFF_COOLDOWN_BASE" envDefault:"30s"`
	CooldownMax      time.Duration `env:"STORYWEFT_BACKOFF_COOLDOWN_MAX" envDefault:"10m"`
	CacheMaxAge      time.Duration `env:"STORYWEFT_CACHE_MAX_AGE" envDefault:"5m"`

	// SnapshotEveryMessages controls how often the journal writes a
	// checkpoint snapshot after appending a turn.
	SnapshotEveryMessages int `env:"STORYWEFT_SNAPSHOT_EVERY_MESSAGES" envDefault:"20"`

	// CustomPromptsPath optionally points at a YAML file with per-prompt
	// template overrides.
	CustomPromptsPath string `env:"STORYWEFT_CUSTOM_PROMPTS" envDefault:""`

	prompts map[string]PromptOverride
}

// Load parses settings from the environment and, when configured, loads the
// custom prompt override file.
func Load() (*Settings, error) {
	s, err := config.ParseEnv[Settings]()
	if err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if s.CustomPromptsPath != "" {
		prompts, err := LoadPrompts(s.CustomPromptsPath)
		if err != nil {
			return nil, fmt.Errorf("load custom prompts: %w", err)
		}
		s.prompts = prompts
	}
	return &s, nil
}

// Enabled reports whether a tracking category is switched on. Unknown
// categories are disabled.
func (s *Settings) Enabled(c Category) bool {
	switch c {
	case CategoryTime:
		return s.TrackTime
	case CategoryLocation:
		return s.TrackLocation
	case CategoryCharacters:
		return s.TrackCharacters
	case CategoryNicknames:
		return s.TrackNicknames
	case CategoryOutfits:
		return s.TrackOutfits
	case CategoryProps:
		return s.TrackProps
	case CategoryRelationships:
		return s.TrackRelationships
	case CategorySecrets:
		return s.TrackSecrets
	case CategoryNarrative:
		return s.TrackNarrative
	case CategoryChapters:
		return s.TrackChapters
	}
	return false
}

// CustomPrompt returns the override configured for a prompt name, if any.
func (s *Settings) CustomPrompt(name string) (PromptOverride, bool) {
	o, ok := s.prompts[name]
	return o, ok
}

// HasCustomPrompt reports whether a prompt name has an override configured.
// Batch generation is skipped for overridden prompts, which are authored
// against the single-target schema.
func (s *Settings) HasCustomPrompt(name string) bool {
	_, ok := s.prompts[name]
	return ok
}

// SetPrompts replaces the override table. Mainly used by tests and by the
// loader itself.
func (s *Settings) SetPrompts(prompts map[string]PromptOverride) {
	s.prompts = prompts
}
