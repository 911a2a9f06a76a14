package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PromptOverride replaces an extractor's built-in prompt templates. Empty
// fields keep the built-in value; Temperature overrides only when set.
type PromptOverride struct {
	System      string   `yaml:"system"`
	User        string   `yaml:"user"`
	Temperature *float64 `yaml:"temperature"`
}

type promptFile struct {
	Prompts map[string]PromptOverride `yaml:"prompts"`
}

// LoadPrompts reads a YAML prompt override file keyed by prompt name.
func LoadPrompts(path string) (map[string]PromptOverride, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}
	var file promptFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse prompt file %s: %w", path, err)
	}
	if len(file.Prompts) == 0 {
		return nil, fmt.Errorf("prompt file %s declares no prompts", path)
	}
	return file.Prompts, nil
}
