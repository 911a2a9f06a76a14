// Package config loads typed configuration from the process environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv builds a T from its env-tagged fields, applying envDefault
// values for variables the environment leaves unset.
func ParseEnv[T any]() (T, error) {
	parsed, err := env.ParseAs[T]()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("parse env: %w", err)
	}
	return parsed, nil
}
