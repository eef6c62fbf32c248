// Package config provides YAML-based configuration loading with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Load loads configuration from a YAML file with environment variable expansion.
// Fields absent from the file keep the values already set in target.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	if err := Parse(data, target); err != nil {
		return fmt.Errorf("config file %s: %w", filename, err)
	}
	return nil
}

// Parse expands environment variables in data, decodes it into target and
// validates the result when target implements Validator.
//
// Both ${VAR} and ${VAR:-default} are expanded; an unset variable without a
// default expands to the empty string.
func Parse[T any](data []byte, target *T) error {
	expanded := os.Expand(string(data), lookupEnv)

	if err := yaml.Unmarshal([]byte(expanded), target); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	return nil
}

func lookupEnv(key string) string {
	name, def, hasDefault := strings.Cut(key, ":-")
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	if hasDefault {
		return def
	}
	return ""
}
