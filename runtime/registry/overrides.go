package registry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrUnknownKey indicates an override naming an unregistered entry.
var ErrUnknownKey = errors.New("unknown renderer key")

// Overrides adjusts registered entries without code changes.
//
//	priorities:
//	  tool-weather: 50
//	disabled:
//	  - reasoning
type Overrides struct {
	Priorities map[string]int `yaml:"priorities"`
	Disabled   []string       `yaml:"disabled"`
}

// ParseOverrides decodes YAML overrides.
func ParseOverrides(data []byte) (Overrides, error) {
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Overrides{}, fmt.Errorf("parse renderer overrides: %w", err)
	}
	return o, nil
}

// LoadOverrides reads and decodes a YAML overrides file.
func LoadOverrides(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Overrides{}, fmt.Errorf("read renderer overrides: %w", err)
	}
	return ParseOverrides(data)
}

// Apply updates priorities and disables entries. Known keys are always
// applied; unknown keys are reported together in the returned error.
func (r *Registry) Apply(o Overrides) error {
	var errs []error
	for key, priority := range o.Priorities {
		if !r.update(key, func(reg *registered) { reg.Priority = priority }) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownKey, key))
		}
	}
	for _, key := range o.Disabled {
		if !r.update(key, func(reg *registered) { reg.disabled = true }) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownKey, key))
		}
	}
	r.logger.Info(context.Background(), "renderer overrides applied",
		"priorities", len(o.Priorities), "disabled", len(o.Disabled), "unknown", len(errs))
	return errors.Join(errs...)
}
