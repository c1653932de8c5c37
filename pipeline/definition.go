// Package pipeline assembles analytics into named, durable pipelines:
// a Definition declares the analytics and their channel wiring, the
// Engine instantiates and runs them as a group, and the Store persists
// definitions in a key-value bucket.
package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/errors"
)

// Definition declares one pipeline: an ordered list of analytic
// configurations wired together through their channel names.
type Definition struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Analytics   []analytic.Config `json:"analytics"`
}

// Validate checks the definition against a registry. It verifies shape
// only; per-analytic parameter validation happens at construction.
func (d *Definition) Validate(reg *analytic.Registry) error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: pipeline name is blank", errors.ErrInvalidConfig), "pipeline", "Validate", "check pipeline name")
	}
	if len(d.Analytics) == 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: pipeline %q has no analytics", errors.ErrInvalidConfig, d.Name), "pipeline", "Validate", "check analytics")
	}
	for i, cfg := range d.Analytics {
		if _, ok := reg.Lookup(cfg.Name); !ok {
			return errors.WrapInvalid(fmt.Errorf("%w: analytic %d references unknown type %q",
				errors.ErrInvalidConfig, i, cfg.Name),
				"pipeline", "Validate", "resolve analytic")
		}
	}
	return nil
}

// Marshal encodes the definition as JSON
func (d *Definition) Marshal() ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, errors.WrapInvalid(err, "pipeline", "Marshal", "encode definition")
	}
	return raw, nil
}

// UnmarshalDefinition decodes a JSON definition
func UnmarshalDefinition(raw []byte) (*Definition, error) {
	var d Definition
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "pipeline", "UnmarshalDefinition", "decode definition")
	}
	return &d, nil
}
