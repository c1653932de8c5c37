package analytic

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/c360/streamlytics/errors"
)

// ArityAny allows any channel count of at least one during validation
const ArityAny = -1

// Params is a case-insensitive string map. Keys are lowercased and
// whitespace-trimmed once at parse time, never at lookup sites.
type Params map[string]string

// NormalizeParams returns a copy of raw with normalized keys and trimmed values
func NormalizeParams(raw map[string]string) Params {
	if raw == nil {
		return nil
	}
	p := make(Params, len(raw))
	for k, v := range raw {
		p[normalizeKey(k)] = strings.TrimSpace(v)
	}
	return p
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// UnmarshalJSON normalizes keys while decoding
func (p *Params) UnmarshalJSON(raw []byte) error {
	var plain map[string]string
	if err := json.Unmarshal(raw, &plain); err != nil {
		return err
	}
	*p = NormalizeParams(plain)
	return nil
}

// Config is the validated configuration of one analytic instance.
// Downstream code treats it as read-only after validation.
type Config struct {
	Name           string   `json:"name"`
	InputChannels  []string `json:"inputChannels"`
	OutputChannels []string `json:"outputChannels"`
	Params         Params   `json:"params,omitempty"`

	// ManagementID addresses this instance on the shared management
	// channel. Empty disables management command handling.
	ManagementID string `json:"managementId,omitempty"`
}

// NewConfig builds a Config with normalized params
func NewConfig(name string, inputs, outputs []string, params map[string]string) Config {
	return Config{
		Name:           name,
		InputChannels:  inputs,
		OutputChannels: outputs,
		Params:         NormalizeParams(params),
	}
}

// Validate checks the configuration against an analytic's contract:
// case-insensitive name match, channel arity, blankness, uniqueness and
// input/output disjointness. ArityAny accepts any count of at least one.
func (c *Config) Validate(analyticName string, numInputs, numOutputs int) error {
	if !strings.EqualFold(c.Name, analyticName) {
		return errors.WrapInvalid(
			fmt.Errorf("config name %q does not match analytic %q", c.Name, analyticName),
			"Config", "Validate", "name check")
	}

	if err := checkChannels("input", c.InputChannels, numInputs); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "input channels")
	}
	if err := checkChannels("output", c.OutputChannels, numOutputs); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "output channels")
	}

	inputs := make(map[string]bool, len(c.InputChannels))
	for _, ch := range c.InputChannels {
		inputs[ch] = true
	}
	for _, ch := range c.OutputChannels {
		if inputs[ch] {
			return errors.WrapInvalid(
				fmt.Errorf("channel %q appears as both input and output", ch),
				"Config", "Validate", "channel disjointness")
		}
	}
	return nil
}

func checkChannels(kind string, channels []string, want int) error {
	if want == ArityAny {
		if len(channels) == 0 {
			return fmt.Errorf("at least one %s channel required", kind)
		}
	} else if len(channels) != want {
		return fmt.Errorf("expected %d %s channel(s), got %d", want, kind, len(channels))
	}

	seen := make(map[string]bool, len(channels))
	for _, ch := range channels {
		if strings.TrimSpace(ch) == "" {
			return fmt.Errorf("blank %s channel name", kind)
		}
		if seen[ch] {
			return fmt.Errorf("duplicate %s channel %q", kind, ch)
		}
		seen[ch] = true
	}
	return nil
}

// HasParam reports whether the named param is present
func (c *Config) HasParam(key string) bool {
	_, ok := c.Params[normalizeKey(key)]
	return ok
}

// ParamString returns the named param or def when absent
func (c *Config) ParamString(key, def string) string {
	if v, ok := c.Params[normalizeKey(key)]; ok {
		return v
	}
	return def
}

// ParamFloat returns the named param parsed as float64, or def when absent
func (c *Config) ParamFloat(key string, def float64) (float64, error) {
	v, ok := c.Params[normalizeKey(key)]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.WrapInvalid(
			fmt.Errorf("param %q: %q is not a number", key, v),
			"Config", "ParamFloat", "parse param")
	}
	return f, nil
}

// ParamInt returns the named param parsed as int, or def when absent
func (c *Config) ParamInt(key string, def int) (int, error) {
	v, ok := c.Params[normalizeKey(key)]
	if !ok {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.WrapInvalid(
			fmt.Errorf("param %q: %q is not an integer", key, v),
			"Config", "ParamInt", "parse param")
	}
	return i, nil
}

// ParamBool returns the named param parsed as bool, or def when absent
func (c *Config) ParamBool(key string, def bool) (bool, error) {
	v, ok := c.Params[normalizeKey(key)]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.WrapInvalid(
			fmt.Errorf("param %q: %q is not a boolean", key, v),
			"Config", "ParamBool", "parse param")
	}
	return b, nil
}

// MandatoryParamFloat returns the named param parsed as float64, or an
// error when absent or unparsable
func (c *Config) MandatoryParamFloat(key string) (float64, error) {
	if !c.HasParam(key) {
		return 0, errors.WrapInvalid(
			fmt.Errorf("param %q is required", key),
			"Config", "MandatoryParamFloat", "missing param")
	}
	return c.ParamFloat(key, 0)
}

// MandatoryParamString returns the named param, or an error when absent or blank
func (c *Config) MandatoryParamString(key string) (string, error) {
	v := c.ParamString(key, "")
	if v == "" {
		return "", errors.WrapInvalid(
			fmt.Errorf("param %q is required", key),
			"Config", "MandatoryParamString", "missing param")
	}
	return v, nil
}

// Input returns the i-th input channel name
func (c *Config) Input(i int) string {
	return c.InputChannels[i]
}

// Output returns the i-th output channel name
func (c Config) Output(i int) string {
	return c.OutputChannels[i]
}
