package analytic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsGoodConfig(t *testing.T) {
	cfg := NewConfig("Threshold", []string{"in.temp"}, []string{"out.breach"}, nil)
	assert.NoError(t, cfg.Validate("Threshold", 1, 1))
}

func TestValidateNameIsCaseInsensitive(t *testing.T) {
	cfg := NewConfig("threshold", []string{"a"}, []string{"b"}, nil)
	assert.NoError(t, cfg.Validate("THRESHOLD", 1, 1))
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		inputs  int
		outputs int
	}{
		{
			"wrong name",
			NewConfig("Drift", []string{"a"}, []string{"b"}, nil),
			1, 1,
		},
		{
			"wrong input arity",
			NewConfig("X", []string{"a", "b"}, []string{"c"}, nil),
			1, 1,
		},
		{
			"blank input channel",
			NewConfig("X", []string{"  "}, []string{"c"}, nil),
			1, 1,
		},
		{
			"duplicate input channel",
			NewConfig("X", []string{"a", "a"}, []string{"c"}, nil),
			2, 1,
		},
		{
			"input output overlap",
			NewConfig("X", []string{"a"}, []string{"a"}, nil),
			1, 1,
		},
		{
			"arity any requires at least one",
			NewConfig("X", nil, []string{"c"}, nil),
			ArityAny, 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate("X", tt.inputs, tt.outputs))
		})
	}
}

func TestParamsNormalizedAtConstruction(t *testing.T) {
	cfg := NewConfig("X", []string{"a"}, []string{"b"}, map[string]string{
		" Threshold ": " 10.5 ",
		"DIRECTION":   "rising",
	})

	assert.True(t, cfg.HasParam("threshold"))
	assert.True(t, cfg.HasParam("ThReShOlD"))
	assert.Equal(t, "rising", cfg.ParamString("Direction", ""))

	f, err := cfg.ParamFloat("threshold", 0)
	require.NoError(t, err)
	assert.Equal(t, 10.5, f)
}

func TestParamsNormalizedOnUnmarshal(t *testing.T) {
	raw := []byte(`{
		"name": "Threshold",
		"inputChannels": ["in.temp"],
		"outputChannels": ["out.breach"],
		"params": {" Duration ": "5", "REPEATS": "2"}
	}`)

	var cfg Config
	require.NoError(t, json.Unmarshal(raw, &cfg))

	i, err := cfg.ParamInt("duration", 0)
	require.NoError(t, err)
	assert.Equal(t, 5, i)
	assert.True(t, cfg.HasParam("repeats"))
}

func TestTypedAccessors(t *testing.T) {
	cfg := NewConfig("X", []string{"a"}, []string{"b"}, map[string]string{
		"count":   "3",
		"enabled": "true",
		"bogus":   "not-a-number",
	})

	i, err := cfg.ParamInt("count", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	i, err = cfg.ParamInt("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, i)

	b, err := cfg.ParamBool("enabled", false)
	require.NoError(t, err)
	assert.True(t, b)

	_, err = cfg.ParamFloat("bogus", 0)
	assert.Error(t, err)

	_, err = cfg.ParamInt("bogus", 0)
	assert.Error(t, err)
}

func TestMandatoryParams(t *testing.T) {
	cfg := NewConfig("X", []string{"a"}, []string{"b"}, map[string]string{"t": "1.5"})

	f, err := cfg.MandatoryParamFloat("t")
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	_, err = cfg.MandatoryParamFloat("absent")
	assert.Error(t, err)

	_, err = cfg.MandatoryParamString("absent")
	assert.Error(t, err)
}
