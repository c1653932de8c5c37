package threshold_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/analytic/threshold"
	"github.com/c360/streamlytics/data"
	"github.com/c360/streamlytics/testutil"
)

func newDetector(t *testing.T, bus analytic.Bus, params map[string]string) analytic.Analytic {
	t.Helper()
	cfg := analytic.NewConfig("Threshold", []string{"in.temp"}, []string{"out.breach"}, params)
	a, err := threshold.New(cfg, analytic.Dependencies{Bus: bus})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	return a
}

func feed(t *testing.T, bus *testutil.MemBus, source string, value, ts float64) {
	t.Helper()
	require.NoError(t, bus.Publish(context.Background(), "in.temp", data.New("in.temp", source, ts, value)))
}

func TestDurationRepeatLaw(t *testing.T) {
	bus := testutil.NewMemBus()
	newDetector(t, bus, map[string]string{
		"threshold": "10",
		"direction": "rising",
		"duration":  "5",
		"repeats":   "2",
	})

	for _, ts := range []float64{0, 3, 6, 11, 14, 20} {
		feed(t, bus, "s1", 12, ts)
	}

	anomalies := bus.Records("out.breach")
	require.Len(t, anomalies, 2)
	assert.Equal(t, 6.0, anomalies[0].Timestamp)
	assert.Equal(t, 11.0, anomalies[1].Timestamp)
	for _, rec := range anomalies {
		assert.Equal(t, data.TypeAnomaly, rec.Type)
		assert.Equal(t, "out.breach", rec.StreamName)
		dir, _ := rec.Param(data.ParamDirection)
		assert.Equal(t, "rising", dir)
		src, _ := rec.Param(data.ParamAnomalySource)
		assert.Equal(t, "Threshold", src)
	}
}

func TestImmediateFireWithoutDuration(t *testing.T) {
	bus := testutil.NewMemBus()
	newDetector(t, bus, map[string]string{"threshold": "10"})

	feed(t, bus, "s1", 12, 0)
	feed(t, bus, "s1", 13, 1) // still breaching, same episode
	assert.Len(t, bus.Records("out.breach"), 1)

	// Recovery then a new breach starts a fresh episode
	feed(t, bus, "s1", 5, 2)
	feed(t, bus, "s1", 15, 3)
	assert.Len(t, bus.Records("out.breach"), 2)
}

func TestFallingDirection(t *testing.T) {
	bus := testutil.NewMemBus()
	newDetector(t, bus, map[string]string{"threshold": "10", "direction": "falling"})

	feed(t, bus, "s1", 12, 0)
	assert.Empty(t, bus.Records("out.breach"))
	feed(t, bus, "s1", 8, 1)
	assert.Len(t, bus.Records("out.breach"), 1)
}

func TestRecoveryClearsAccumulation(t *testing.T) {
	bus := testutil.NewMemBus()
	newDetector(t, bus, map[string]string{"threshold": "10", "duration": "5"})

	feed(t, bus, "s1", 12, 0)
	feed(t, bus, "s1", 12, 4)
	feed(t, bus, "s1", 5, 5) // clears
	feed(t, bus, "s1", 12, 6)
	feed(t, bus, "s1", 12, 9) // only 3s into the new episode
	assert.Empty(t, bus.Records("out.breach"))

	feed(t, bus, "s1", 12, 11)
	assert.Len(t, bus.Records("out.breach"), 1)
}

func TestPartitionsAreIndependent(t *testing.T) {
	bus := testutil.NewMemBus()
	newDetector(t, bus, map[string]string{"threshold": "10", "duration": "5"})

	feed(t, bus, "a", 12, 0)
	feed(t, bus, "b", 12, 3)
	feed(t, bus, "a", 12, 5)
	assert.Len(t, bus.Records("out.breach"), 1)
	assert.Equal(t, "a", bus.Records("out.breach")[0].SourceID)
}

func TestCrossingDirection(t *testing.T) {
	bus := testutil.NewMemBus()
	newDetector(t, bus, map[string]string{"threshold": "10", "direction": "crossing"})

	feed(t, bus, "s1", 5, 0) // establishes normal side: below
	assert.Empty(t, bus.Records("out.breach"))

	feed(t, bus, "s1", 15, 1) // crossing up fires and flips normal
	require.Len(t, bus.Records("out.breach"), 1)

	feed(t, bus, "s1", 16, 2) // above is now normal
	assert.Len(t, bus.Records("out.breach"), 1)

	feed(t, bus, "s1", 4, 3) // crossing back down fires again
	assert.Len(t, bus.Records("out.breach"), 2)
}

func TestCrossingOverridesRepeats(t *testing.T) {
	bus := testutil.NewMemBus()
	cfg := analytic.NewConfig("Threshold", []string{"in.temp"}, []string{"out.breach"}, map[string]string{
		"threshold": "10",
		"direction": "crossing",
		"repeats":   "5",
	})
	a, err := threshold.New(cfg, analytic.Dependencies{Bus: bus})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	feed(t, bus, "s1", 5, 0)
	feed(t, bus, "s1", 15, 1)
	feed(t, bus, "s1", 15, 10)
	feed(t, bus, "s1", 15, 20)
	assert.Len(t, bus.Records("out.breach"), 1)
}

func TestResetReproducesFreshOutput(t *testing.T) {
	bus := testutil.NewMemBus()
	a := newDetector(t, bus, map[string]string{"threshold": "10", "duration": "5"})

	feed(t, bus, "s1", 12, 0)
	feed(t, bus, "s1", 12, 6)
	require.Len(t, bus.Records("out.breach"), 1)

	a.Reset()
	// After reset the same first record must behave like a fresh
	// instance's first record: a new episode with nothing fired yet.
	feed(t, bus, "s1", 12, 0)
	assert.Len(t, bus.Records("out.breach"), 1)
	feed(t, bus, "s1", 12, 5)
	assert.Len(t, bus.Records("out.breach"), 2)
}

func TestConfigRejections(t *testing.T) {
	bus := testutil.NewMemBus()
	tests := []struct {
		name   string
		params map[string]string
	}{
		{"missing threshold", map[string]string{}},
		{"bad direction", map[string]string{"threshold": "1", "direction": "sideways"}},
		{"negative repeats", map[string]string{"threshold": "1", "repeats": "-1"}},
		{"unparsable duration", map[string]string{"threshold": "1", "duration": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := analytic.NewConfig("Threshold", []string{"a"}, []string{"b"}, tt.params)
			_, err := threshold.New(cfg, analytic.Dependencies{Bus: bus})
			assert.Error(t, err)
		})
	}
}
