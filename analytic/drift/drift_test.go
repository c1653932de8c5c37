package drift_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/analytic/drift"
	"github.com/c360/streamlytics/data"
	"github.com/c360/streamlytics/testutil"
)

func newDetector(t *testing.T, bus analytic.Bus, params map[string]string) analytic.Analytic {
	t.Helper()
	cfg := analytic.NewConfig("Drift", []string{"in.level"}, []string{"out.drift"}, params)
	a, err := drift.New(cfg, analytic.Dependencies{Bus: bus})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	return a
}

func feed(t *testing.T, bus *testutil.MemBus, value, ts float64) {
	t.Helper()
	require.NoError(t, bus.Publish(context.Background(), "in.level", data.New("in.level", "s1", ts, value)))
}

func baseline(t *testing.T, bus *testutil.MemBus, value float64) {
	t.Helper()
	for ts := 0.0; ts <= 10; ts++ {
		feed(t, bus, value, ts)
	}
}

func TestAbsoluteOffsetBand(t *testing.T) {
	bus := testutil.NewMemBus()
	newDetector(t, bus, map[string]string{
		"offsetPeriod": "10",
		"offsetType":   "absolute",
		"offset":       "5",
	})

	baseline(t, bus, 50) // frozen band [45, 55]
	assert.Empty(t, bus.Records("out.drift"))

	feed(t, bus, 52, 11)
	assert.Empty(t, bus.Records("out.drift"))

	feed(t, bus, 60, 12)
	require.Len(t, bus.Records("out.drift"), 1)
	out := bus.Records("out.drift")[0]
	assert.Equal(t, data.TypeAnomaly, out.Type)
	src, _ := out.Param(data.ParamAnomalySource)
	assert.Equal(t, "Drift", src)

	feed(t, bus, 40, 13)
	assert.Len(t, bus.Records("out.drift"), 2)
}

func TestStdDevBandCollapsesOnConstantBaseline(t *testing.T) {
	bus := testutil.NewMemBus()
	newDetector(t, bus, map[string]string{
		"offsetPeriod": "10",
		"offset":       "2",
	})

	baseline(t, bus, 50)
	feed(t, bus, 50, 11)
	assert.Empty(t, bus.Records("out.drift"))

	feed(t, bus, 50.1, 12)
	assert.Len(t, bus.Records("out.drift"), 1)
}

func TestPercentageOffsetBand(t *testing.T) {
	bus := testutil.NewMemBus()
	newDetector(t, bus, map[string]string{
		"offsetPeriod": "10",
		"offsetType":   "percentage",
		"offset":       "10",
	})

	baseline(t, bus, 100) // frozen band [90, 110]
	feed(t, bus, 109, 11)
	assert.Empty(t, bus.Records("out.drift"))
	feed(t, bus, 111, 12)
	assert.Len(t, bus.Records("out.drift"), 1)
}

func TestIndependentLowerOffset(t *testing.T) {
	bus := testutil.NewMemBus()
	newDetector(t, bus, map[string]string{
		"offsetPeriod": "10",
		"offsetType":   "absolute",
		"offset":       "5",
		"lowerOffset":  "20",
	})

	baseline(t, bus, 50) // frozen band [30, 55]
	feed(t, bus, 40, 11)
	assert.Empty(t, bus.Records("out.drift"))
	feed(t, bus, 25, 12)
	assert.Len(t, bus.Records("out.drift"), 1)
}

func TestNaNBoundMeansNoLimit(t *testing.T) {
	bus := testutil.NewMemBus()
	newDetector(t, bus, map[string]string{
		"offsetPeriod": "10",
		"offsetType":   "absolute",
		"offset":       "5",
		"lowerOffset":  "NaN",
	})

	baseline(t, bus, 50)
	feed(t, bus, -1000, 11)
	assert.Empty(t, bus.Records("out.drift"))
	feed(t, bus, 60, 12)
	assert.Len(t, bus.Records("out.drift"), 1)
}

func TestBoundariesStayFrozen(t *testing.T) {
	bus := testutil.NewMemBus()
	newDetector(t, bus, map[string]string{
		"offsetPeriod": "10",
		"offsetType":   "absolute",
		"offset":       "5",
	})

	baseline(t, bus, 50)
	// A long run at a new level must keep breaching: the band does not adapt
	for ts := 11.0; ts <= 30; ts++ {
		feed(t, bus, 70, ts)
	}
	assert.Len(t, bus.Records("out.drift"), 20)
}

func TestPartitionsLearnSeparately(t *testing.T) {
	bus := testutil.NewMemBus()
	newDetector(t, bus, map[string]string{
		"offsetPeriod": "2",
		"offsetType":   "absolute",
		"offset":       "5",
	})

	pub := func(source string, value, ts float64) {
		require.NoError(t, bus.Publish(context.Background(), "in.level",
			data.New("in.level", source, ts, value)))
	}
	for ts := 0.0; ts <= 2; ts++ {
		pub("hot", 100, ts)
		pub("cold", 0, ts)
	}
	pub("hot", 102, 3)
	pub("cold", 102, 3)

	recs := bus.Records("out.drift")
	require.Len(t, recs, 1)
	assert.Equal(t, "cold", recs[0].SourceID)
}

func TestResetRelearnsBaseline(t *testing.T) {
	bus := testutil.NewMemBus()
	a := newDetector(t, bus, map[string]string{
		"offsetPeriod": "10",
		"offsetType":   "absolute",
		"offset":       "5",
	})

	baseline(t, bus, 50)
	feed(t, bus, 70, 11)
	require.Len(t, bus.Records("out.drift"), 1)

	a.Reset()
	// Back in the learning phase: the breaching value is just baseline data
	feed(t, bus, 70, 0)
	assert.Len(t, bus.Records("out.drift"), 1)
}

func TestConfigRejections(t *testing.T) {
	bus := testutil.NewMemBus()
	tests := []struct {
		name   string
		params map[string]string
	}{
		{"missing offset period", map[string]string{}},
		{"zero offset period", map[string]string{"offsetPeriod": "0"}},
		{"bad offset type", map[string]string{"offsetPeriod": "10", "offsetType": "wavy"}},
		{"unparsable offset", map[string]string{"offsetPeriod": "10", "offset": "wide"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := analytic.NewConfig("Drift", []string{"a"}, []string{"b"}, tt.params)
			_, err := drift.New(cfg, analytic.Dependencies{Bus: bus})
			assert.Error(t, err)
		})
	}
}
