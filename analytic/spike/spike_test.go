package spike_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/analytic/spike"
	"github.com/c360/streamlytics/data"
	"github.com/c360/streamlytics/testutil"
)

func newDetector(t *testing.T, bus analytic.Bus, params map[string]string) analytic.Analytic {
	t.Helper()
	cfg := analytic.NewConfig("Spike", []string{"in.v"}, []string{"out.spike"}, params)
	a, err := spike.New(cfg, analytic.Dependencies{Bus: bus})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	return a
}

func feed(t *testing.T, bus *testutil.MemBus, value, ts float64) {
	t.Helper()
	require.NoError(t, bus.Publish(context.Background(), "in.v", data.New("in.v", "s1", ts, value)))
}

func TestSpikeAboveBand(t *testing.T) {
	bus := testutil.NewMemBus()
	newDetector(t, bus, map[string]string{"window": "10"})

	for ts := 0.0; ts < 20; ts++ {
		feed(t, bus, 50, ts)
	}
	assert.Empty(t, bus.Records("out.spike"))

	feed(t, bus, 80, 20)
	recs := bus.Records("out.spike")
	require.Len(t, recs, 1)
	assert.Equal(t, data.TypeAnomaly, recs[0].Type)
	dir, _ := recs[0].Param(data.ParamDirection)
	assert.Equal(t, spike.DirectionUp, dir)
	src, _ := recs[0].Param(data.ParamAnomalySource)
	assert.Equal(t, "Spike", src)
}

func TestSpikeBelowBand(t *testing.T) {
	bus := testutil.NewMemBus()
	newDetector(t, bus, map[string]string{"window": "10"})

	for ts := 0.0; ts < 20; ts++ {
		feed(t, bus, 50, ts)
	}
	feed(t, bus, 20, 20)

	recs := bus.Records("out.spike")
	require.Len(t, recs, 1)
	dir, _ := recs[0].Param(data.ParamDirection)
	assert.Equal(t, spike.DirectionDown, dir)
}

func TestBandAdaptsAfterSpike(t *testing.T) {
	bus := testutil.NewMemBus()
	newDetector(t, bus, map[string]string{"window": "5"})

	for ts := 0.0; ts < 10; ts++ {
		feed(t, bus, 50, ts)
	}
	feed(t, bus, 80, 10)
	require.Len(t, bus.Records("out.spike"), 1)

	// The outlier widened the band, so values drifting back are normal
	for ts := 11.0; ts < 30; ts++ {
		feed(t, bus, 55, ts)
	}
	assert.Len(t, bus.Records("out.spike"), 1)
}

func TestFirstSampleNeverFires(t *testing.T) {
	bus := testutil.NewMemBus()
	newDetector(t, bus, map[string]string{"window": "10"})

	feed(t, bus, 1e9, 0)
	assert.Empty(t, bus.Records("out.spike"))
}

func TestConfigRejections(t *testing.T) {
	bus := testutil.NewMemBus()
	for name, params := range map[string]map[string]string{
		"missing window":  nil,
		"zero multiplier": {"window": "10", "multiplier": "0"},
	} {
		t.Run(name, func(t *testing.T) {
			cfg := analytic.NewConfig("Spike", []string{"a"}, []string{"b"}, params)
			_, err := spike.New(cfg, analytic.Dependencies{Bus: bus})
			assert.Error(t, err)
		})
	}
}
