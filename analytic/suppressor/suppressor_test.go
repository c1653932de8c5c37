package suppressor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/analytic/suppressor"
	"github.com/c360/streamlytics/data"
	"github.com/c360/streamlytics/testutil"
)

func newGate(t *testing.T, bus analytic.Bus, params map[string]string) analytic.Analytic {
	t.Helper()
	cfg := analytic.NewConfig("Suppressor", []string{"in.g"}, []string{"out.g"}, params)
	a, err := suppressor.New(cfg, analytic.Dependencies{Bus: bus})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	return a
}

func feed(t *testing.T, bus *testutil.MemBus, ts float64, params map[string]string) {
	t.Helper()
	rec := data.New("in.g", "s1", ts, 1)
	for k, v := range params {
		rec.SetParam(k, v)
	}
	require.NoError(t, bus.Publish(context.Background(), "in.g", rec))
}

func TestTriggerOpensAndSwallows(t *testing.T) {
	bus := testutil.NewMemBus()
	newGate(t, bus, map[string]string{"triggerParam": "alarm"})

	feed(t, bus, 0, nil) // gate closed, passes
	assert.Len(t, bus.Records("out.g"), 1)

	feed(t, bus, 1, map[string]string{"alarm": "on"}) // trigger passes and opens
	assert.Len(t, bus.Records("out.g"), 2)

	feed(t, bus, 2, nil) // swallowed
	feed(t, bus, 3, nil) // swallowed
	assert.Len(t, bus.Records("out.g"), 2)
}

func TestActionParamLimitsSuppression(t *testing.T) {
	bus := testutil.NewMemBus()
	newGate(t, bus, map[string]string{
		"triggerParam": "alarm",
		"actionParam":  "kind",
		"actionValue":  "noise",
	})

	feed(t, bus, 0, map[string]string{"alarm": "on"})
	feed(t, bus, 1, map[string]string{"kind": "noise"})  // swallowed
	feed(t, bus, 2, map[string]string{"kind": "signal"}) // passes
	feed(t, bus, 3, nil)                                 // passes

	recs := bus.Records("out.g")
	require.Len(t, recs, 3)
	assert.Equal(t, 0.0, recs[0].Timestamp)
	assert.Equal(t, 2.0, recs[1].Timestamp)
	assert.Equal(t, 3.0, recs[2].Timestamp)
}

func TestResetParamClosesGate(t *testing.T) {
	bus := testutil.NewMemBus()
	newGate(t, bus, map[string]string{
		"triggerParam": "alarm",
		"resetParam":   "clear",
	})

	feed(t, bus, 0, map[string]string{"alarm": "on"})
	feed(t, bus, 1, nil) // swallowed
	feed(t, bus, 2, map[string]string{"clear": "yes"})
	feed(t, bus, 3, nil) // gate closed again

	assert.Len(t, bus.Records("out.g"), 3)
}

func TestDurationClosesGate(t *testing.T) {
	bus := testutil.NewMemBus()
	newGate(t, bus, map[string]string{
		"triggerParam": "alarm",
		"duration":     "5",
	})

	feed(t, bus, 0, map[string]string{"alarm": "on"})
	feed(t, bus, 3, nil) // inside window, swallowed
	feed(t, bus, 5, nil) // window elapsed, passes
	feed(t, bus, 6, nil) // still closed

	assert.Len(t, bus.Records("out.g"), 3)
}

func TestRepeatedTriggerRestartsWindow(t *testing.T) {
	bus := testutil.NewMemBus()
	newGate(t, bus, map[string]string{
		"triggerParam": "alarm",
		"duration":     "5",
	})

	feed(t, bus, 0, map[string]string{"alarm": "on"})
	feed(t, bus, 4, map[string]string{"alarm": "on"}) // restarts window
	feed(t, bus, 7, nil)                              // inside restarted window
	feed(t, bus, 9, nil)                              // elapsed

	assert.Len(t, bus.Records("out.g"), 3)
}

func TestTriggerValueMustMatch(t *testing.T) {
	bus := testutil.NewMemBus()
	newGate(t, bus, map[string]string{
		"triggerParam": "alarm",
		"triggerValue": "critical",
	})

	feed(t, bus, 0, map[string]string{"alarm": "minor"})
	feed(t, bus, 1, nil) // gate never opened
	assert.Len(t, bus.Records("out.g"), 2)

	feed(t, bus, 2, map[string]string{"alarm": "critical"})
	feed(t, bus, 3, nil) // swallowed
	assert.Len(t, bus.Records("out.g"), 3)
}

func TestGatesArePerSource(t *testing.T) {
	bus := testutil.NewMemBus()
	newGate(t, bus, map[string]string{"triggerParam": "alarm"})

	trig := data.New("in.g", "a", 0, 1)
	trig.SetParam("alarm", "on")
	require.NoError(t, bus.Publish(context.Background(), "in.g", trig))

	require.NoError(t, bus.Publish(context.Background(), "in.g", data.New("in.g", "a", 1, 1))) // swallowed
	require.NoError(t, bus.Publish(context.Background(), "in.g", data.New("in.g", "b", 1, 1))) // passes

	recs := bus.Records("out.g")
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[1].SourceID)
}

func TestResetClearsGates(t *testing.T) {
	bus := testutil.NewMemBus()
	a := newGate(t, bus, map[string]string{"triggerParam": "alarm"})

	feed(t, bus, 0, map[string]string{"alarm": "on"})
	a.Reset()
	feed(t, bus, 1, nil) // gate state cleared, passes
	assert.Len(t, bus.Records("out.g"), 2)
}

func TestConfigRejections(t *testing.T) {
	bus := testutil.NewMemBus()
	cfg := analytic.NewConfig("Suppressor", []string{"a"}, []string{"b"}, nil)
	_, err := suppressor.New(cfg, analytic.Dependencies{Bus: bus})
	assert.Error(t, err)

	cfg = analytic.NewConfig("Suppressor", []string{"a"}, []string{"b"},
		map[string]string{"triggerParam": "alarm", "duration": "-1"})
	_, err = suppressor.New(cfg, analytic.Dependencies{Bus: bus})
	assert.Error(t, err)
}
