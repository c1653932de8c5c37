package compute_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/analytic/compute"
	"github.com/c360/streamlytics/data"
	"github.com/c360/streamlytics/testutil"
)

func newOperator(t *testing.T, bus analytic.Bus, params map[string]string) analytic.Analytic {
	t.Helper()
	cfg := analytic.NewConfig("Compute", []string{"in.f"}, []string{"out.c"}, params)
	a, err := compute.New(cfg, analytic.Dependencies{Bus: bus})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	return a
}

func TestFahrenheitToCelsiusPipeline(t *testing.T) {
	bus := testutil.NewMemBus()
	newOperator(t, bus, map[string]string{"expression": "(${dValue}-32) * 5/9"})

	require.NoError(t, bus.Publish(context.Background(), "in.f", data.New("in.f", "s1", 0, 212)))

	recs := bus.Records("out.c")
	require.Len(t, recs, 1)
	assert.Equal(t, data.TypeComputed, recs[0].Type)
	assert.InDelta(t, 100.0, recs[0].DValue, 1e-9)
}

func TestParamsFeedTheFormula(t *testing.T) {
	bus := testutil.NewMemBus()
	newOperator(t, bus, map[string]string{
		"expression": "${dValue} * ${PARAM.scale}",
		"scale":      "3",
	})

	require.NoError(t, bus.Publish(context.Background(), "in.f", data.New("in.f", "s1", 0, 7)))
	recs := bus.Records("out.c")
	require.Len(t, recs, 1)
	assert.InDelta(t, 21.0, recs[0].DValue, 1e-9)
}

func TestRuntimeNaNDoesNotStopTheStream(t *testing.T) {
	bus := testutil.NewMemBus()
	newOperator(t, bus, map[string]string{"expression": "${sValue} + 1"})

	bad := data.New("in.f", "s1", 0, 0)
	bad.SValue = "garbage"
	require.NoError(t, bus.Publish(context.Background(), "in.f", bad))

	good := data.New("in.f", "s1", 1, 0)
	good.SValue = "41"
	require.NoError(t, bus.Publish(context.Background(), "in.f", good))

	recs := bus.Records("out.c")
	require.Len(t, recs, 2)
	assert.True(t, math.IsNaN(recs[0].DValue))
	assert.InDelta(t, 42.0, recs[1].DValue, 1e-9)
}

func TestBadFormulaFailsConstruction(t *testing.T) {
	bus := testutil.NewMemBus()
	for name, formula := range map[string]string{
		"unknown function": "warp(${dValue})",
		"unmatched":        "(1+2",
		"missing":          "",
	} {
		t.Run(name, func(t *testing.T) {
			params := map[string]string{}
			if formula != "" {
				params["expression"] = formula
			}
			cfg := analytic.NewConfig("Compute", []string{"a"}, []string{"b"}, params)
			_, err := compute.New(cfg, analytic.Dependencies{Bus: bus})
			assert.Error(t, err)
		})
	}
}
