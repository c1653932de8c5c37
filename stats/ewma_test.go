package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeWeightedMAConstantInput(t *testing.T) {
	ma := NewTimeWeightedMA(10)
	for ts := 0.0; ts < 100; ts++ {
		ma.Update(42.0, ts)
	}
	assert.InDelta(t, 42.0, ma.Mean(), 1e-9)
	assert.InDelta(t, 0.0, ma.Variance(), 1e-9)
	assert.Zero(t, ma.StdDev())
}

func TestTimeWeightedMASingleStep(t *testing.T) {
	ma := NewTimeWeightedMA(1)
	ma.Update(0, 0)
	ma.Update(10, 1)

	a := math.Exp(-1.0)
	assert.InDelta(t, 10*(1-a), ma.Mean(), 1e-9)
	assert.InDelta(t, a*(1-a)*100, ma.Variance(), 1e-9)
}

func TestTimeWeightedMAConvergesToStep(t *testing.T) {
	ma := NewTimeWeightedMA(5)
	ma.Update(0, 0)
	for ts := 1.0; ts <= 200; ts++ {
		ma.Update(100, ts)
	}
	// Many windows after the step, mean must be at the new level and
	// the variance must have decayed away.
	assert.InDelta(t, 100.0, ma.Mean(), 1e-6)
	assert.InDelta(t, 0.0, ma.Variance(), 1e-6)
}

func TestTimeWeightedMAOutOfOrderIgnored(t *testing.T) {
	ma := NewTimeWeightedMA(10)
	ma.Update(5, 10)
	mean := ma.Mean()

	ma.Update(9999, 3)
	assert.Equal(t, mean, ma.Mean())
	assert.Equal(t, 10.0, ma.LastTime())
}

func TestTimeWeightedMADuplicateTimestampsCoalesce(t *testing.T) {
	ma := NewTimeWeightedMA(10)
	ma.Update(10, 0)
	ma.Update(20, 0)
	// Averaged into the initial sample, not treated as a second tick
	assert.InDelta(t, 15.0, ma.Mean(), 1e-9)
	assert.InDelta(t, 0.0, ma.Variance(), 1e-9)

	ma.Update(30, 0)
	assert.InDelta(t, 20.0, ma.Mean(), 1e-9)
}

func TestTimeWeightedMADuplicatesAfterAdvance(t *testing.T) {
	// A burst at one instant must produce the same state as a single
	// sample carrying the burst's average.
	burst := NewTimeWeightedMA(2)
	burst.Update(0, 0)
	burst.Update(4, 1)
	burst.Update(8, 1)

	single := NewTimeWeightedMA(2)
	single.Update(0, 0)
	single.Update(6, 1)

	assert.InDelta(t, single.Mean(), burst.Mean(), 1e-9)
	assert.InDelta(t, single.Variance(), burst.Variance(), 1e-9)
}

func TestTimeWeightedMAInitialized(t *testing.T) {
	ma := NewTimeWeightedMA(10)
	require.False(t, ma.Initialized())
	ma.Update(1, 1)
	assert.True(t, ma.Initialized())
}

func TestBollingerBandsAroundMean(t *testing.T) {
	b := NewBollinger(10, 2)
	require.False(t, b.Initialized())

	for ts := 0.0; ts < 50; ts++ {
		b.Update(20, ts)
	}
	assert.True(t, b.Initialized())
	assert.InDelta(t, 20.0, b.Mean(), 1e-9)
	assert.InDelta(t, 20.0, b.Upper(), 1e-9)
	assert.InDelta(t, 20.0, b.Lower(), 1e-9)
	assert.True(t, b.Contains(20))
	assert.False(t, b.Contains(20.1))
}

func TestBollingerWidensUnderNoise(t *testing.T) {
	b := NewBollinger(10, 2)
	values := []float64{10, 30, 10, 30, 10, 30, 10, 30}
	for i, v := range values {
		b.Update(v, float64(i))
	}
	assert.Greater(t, b.Upper(), b.Mean())
	assert.Less(t, b.Lower(), b.Mean())
	assert.True(t, b.Contains(b.Mean()))
}
