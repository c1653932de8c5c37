// Package stats provides the incremental windowed statistics primitives
// shared by the analytics: time-weighted exponential moving average and
// variance, Bollinger bands, and bucketed moving sums.
package stats

import "math"

// TimeWeightedMA maintains a time-weighted exponential moving average
// and variance over an irregularly sampled value stream. The window
// constant T controls the decay rate: each update is weighted by
// a = e^(-elapsed/T) relative to the accumulated state.
//
// Out-of-order samples are ignored. Samples sharing a timestamp are
// averaged into the current sample instead of advancing time, so
// duplicate-timestamp bursts do not distort the decay.
type TimeWeightedMA struct {
	window float64

	initialized  bool
	mean         float64
	variance     float64
	prevMean     float64 // state before the current instant
	prevVariance float64
	currentValue float64 // running average of samples at the current instant
	sampleCount  float64 // samples coalesced at the current instant
	lastDecay    float64
	lastTime     float64
}

// NewTimeWeightedMA creates an uninitialized average with window constant T.
// The first Update seeds the state.
func NewTimeWeightedMA(window float64) *TimeWeightedMA {
	return &TimeWeightedMA{window: window}
}

// Init seeds the state: mean = value, variance = 0
func (m *TimeWeightedMA) Init(value, timestamp float64) {
	m.initialized = true
	m.mean = value
	m.variance = 0
	m.prevMean = value
	m.prevVariance = 0
	m.currentValue = value
	m.sampleCount = 1
	m.lastDecay = 0
	m.lastTime = timestamp
}

// Update folds a new sample into the average
func (m *TimeWeightedMA) Update(value, timestamp float64) {
	if !m.initialized {
		m.Init(value, timestamp)
		return
	}

	elapsed := timestamp - m.lastTime
	if elapsed < 0 {
		// Out-of-order sample
		return
	}
	if elapsed == 0 {
		// Coalesce duplicate timestamps: average into the current sample
		// and recompute from the pre-instant state with the same decay.
		m.currentValue = (m.currentValue*m.sampleCount + value) / (m.sampleCount + 1)
		m.sampleCount++
		m.apply()
		return
	}

	m.prevMean = m.mean
	m.prevVariance = m.variance
	m.currentValue = value
	m.sampleCount = 1
	m.lastDecay = math.Exp(-elapsed / m.window)
	m.lastTime = timestamp
	m.apply()
}

// apply recomputes mean and variance from the pre-instant state. The
// variance recurrence uses the previous mean, not the updated one.
func (m *TimeWeightedMA) apply() {
	a := m.lastDecay
	v := m.currentValue
	diff := v - m.prevMean
	m.mean = v + a*(m.prevMean-v)
	m.variance = a * (m.prevVariance + (1-a)*diff*diff)
}

// Initialized reports whether the average has consumed a sample
func (m *TimeWeightedMA) Initialized() bool {
	return m.initialized
}

// Mean returns the current time-weighted moving average
func (m *TimeWeightedMA) Mean() float64 {
	return m.mean
}

// Variance returns the current time-weighted moving variance
func (m *TimeWeightedMA) Variance() float64 {
	return m.variance
}

// StdDev returns the standard deviation, clamped at zero
func (m *TimeWeightedMA) StdDev() float64 {
	if m.variance <= 0 {
		return 0
	}
	return math.Sqrt(m.variance)
}

// LastTime returns the timestamp of the most recent accepted sample
func (m *TimeWeightedMA) LastTime() float64 {
	return m.lastTime
}
