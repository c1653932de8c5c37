package stats

// Bollinger tracks a moving band around a time-weighted average: the
// band spans mean ± stddev*multiplier.
type Bollinger struct {
	ma         *TimeWeightedMA
	multiplier float64
}

// NewBollinger creates a band over a time-weighted average with the
// given window constant and standard-deviation multiplier.
func NewBollinger(window, multiplier float64) *Bollinger {
	return &Bollinger{
		ma:         NewTimeWeightedMA(window),
		multiplier: multiplier,
	}
}

// Update folds a sample into the underlying average
func (b *Bollinger) Update(value, timestamp float64) {
	b.ma.Update(value, timestamp)
}

// Initialized reports whether the band has consumed a sample
func (b *Bollinger) Initialized() bool {
	return b.ma.Initialized()
}

// Mean returns the band's midline
func (b *Bollinger) Mean() float64 {
	return b.ma.Mean()
}

// Upper returns mean + stddev*multiplier
func (b *Bollinger) Upper() float64 {
	return b.ma.Mean() + b.ma.StdDev()*b.multiplier
}

// Lower returns mean - stddev*multiplier
func (b *Bollinger) Lower() float64 {
	return b.ma.Mean() - b.ma.StdDev()*b.multiplier
}

// Contains reports whether a value falls inside the band, inclusive
func (b *Bollinger) Contains(value float64) bool {
	return value >= b.Lower() && value <= b.Upper()
}
