// Package spike implements the Bollinger-band spike detector: values
// leaving the adaptive mean ± stddev*multiplier band emit anomalies.
package spike

import (
	"context"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/data"
	"github.com/c360/streamlytics/errors"
	"github.com/c360/streamlytics/stats"
)

// Name is the analytic's registry name
const Name = "Spike"

// Config params
const (
	ParamWindow     = "window"     // band window constant, seconds
	ParamMultiplier = "multiplier" // stddev multiple, default 2
)

// Breach directions reported in the output's direction param
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Analytic is the spike detector
type Analytic struct {
	*analytic.Core

	window     float64
	multiplier float64
	bands      map[string]*stats.Bollinger
}

// Register adds the analytic to a registry
func Register(r *analytic.Registry) error {
	return r.Register(analytic.Registration{
		Name:        Name,
		Description: "Flags values leaving an adaptive Bollinger band",
		Version:     "1.0.0",
		Factory:     New,
	})
}

// New validates the configuration and builds a detector instance
func New(cfg analytic.Config, deps analytic.Dependencies) (analytic.Analytic, error) {
	if err := cfg.Validate(Name, 1, 1); err != nil {
		return nil, err
	}
	window, err := cfg.MandatoryParamFloat(ParamWindow)
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "spike", "New", "validate window")
	}
	multiplier, err := cfg.ParamFloat(ParamMultiplier, 2)
	if err != nil {
		return nil, err
	}
	if multiplier <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "spike", "New", "validate multiplier")
	}

	a := &Analytic{
		window:     window,
		multiplier: multiplier,
		bands:      make(map[string]*stats.Bollinger),
	}
	a.Core = analytic.NewCore(cfg, deps, analytic.Handlers{
		Process: a.process,
		Reset:   a.reset,
	}, analytic.Options{})
	return a, nil
}

func (a *Analytic) process(ctx context.Context, rec *data.Data) {
	band, ok := a.bands[rec.SourceID]
	if !ok {
		band = stats.NewBollinger(a.window, a.multiplier)
		a.bands[rec.SourceID] = band
	}

	// Compare against the band as it stood before this value, then let
	// the value shape the band for the next one.
	if band.Initialized() && !band.Contains(rec.DValue) {
		direction := DirectionUp
		if rec.DValue < band.Lower() {
			direction = DirectionDown
		}
		out := rec.Clone().WithStream(a.Config().Output(0))
		out.Type = data.TypeAnomaly
		out.SetParam(data.ParamDirection, direction)
		out.SetParam(data.ParamAnomalySource, Name)
		a.SendData(ctx, out)
	}
	band.Update(rec.DValue, rec.Timestamp)
}

func (a *Analytic) reset() {
	a.bands = make(map[string]*stats.Bollinger)
}
