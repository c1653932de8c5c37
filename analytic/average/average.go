// Package average implements the moving-average operator: a
// time-weighted EMA of each source's value stream, emitted as computed
// records.
package average

import (
	"context"
	"strconv"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/data"
	"github.com/c360/streamlytics/errors"
	"github.com/c360/streamlytics/stats"
)

// Name is the analytic's registry name
const Name = "Average"

// Config params
const (
	ParamWindow        = "window"        // EMA window constant, seconds
	ParamIncludeStdDev = "includestddev" // attach a stddev param to outputs
)

// ParamStdDev is the output param carrying the standard deviation
const ParamStdDev = "stddev"

// Analytic is the moving-average operator
type Analytic struct {
	*analytic.Core

	window        float64
	includeStdDev bool
	averages      map[string]*stats.TimeWeightedMA
}

// Register adds the analytic to a registry
func Register(r *analytic.Registry) error {
	return r.Register(analytic.Registration{
		Name:        Name,
		Description: "Time-weighted moving average per source",
		Version:     "1.0.0",
		Factory:     New,
	})
}

// New validates the configuration and builds an operator instance
func New(cfg analytic.Config, deps analytic.Dependencies) (analytic.Analytic, error) {
	if err := cfg.Validate(Name, 1, 1); err != nil {
		return nil, err
	}
	window, err := cfg.MandatoryParamFloat(ParamWindow)
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "average", "New", "validate window")
	}
	includeStdDev, err := cfg.ParamBool(ParamIncludeStdDev, false)
	if err != nil {
		return nil, err
	}

	a := &Analytic{
		window:        window,
		includeStdDev: includeStdDev,
		averages:      make(map[string]*stats.TimeWeightedMA),
	}
	a.Core = analytic.NewCore(cfg, deps, analytic.Handlers{
		Process: a.process,
		Reset:   a.reset,
	}, analytic.Options{})
	return a, nil
}

func (a *Analytic) process(ctx context.Context, rec *data.Data) {
	ma, ok := a.averages[rec.SourceID]
	if !ok {
		ma = stats.NewTimeWeightedMA(a.window)
		a.averages[rec.SourceID] = ma
	}
	ma.Update(rec.DValue, rec.Timestamp)

	out := rec.Clone().WithStream(a.Config().Output(0))
	out.Type = data.TypeComputed
	out.DValue = ma.Mean()
	if a.includeStdDev {
		out.SetParam(ParamStdDev, strconv.FormatFloat(ma.StdDev(), 'f', -1, 64))
	}
	a.SendData(ctx, out)
}

func (a *Analytic) reset() {
	a.averages = make(map[string]*stats.TimeWeightedMA)
}
