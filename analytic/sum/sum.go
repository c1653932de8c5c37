// Package sum implements the moving-sum operator: a windowed sum of
// each source's value stream, time- or count-windowed, emitted as
// computed records.
package sum

import (
	"context"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/data"
	"github.com/c360/streamlytics/errors"
	"github.com/c360/streamlytics/stats"
)

// Name is the analytic's registry name
const Name = "Sum"

// Config params. Exactly one of timeWindow and sampleCount selects the
// windowing mode.
const (
	ParamTimeWindow  = "timewindow"  // window length, seconds
	ParamSampleCount = "samplecount" // window length, samples
	ParamBucketCount = "bucketcount" // smoothing granularity, default 20
)

type windowed interface {
	Sum() float64
	Reset()
}

type timeSum struct{ *stats.TimeWindowSum }
type countSum struct{ *stats.CountWindowSum }

// Analytic is the moving-sum operator
type Analytic struct {
	*analytic.Core

	timeWindow  float64
	sampleCount int
	bucketCount int

	sums map[string]windowed
}

// Register adds the analytic to a registry
func Register(r *analytic.Registry) error {
	return r.Register(analytic.Registration{
		Name:        Name,
		Description: "Windowed moving sum per source",
		Version:     "1.0.0",
		Factory:     New,
	})
}

// New validates the configuration and builds an operator instance
func New(cfg analytic.Config, deps analytic.Dependencies) (analytic.Analytic, error) {
	if err := cfg.Validate(Name, 1, 1); err != nil {
		return nil, err
	}

	hasTime := cfg.HasParam(ParamTimeWindow)
	hasCount := cfg.HasParam(ParamSampleCount)
	if hasTime == hasCount {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "sum", "New", "select windowing mode")
	}

	a := &Analytic{sums: make(map[string]windowed)}

	bucketCount, err := cfg.ParamInt(ParamBucketCount, 20)
	if err != nil {
		return nil, err
	}
	if bucketCount < 1 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "sum", "New", "validate bucket count")
	}
	a.bucketCount = bucketCount

	if hasTime {
		timeWindow, err := cfg.MandatoryParamFloat(ParamTimeWindow)
		if err != nil {
			return nil, err
		}
		if timeWindow <= 0 {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "sum", "New", "validate time window")
		}
		a.timeWindow = timeWindow
	} else {
		sampleCount, err := cfg.ParamInt(ParamSampleCount, 0)
		if err != nil {
			return nil, err
		}
		if sampleCount < 1 {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "sum", "New", "validate sample count")
		}
		a.sampleCount = sampleCount
	}

	a.Core = analytic.NewCore(cfg, deps, analytic.Handlers{
		Process: a.process,
		Reset:   a.reset,
	}, analytic.Options{})
	return a, nil
}

func (a *Analytic) process(ctx context.Context, rec *data.Data) {
	w, ok := a.sums[rec.SourceID]
	if !ok {
		if a.timeWindow > 0 {
			w = timeSum{stats.NewTimeWindowSum(a.timeWindow, a.bucketCount)}
		} else {
			w = countSum{stats.NewCountWindowSum(a.sampleCount, a.bucketCount)}
		}
		a.sums[rec.SourceID] = w
	}
	switch s := w.(type) {
	case timeSum:
		s.Add(rec.DValue, rec.Timestamp)
	case countSum:
		s.Add(rec.DValue)
	}

	out := rec.Clone().WithStream(a.Config().Output(0))
	out.Type = data.TypeComputed
	out.DValue = w.Sum()
	a.SendData(ctx, out)
}

func (a *Analytic) reset() {
	a.sums = make(map[string]windowed)
}
