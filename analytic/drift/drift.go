// Package drift implements the baseline drift detector: it learns a
// per-source baseline over an initial offset period, freezes breach
// boundaries around the learned mean, and emits anomalies for values
// leaving the frozen band. The band is deliberately static once
// frozen, unlike an adaptive Bollinger band.
package drift

import (
	"context"
	"math"
	"strings"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/data"
	"github.com/c360/streamlytics/errors"
	"github.com/c360/streamlytics/stats"
)

// Name is the analytic's registry name
const Name = "Drift"

// Offset interpretations
const (
	OffsetStdDev     = "stddev"     // offset is a standard-deviation multiple
	OffsetAbsolute   = "absolute"   // offset is an absolute value
	OffsetPercentage = "percentage" // offset is a percentage of the mean
)

// Config params
const (
	ParamOffsetPeriod = "offsetperiod"
	ParamOffset       = "offset"
	ParamOffsetType   = "offsettype"
	ParamLowerOffset  = "loweroffset"
)

type state struct {
	ma     *stats.TimeWeightedMA
	start  float64
	seen   bool
	frozen bool
	lower  float64
	upper  float64
}

// Analytic is the drift detector
type Analytic struct {
	*analytic.Core

	offsetPeriod float64
	offset       float64
	lowerOffset  float64
	offsetType   string

	states map[string]*state
}

// Register adds the analytic to a registry
func Register(r *analytic.Registry) error {
	return r.Register(analytic.Registration{
		Name:        Name,
		Description: "Learns a baseline band and flags values drifting outside it",
		Version:     "1.0.0",
		Factory:     New,
	})
}

// New validates the configuration and builds a detector instance
func New(cfg analytic.Config, deps analytic.Dependencies) (analytic.Analytic, error) {
	if err := cfg.Validate(Name, 1, 1); err != nil {
		return nil, err
	}

	offsetPeriod, err := cfg.MandatoryParamFloat(ParamOffsetPeriod)
	if err != nil {
		return nil, err
	}
	if offsetPeriod <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "drift", "New", "validate offset period")
	}
	offset, err := cfg.ParamFloat(ParamOffset, 2)
	if err != nil {
		return nil, err
	}
	lowerOffset, err := cfg.ParamFloat(ParamLowerOffset, offset)
	if err != nil {
		return nil, err
	}
	offsetType := strings.ToLower(cfg.ParamString(ParamOffsetType, OffsetStdDev))
	switch offsetType {
	case OffsetStdDev, OffsetAbsolute, OffsetPercentage:
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "drift", "New", "validate offset type")
	}

	a := &Analytic{
		offsetPeriod: offsetPeriod,
		offset:       offset,
		lowerOffset:  lowerOffset,
		offsetType:   offsetType,
		states:       make(map[string]*state),
	}
	a.Core = analytic.NewCore(cfg, deps, analytic.Handlers{
		Process: a.process,
		Reset:   a.reset,
	}, analytic.Options{})
	return a, nil
}

func (a *Analytic) process(ctx context.Context, rec *data.Data) {
	st, ok := a.states[rec.SourceID]
	if !ok {
		st = &state{ma: stats.NewTimeWeightedMA(a.offsetPeriod)}
		a.states[rec.SourceID] = st
	}

	if !st.frozen {
		if !st.seen {
			st.seen = true
			st.start = rec.Timestamp
		}
		st.ma.Update(rec.DValue, rec.Timestamp)
		// Offset period elapses by data time, not wall clock
		if rec.Timestamp-st.start >= a.offsetPeriod {
			a.freeze(st)
			a.Logger().Debug("baseline frozen",
				"sourceId", rec.SourceID, "lower", st.lower, "upper", st.upper)
		}
		return
	}

	// A NaN bound means no limit on that side
	breach := (!math.IsNaN(st.lower) && rec.DValue < st.lower) ||
		(!math.IsNaN(st.upper) && rec.DValue > st.upper)
	if !breach {
		return
	}

	out := rec.Clone().WithStream(a.Config().Output(0))
	out.Type = data.TypeAnomaly
	out.SetParam(data.ParamAnomalySource, Name)
	a.SendData(ctx, out)
}

func (a *Analytic) freeze(st *state) {
	mean := st.ma.Mean()
	switch a.offsetType {
	case OffsetStdDev:
		sd := st.ma.StdDev()
		st.upper = mean + sd*a.offset
		st.lower = mean - sd*a.lowerOffset
	case OffsetAbsolute:
		st.upper = mean + a.offset
		st.lower = mean - a.lowerOffset
	case OffsetPercentage:
		st.upper = mean + math.Abs(mean)*a.offset/100
		st.lower = mean - math.Abs(mean)*a.lowerOffset/100
	}
	st.frozen = true
}

func (a *Analytic) reset() {
	a.states = make(map[string]*state)
}
