// Package threshold implements the breach detector: it compares each
// record's value against a fixed threshold and emits anomaly records
// when the configured direction, duration and repeat rules are met.
package threshold

import (
	"context"
	"strconv"
	"strings"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/data"
	"github.com/c360/streamlytics/errors"
)

// Name is the analytic's registry name
const Name = "Threshold"

// Breach directions
const (
	DirectionRising   = "rising"   // breach when value > threshold
	DirectionFalling  = "falling"  // breach when value < threshold
	DirectionCrossing = "crossing" // breach on either crossing of the threshold
)

// Config params
const (
	ParamThreshold = "threshold"
	ParamDirection = "direction"
	ParamDuration  = "duration"
	ParamRepeats   = "repeats"
)

// state tracks one partition's breach episode
type state struct {
	breached bool
	start    float64 // timestamp the current episode began
	fired    int     // anomalies emitted this episode

	// crossing mode: which side of the threshold counts as normal
	sideKnown   bool
	normalAbove bool
}

// Analytic is the threshold breach detector
type Analytic struct {
	*analytic.Core

	threshold float64
	direction string
	duration  float64
	repeats   int

	states map[string]*state
}

// Register adds the analytic to a registry
func Register(r *analytic.Registry) error {
	return r.Register(analytic.Registration{
		Name:        Name,
		Description: "Emits anomalies when values breach a fixed threshold",
		Version:     "1.0.0",
		Factory:     New,
	})
}

// New validates the configuration and builds a detector instance
func New(cfg analytic.Config, deps analytic.Dependencies) (analytic.Analytic, error) {
	if err := cfg.Validate(Name, 1, 1); err != nil {
		return nil, err
	}

	threshold, err := cfg.MandatoryParamFloat(ParamThreshold)
	if err != nil {
		return nil, err
	}
	direction := strings.ToLower(cfg.ParamString(ParamDirection, DirectionRising))
	switch direction {
	case DirectionRising, DirectionFalling, DirectionCrossing:
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "threshold", "New", "validate direction")
	}
	duration, err := cfg.ParamFloat(ParamDuration, 0)
	if err != nil {
		return nil, err
	}
	repeats, err := cfg.ParamInt(ParamRepeats, 1)
	if err != nil {
		return nil, err
	}
	if repeats < 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "threshold", "New", "validate repeats")
	}
	if direction == DirectionCrossing && repeats != 1 {
		// A matured crossing redefines the normal side, so repeated
		// firings within one episode are meaningless.
		deps.GetLoggerWithAnalytic(Name).Warn("crossing direction supports a single repeat, overriding",
			"configured", repeats)
		repeats = 1
	}

	a := &Analytic{
		threshold: threshold,
		direction: direction,
		duration:  duration,
		repeats:   repeats,
		states:    make(map[string]*state),
	}
	a.Core = analytic.NewCore(cfg, deps, analytic.Handlers{
		Process: a.process,
		Reset:   a.reset,
	}, analytic.Options{})
	return a, nil
}

func (a *Analytic) partition(sourceID string) *state {
	st, ok := a.states[sourceID]
	if !ok {
		st = &state{}
		a.states[sourceID] = st
	}
	return st
}

func (a *Analytic) process(ctx context.Context, rec *data.Data) {
	st := a.partition(rec.SourceID)

	var breaching bool
	switch a.direction {
	case DirectionRising:
		breaching = rec.DValue > a.threshold
	case DirectionFalling:
		breaching = rec.DValue < a.threshold
	case DirectionCrossing:
		above := rec.DValue > a.threshold
		if !st.sideKnown {
			// First value establishes the normal side
			st.sideKnown = true
			st.normalAbove = above
			return
		}
		breaching = above != st.normalAbove
	}

	if !breaching {
		// Returning to the normal side clears the episode immediately
		st.breached = false
		st.fired = 0
		return
	}

	if !st.breached {
		st.breached = true
		st.start = rec.Timestamp
		st.fired = 0
		if a.duration <= 0 {
			st.fired = 1
			a.emit(ctx, rec)
			a.mature(st)
		}
		return
	}

	if a.duration <= 0 {
		return
	}
	accumulated := rec.Timestamp - st.start
	for (a.repeats == 0 || st.fired < a.repeats) &&
		accumulated >= a.duration*float64(st.fired+1) {
		st.fired++
		a.emit(ctx, rec)
		if a.direction == DirectionCrossing {
			a.mature(st)
			break
		}
	}
}

// mature, in crossing mode, flips the normal side and closes the episode
func (a *Analytic) mature(st *state) {
	if a.direction != DirectionCrossing {
		return
	}
	st.normalAbove = !st.normalAbove
	st.breached = false
	st.fired = 0
}

func (a *Analytic) emit(ctx context.Context, rec *data.Data) {
	out := rec.Clone().WithStream(a.Config().Output(0))
	out.Type = data.TypeAnomaly
	out.SetParam(data.ParamDuration, strconv.FormatFloat(a.duration, 'f', -1, 64))
	out.SetParam(data.ParamDirection, a.direction)
	out.SetParam(data.ParamAnomalySource, Name)
	a.SendData(ctx, out)
}

func (a *Analytic) reset() {
	a.states = make(map[string]*state)
}
