// Package missingdata implements the silence watchdog: it learns (or
// is told) the expected inter-arrival interval of a stream and emits
// anomaly records when no data arrives within a multiple of it.
package missingdata

import (
	"context"
	"time"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/data"
	"github.com/c360/streamlytics/errors"
)

// Name is the analytic's registry name
const Name = "MissingData"

// Config params
const (
	ParamInterval   = "interval"   // fixed expected gap in seconds; absent = adapt
	ParamTimeFactor = "timefactor" // timeout = interval * timeFactor
	ParamRepeats    = "repeats"    // max consecutive anomalies, 0 = unlimited
	ParamBySourceID = "bysourceid" // partition per sourceId, default true
)

// ewmaWeight blends each observed gap into the adaptive estimate
const ewmaWeight = 0.2

type state struct {
	sourceID string
	lastSeen float64 // data timestamp of the last arrival
	seen     bool
	estimate float64 // expected gap, seconds
	haveEst  bool
	misses   int
}

// Analytic is the missing-data watchdog
type Analytic struct {
	*analytic.Core

	fixedInterval float64
	fixed         bool
	timeFactor    float64
	repeats       int
	bySourceID    bool

	states map[string]*state
}

// Register adds the analytic to a registry
func Register(r *analytic.Registry) error {
	return r.Register(analytic.Registration{
		Name:        Name,
		Description: "Emits anomalies when a stream goes silent",
		Version:     "1.0.0",
		Factory:     New,
	})
}

// New validates the configuration and builds a watchdog instance
func New(cfg analytic.Config, deps analytic.Dependencies) (analytic.Analytic, error) {
	if err := cfg.Validate(Name, 1, 1); err != nil {
		return nil, err
	}

	a := &Analytic{states: make(map[string]*state)}

	if cfg.HasParam(ParamInterval) {
		interval, err := cfg.MandatoryParamFloat(ParamInterval)
		if err != nil {
			return nil, err
		}
		if interval <= 0 {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "missingdata", "New", "validate interval")
		}
		a.fixedInterval = interval
		a.fixed = true
	}

	timeFactor, err := cfg.ParamFloat(ParamTimeFactor, 3)
	if err != nil {
		return nil, err
	}
	if timeFactor <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "missingdata", "New", "validate time factor")
	}
	a.timeFactor = timeFactor

	repeats, err := cfg.ParamInt(ParamRepeats, 0)
	if err != nil {
		return nil, err
	}
	if repeats < 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "missingdata", "New", "validate repeats")
	}
	a.repeats = repeats

	bySource, err := cfg.ParamBool(ParamBySourceID, true)
	if err != nil {
		return nil, err
	}
	a.bySourceID = bySource

	a.Core = analytic.NewCore(cfg, deps, analytic.Handlers{
		Process: a.process,
		Reset:   a.reset,
	}, analytic.Options{})
	return a, nil
}

func (a *Analytic) key(rec *data.Data) string {
	if a.bySourceID {
		return rec.SourceID
	}
	return ""
}

func (a *Analytic) process(_ context.Context, rec *data.Data) {
	key := a.key(rec)
	st, ok := a.states[key]
	if !ok {
		st = &state{sourceID: rec.SourceID}
		if a.fixed {
			st.estimate = a.fixedInterval
			st.haveEst = true
		}
		a.states[key] = st
	}
	st.sourceID = rec.SourceID

	if st.seen {
		gap := rec.Timestamp - st.lastSeen
		if gap < 0 {
			// Out-of-order arrival still proves the stream is alive
			st.misses = 0
			a.rearm(key, st)
			return
		}
		if !a.fixed {
			if !st.haveEst {
				st.estimate = gap
				st.haveEst = true
			} else {
				st.estimate += ewmaWeight * (gap - st.estimate)
			}
		}
	}
	st.seen = true
	st.lastSeen = rec.Timestamp
	st.misses = 0
	a.rearm(key, st)
}

func (a *Analytic) rearm(key string, st *state) {
	if !st.haveEst || st.estimate <= 0 {
		return
	}
	timeout := st.estimate * a.timeFactor
	a.StartTimer("missing:"+key, time.Duration(timeout*float64(time.Second)), func() {
		a.fire(key)
	})
}

// fire runs in timer context, serialized with process by the runtime
func (a *Analytic) fire(key string) {
	st, ok := a.states[key]
	if !ok {
		return
	}
	st.misses++

	timeout := st.estimate * a.timeFactor
	out := data.New(a.Config().Output(0), st.sourceID,
		st.lastSeen+float64(st.misses)*timeout, float64(st.misses))
	out.Type = data.TypeAnomaly
	out.SetParam(data.ParamAnomalySource, Name)
	a.SendData(context.Background(), out)

	if a.repeats == 0 || st.misses < a.repeats {
		a.rearm(key, st)
	}
}

func (a *Analytic) reset() {
	for key := range a.states {
		a.CancelTimer("missing:" + key)
	}
	a.states = make(map[string]*state)
}
