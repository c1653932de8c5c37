// Package suppressor implements the suppression gate: a trigger record
// opens the gate, after which matching records are swallowed until a
// reset record or a configured duration closes it. Non-matching
// records always pass through rebound to the output channel.
package suppressor

import (
	"context"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/data"
	"github.com/c360/streamlytics/errors"
)

// Name is the analytic's registry name
const Name = "Suppressor"

// Config params
const (
	ParamTriggerParam = "triggerparam" // record param opening the gate
	ParamTriggerValue = "triggervalue" // required value, empty = any
	ParamActionParam  = "actionparam"  // record param marking suppressible records, empty = all
	ParamActionValue  = "actionvalue"
	ParamResetParam   = "resetparam" // record param closing the gate
	ParamResetValue   = "resetvalue"
	ParamDuration     = "duration" // data-time seconds after which the gate closes, 0 = never
)

type gate struct {
	open   bool
	opened float64 // timestamp of the trigger record
}

// Analytic is the suppression gate
type Analytic struct {
	*analytic.Core

	triggerParam string
	triggerValue string
	actionParam  string
	actionValue  string
	resetParam   string
	resetValue   string
	duration     float64

	gates map[string]*gate
}

// Register adds the analytic to a registry
func Register(r *analytic.Registry) error {
	return r.Register(analytic.Registration{
		Name:        Name,
		Description: "Swallows matching records for a window after a trigger",
		Version:     "1.0.0",
		Factory:     New,
	})
}

// New validates the configuration and builds a gate instance
func New(cfg analytic.Config, deps analytic.Dependencies) (analytic.Analytic, error) {
	if err := cfg.Validate(Name, 1, 1); err != nil {
		return nil, err
	}

	triggerParam, err := cfg.MandatoryParamString(ParamTriggerParam)
	if err != nil {
		return nil, err
	}
	duration, err := cfg.ParamFloat(ParamDuration, 0)
	if err != nil {
		return nil, err
	}
	if duration < 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "suppressor", "New", "validate duration")
	}

	a := &Analytic{
		triggerParam: triggerParam,
		triggerValue: cfg.ParamString(ParamTriggerValue, ""),
		actionParam:  cfg.ParamString(ParamActionParam, ""),
		actionValue:  cfg.ParamString(ParamActionValue, ""),
		resetParam:   cfg.ParamString(ParamResetParam, ""),
		resetValue:   cfg.ParamString(ParamResetValue, ""),
		duration:     duration,
		gates:        make(map[string]*gate),
	}
	a.Core = analytic.NewCore(cfg, deps, analytic.Handlers{
		Process: a.process,
		Reset:   a.reset,
	}, analytic.Options{})
	return a, nil
}

// matches reports whether a record carries the given param, and the
// given value when one is required
func matches(rec *data.Data, param, value string) bool {
	if param == "" {
		return false
	}
	got, ok := rec.Param(param)
	return ok && (value == "" || got == value)
}

func (a *Analytic) process(ctx context.Context, rec *data.Data) {
	g, ok := a.gates[rec.SourceID]
	if !ok {
		g = &gate{}
		a.gates[rec.SourceID] = g
	}

	// The window elapses by data time
	if g.open && a.duration > 0 && rec.Timestamp-g.opened >= a.duration {
		g.open = false
	}

	switch {
	case matches(rec, a.resetParam, a.resetValue):
		g.open = false
	case matches(rec, a.triggerParam, a.triggerValue):
		// A repeated trigger restarts the window
		g.open = true
		g.opened = rec.Timestamp
	case g.open && (a.actionParam == "" || matches(rec, a.actionParam, a.actionValue)):
		return // swallowed
	}

	a.SendData(ctx, rec.Clone().WithStream(a.Config().Output(0)))
}

func (a *Analytic) reset() {
	a.gates = make(map[string]*gate)
}
