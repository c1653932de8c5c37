// Package peer implements the peer-analysis helper: each source's
// value is compared against the group's moving average, and sources
// straying too far from their peers raise anomalies. Internally it
// chains an average stage, a spread computation and a threshold stage
// through direct callbacks, without any broker round-trips.
package peer

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/analytic/average"
	"github.com/c360/streamlytics/analytic/threshold"
	"github.com/c360/streamlytics/data"
)

// Name is the analytic's registry name
const Name = "Peer"

// Config params
const (
	ParamWindow    = "window"    // group average window constant, seconds
	ParamThreshold = "threshold" // max allowed |value - groupMean|
	ParamDuration  = "duration"  // breach duration before firing, seconds
	ParamRepeats   = "repeats"   // max anomalies per breach episode
)

// groupSource folds all sources into one partition for the group mean
const groupSource = "peer-group"

// Analytic is the peer-analysis pipeline
type Analytic struct {
	*analytic.Core

	avg      *average.Analytic
	thresh   *threshold.Analytic
	avgIn    analytic.Callback
	threshIn analytic.Callback

	groupMean float64
	haveMean  bool
}

// Register adds the analytic to a registry
func Register(r *analytic.Registry) error {
	return r.Register(analytic.Registration{
		Name:        Name,
		Description: "Flags sources straying from the group average",
		Version:     "1.0.0",
		Factory:     New,
	})
}

// New validates the configuration and builds the internal chain
func New(cfg analytic.Config, deps analytic.Dependencies) (analytic.Analytic, error) {
	if err := cfg.Validate(Name, 1, 1); err != nil {
		return nil, err
	}
	window, err := cfg.MandatoryParamFloat(ParamWindow)
	if err != nil {
		return nil, err
	}
	limit, err := cfg.MandatoryParamFloat(ParamThreshold)
	if err != nil {
		return nil, err
	}
	duration, err := cfg.ParamFloat(ParamDuration, 0)
	if err != nil {
		return nil, err
	}
	repeats, err := cfg.ParamInt(ParamRepeats, 1)
	if err != nil {
		return nil, err
	}

	avgOut := cfg.Name + ".internal.mean"
	spreadOut := cfg.Name + ".internal.spread"

	avgCfg := analytic.NewConfig(average.Name,
		[]string{cfg.Input(0)}, []string{avgOut},
		map[string]string{average.ParamWindow: strconv.FormatFloat(window, 'f', -1, 64)})
	avgAny, err := average.New(avgCfg, deps)
	if err != nil {
		return nil, err
	}

	threshCfg := analytic.NewConfig(threshold.Name,
		[]string{spreadOut}, []string{cfg.Output(0)},
		map[string]string{
			threshold.ParamThreshold: strconv.FormatFloat(limit, 'f', -1, 64),
			threshold.ParamDirection: threshold.DirectionRising,
			threshold.ParamDuration:  strconv.FormatFloat(duration, 'f', -1, 64),
			threshold.ParamRepeats:   strconv.Itoa(repeats),
		})
	threshAny, err := threshold.New(threshCfg, deps)
	if err != nil {
		return nil, err
	}

	a := &Analytic{
		avg:    avgAny.(*average.Analytic),
		thresh: threshAny.(*threshold.Analytic),
	}

	// Inner stages are wired by callback, not by channel
	a.avg.SetChannelInput(false)
	a.thresh.SetChannelInput(false)
	a.avgIn = a.avg.InputFunc()
	a.threshIn = a.thresh.InputFunc()

	a.avg.AddOutputConnection(avgOut, func(_ context.Context, rec *data.Data) {
		a.groupMean = rec.DValue
		a.haveMean = true
	})
	a.thresh.AddOutputConnection(cfg.Output(0), func(ctx context.Context, rec *data.Data) {
		rec.SetParam(data.ParamAnomalySource, Name)
		a.SendData(ctx, rec)
	})

	a.Core = analytic.NewCore(cfg, deps, analytic.Handlers{
		Process: a.process,
		Reset:   a.resetChain,
	}, analytic.Options{})
	return a, nil
}

// Start brings up the inner stages before accepting input
func (a *Analytic) Start(ctx context.Context) error {
	if err := a.avg.Start(ctx); err != nil {
		return err
	}
	if err := a.thresh.Start(ctx); err != nil {
		_ = a.avg.Stop(0)
		return err
	}
	if err := a.Core.Start(ctx); err != nil {
		_ = a.thresh.Stop(0)
		_ = a.avg.Stop(0)
		return err
	}
	return nil
}

// Stop tears the chain down in reverse order
func (a *Analytic) Stop(timeout time.Duration) error {
	err := a.Core.Stop(timeout)
	if e := a.thresh.Stop(timeout); err == nil {
		err = e
	}
	if e := a.avg.Stop(timeout); err == nil {
		err = e
	}
	return err
}

func (a *Analytic) process(ctx context.Context, rec *data.Data) {
	// The group mean treats every source as one population
	group := rec.Clone()
	group.SourceID = groupSource
	a.avgIn(ctx, group)

	if !a.haveMean {
		return
	}
	spread := rec.Clone()
	spread.Type = data.TypeComputed
	spread.DValue = math.Abs(rec.DValue - a.groupMean)
	a.threshIn(ctx, spread)
}

func (a *Analytic) resetChain() {
	a.avg.Reset()
	a.thresh.Reset()
	a.groupMean = 0
	a.haveMean = false
}
