// Package compute implements the formula operator: it evaluates a
// configured expression against each record and emits the result as a
// computed record.
package compute

import (
	"context"
	"math"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/analytic/expression"
	"github.com/c360/streamlytics/data"
)

// Name is the analytic's registry name
const Name = "Compute"

// ParamExpression holds the formula, e.g. "(${dValue}-32)*5/9"
const ParamExpression = "expression"

// Analytic is the formula operator
type Analytic struct {
	*analytic.Core
	expr *expression.Expression
}

// Register adds the analytic to a registry
func Register(r *analytic.Registry) error {
	return r.Register(analytic.Registration{
		Name:        Name,
		Description: "Evaluates a formula against each record",
		Version:     "1.0.0",
		Factory:     New,
	})
}

// New compiles the formula once; a bad formula fails construction
func New(cfg analytic.Config, deps analytic.Dependencies) (analytic.Analytic, error) {
	if err := cfg.Validate(Name, 1, 1); err != nil {
		return nil, err
	}
	formula, err := cfg.MandatoryParamString(ParamExpression)
	if err != nil {
		return nil, err
	}
	expr, err := expression.Compile(formula, cfg.Params)
	if err != nil {
		return nil, err
	}

	a := &Analytic{expr: expr}
	a.Core = analytic.NewCore(cfg, deps, analytic.Handlers{
		Process: a.process,
	}, analytic.Options{})
	return a, nil
}

func (a *Analytic) process(ctx context.Context, rec *data.Data) {
	value := a.expr.Eval(rec)
	if math.IsNaN(value) {
		a.Logger().Warn("formula evaluated to NaN",
			"formula", a.expr.Source(), "sourceId", rec.SourceID)
	}

	out := rec.Clone().WithStream(a.Config().Output(0))
	out.Type = data.TypeComputed
	out.DValue = value
	a.SendData(ctx, out)
}
