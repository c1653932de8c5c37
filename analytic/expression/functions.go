package expression

import (
	"math"
	"math/rand"
	"strings"
)

// unaryFn is a named single-argument function usable in formulas
type unaryFn func(float64) float64

var functions = map[string]unaryFn{
	"abs":   math.Abs,
	"sqrt":  math.Sqrt,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"asin":  math.Asin,
	"acos":  math.Acos,
	"atan":  math.Atan,
	"exp":   math.Exp,
	"ln":    math.Log,
	"log":   math.Log10,
	"floor": math.Floor,
	"ceil":  math.Ceil,
	"round": math.Round,
	"neg":   func(x float64) float64 { return -x },
	// rand(x) draws uniformly from [0, x)
	"rand": func(x float64) float64 { return rand.Float64() * x },
}

func lookupFunction(name string) (unaryFn, bool) {
	fn, ok := functions[strings.ToLower(name)]
	return fn, ok
}
