// Package expression compiles text formulas into evaluation closures.
//
// A formula combines numeric literals, the constant PI, field
// substitutions (${DVALUE}, ${PARAM.offset}), arithmetic operators
// (^ / * % + -), absolute-value bars |...|, and named unary functions
// (sin(x), round(x), ...). Compilation happens once at configuration
// time; the resulting closure tree is immutable and is evaluated per
// record with no further parsing.
//
// Compilation eliminates brackets iteratively: each innermost
// bracketed region is compiled into a closure and replaced in the
// source text by a positional placeholder, until the remaining string
// is flat. Operators are then folded left-to-right in precedence
// order. Any unknown field, parameter, function, or token fails the
// whole compile; runtime numeric problems (an unparsable string field)
// evaluate to NaN for that record instead of aborting the stream.
package expression

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/c360/streamlytics/data"
	"github.com/c360/streamlytics/errors"
)

// Placeholder delimiters spliced into the source text while brackets
// are eliminated. Control characters cannot appear in a formula, so
// they never collide with user input.
const (
	placeholderOpen  = '\x01'
	placeholderClose = '\x02'
)

type evalFn func(rec *data.Data) float64

// Expression is a compiled formula, safe for reuse across records
type Expression struct {
	source string
	root   evalFn
}

// Source returns the original formula text
func (e *Expression) Source() string {
	return e.source
}

// Eval evaluates the formula against a record. Numeric problems
// surface as NaN, never as a panic.
func (e *Expression) Eval(rec *data.Data) float64 {
	return e.root(rec)
}

type compiler struct {
	params map[string]string
	subs   []evalFn
}

// Compile builds an evaluation closure tree from a formula. params
// resolves ${PARAM.name} references at compile time; keys are matched
// case-insensitively.
func Compile(formula string, params map[string]string) (*Expression, error) {
	normalized := make(map[string]string, len(params))
	for k, v := range params {
		normalized[strings.ToLower(strings.TrimSpace(k))] = v
	}
	c := &compiler{params: normalized}

	text, err := c.resolveFields(formula)
	if err != nil {
		return nil, err
	}
	text, err = c.eliminateBrackets(text)
	if err != nil {
		return nil, err
	}
	root, err := c.compileFlat(text)
	if err != nil {
		return nil, err
	}
	return &Expression{source: formula, root: root}, nil
}

// placeholder registers a compiled closure and returns its splice token
func (c *compiler) placeholder(fn evalFn) string {
	idx := len(c.subs)
	c.subs = append(c.subs, fn)
	return fmt.Sprintf("%c%d%c", placeholderOpen, idx, placeholderClose)
}

// resolveFields replaces every ${...} reference with a placeholder
func (c *compiler) resolveFields(text string) (string, error) {
	var out strings.Builder
	for {
		open := strings.Index(text, "${")
		if open < 0 {
			out.WriteString(text)
			return out.String(), nil
		}
		close := strings.Index(text[open:], "}")
		if close < 0 {
			return "", errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrBadExpression, text[open:]), "expression", "Compile", "unterminated field reference")
		}
		name := strings.TrimSpace(text[open+2 : open+close])
		fn, err := c.resolveReference(name)
		if err != nil {
			return "", err
		}
		out.WriteString(text[:open])
		out.WriteString(c.placeholder(fn))
		text = text[open+close+1:]
	}
}

// resolveReference maps a ${...} name to an accessor closure
func (c *compiler) resolveReference(name string) (evalFn, error) {
	upper := strings.ToUpper(name)
	if strings.HasPrefix(upper, "PARAM.") {
		key := strings.ToLower(strings.TrimSpace(name[len("PARAM."):]))
		raw, ok := c.params[key]
		if !ok {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: unknown parameter %q", errors.ErrBadExpression, name), "expression", "Compile", "resolve parameter reference")
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: parameter %q value %q is not numeric", errors.ErrBadExpression, name, raw), "expression", "Compile", "parse parameter value")
		}
		return func(*data.Data) float64 { return v }, nil
	}

	// Record fields dispatch through a fixed tag switch rather than a
	// lookup table so the supported set is visible in one place.
	switch upper {
	case "DVALUE":
		return func(rec *data.Data) float64 { return rec.DValue }, nil
	case "XVALUE":
		return func(rec *data.Data) float64 { return rec.XValue }, nil
	case "YVALUE":
		return func(rec *data.Data) float64 { return rec.YValue }, nil
	case "ZVALUE":
		return func(rec *data.Data) float64 { return rec.ZValue }, nil
	case "TIMESTAMP":
		return func(rec *data.Data) float64 { return rec.Timestamp }, nil
	case "SVALUE":
		return func(rec *data.Data) float64 { return parseOrNaN(rec.SValue) }, nil
	case "SOURCEID":
		return func(rec *data.Data) float64 { return parseOrNaN(rec.SourceID) }, nil
	case "STREAMNAME":
		return func(rec *data.Data) float64 { return parseOrNaN(rec.StreamName) }, nil
	}
	return nil, errors.WrapInvalid(fmt.Errorf("%w: unknown field %q", errors.ErrBadExpression, name), "expression", "Compile", "resolve field reference")
}

// eliminateBrackets repeatedly compiles the innermost bracketed region
// into a closure and splices a placeholder in its place. Parentheses
// group or apply a named function; bars take the absolute value.
func (c *compiler) eliminateBrackets(text string) (string, error) {
	for {
		open, close, isBar, err := innermost(text)
		if err != nil {
			return "", err
		}
		if open < 0 {
			return text, nil
		}

		inner, err := c.compileFlat(text[open+1 : close])
		if err != nil {
			return "", err
		}

		start := open
		fn := inner
		if isBar {
			abs := inner
			fn = func(rec *data.Data) float64 { return math.Abs(abs(rec)) }
		} else {
			// A trailing identifier before "(" is a function application
			nameStart := open
			for nameStart > 0 && isWordByte(text[nameStart-1]) {
				nameStart--
			}
			if name := text[nameStart:open]; name != "" {
				unary, ok := lookupFunction(name)
				if !ok {
					return "", errors.WrapInvalid(fmt.Errorf("%w: unknown function %q", errors.ErrBadExpression, name), "expression", "Compile", "resolve function")
				}
				arg := inner
				fn = func(rec *data.Data) float64 { return unary(arg(rec)) }
				start = nameStart
			}
		}

		text = text[:start] + c.placeholder(fn) + text[close+1:]
	}
}

// innermost locates the first closing bracket and its matching opener
func innermost(text string) (open, close int, isBar bool, err error) {
	type frame struct {
		pos int
		bar bool
	}
	var stack []frame
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(':
			stack = append(stack, frame{pos: i})
		case ')':
			if len(stack) == 0 || stack[len(stack)-1].bar {
				return 0, 0, false, errors.WrapInvalid(fmt.Errorf("%w: unmatched %q", errors.ErrBadExpression, ")"), "expression", "Compile", "match brackets")
			}
			return stack[len(stack)-1].pos, i, false, nil
		case '|':
			if len(stack) > 0 && stack[len(stack)-1].bar {
				return stack[len(stack)-1].pos, i, true, nil
			}
			stack = append(stack, frame{pos: i, bar: true})
		}
	}
	if len(stack) > 0 {
		tok := "("
		if stack[len(stack)-1].bar {
			tok = "|"
		}
		return 0, 0, false, errors.WrapInvalid(fmt.Errorf("%w: unmatched %q", errors.ErrBadExpression, tok), "expression", "Compile", "match brackets")
	}
	return -1, 0, false, nil
}

type token struct {
	fn evalFn // terminal when non-nil
	op byte
}

// compileFlat compiles a bracket-free substring: tokenize, then fold
// binary operators left-to-right, one precedence level at a time.
func (c *compiler) compileFlat(text string) (evalFn, error) {
	tokens, err := c.tokenize(text)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: empty expression", errors.ErrBadExpression), "expression", "Compile", "compile subexpression")
	}

	// Subtraction was normalized to addition during tokenization, so a
	// strict precedence ladder folds everything unambiguously.
	for _, op := range []byte{'^', '/', '*', '%', '+'} {
		tokens, err = foldOperator(tokens, op)
		if err != nil {
			return nil, err
		}
	}
	if len(tokens) != 1 || tokens[0].fn == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: malformed expression %q", errors.ErrBadExpression, text), "expression", "Compile", "compile subexpression")
	}
	return tokens[0].fn, nil
}

func (c *compiler) tokenize(text string) ([]token, error) {
	var tokens []token
	negate := false

	pushTerminal := func(fn evalFn) error {
		if n := len(tokens); n > 0 && tokens[n-1].fn != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: missing operator before term", errors.ErrBadExpression), "expression", "Compile", "tokenize")
		}
		if negate {
			inner := fn
			fn = func(rec *data.Data) float64 { return -inner(rec) }
			negate = false
		}
		tokens = append(tokens, token{fn: fn})
		return nil
	}

	i := 0
	for i < len(text) {
		b := text[i]
		switch {
		case b == ' ' || b == '\t':
			i++
		case b == placeholderOpen:
			end := strings.IndexByte(text[i:], placeholderClose)
			idx, _ := strconv.Atoi(text[i+1 : i+end])
			if err := pushTerminal(c.subs[idx]); err != nil {
				return nil, err
			}
			i += end + 1
		case b >= '0' && b <= '9' || b == '.':
			j := i
			for j < len(text) && (text[j] >= '0' && text[j] <= '9' || text[j] == '.') {
				j++
			}
			v, err := strconv.ParseFloat(text[i:j], 64)
			if err != nil {
				return nil, errors.WrapInvalid(fmt.Errorf("%w: bad number %q", errors.ErrBadExpression, text[i:j]), "expression", "Compile", "parse literal")
			}
			if err := pushTerminal(func(*data.Data) float64 { return v }); err != nil {
				return nil, err
			}
			i = j
		case isWordByte(b):
			j := i
			for j < len(text) && isWordByte(text[j]) {
				j++
			}
			word := text[i:j]
			if !strings.EqualFold(word, "PI") {
				return nil, errors.WrapInvalid(fmt.Errorf("%w: unknown token %q", errors.ErrBadExpression, word), "expression", "Compile", "tokenize")
			}
			if err := pushTerminal(func(*data.Data) float64 { return math.Pi }); err != nil {
				return nil, err
			}
			i = j
		case b == '-':
			// Unary after an operator or at the start; binary otherwise,
			// normalized to addition of the negated right operand.
			if n := len(tokens); n > 0 && tokens[n-1].fn != nil {
				tokens = append(tokens, token{op: '+'})
			}
			negate = !negate
			i++
		case b == '+' || b == '*' || b == '/' || b == '%' || b == '^':
			if n := len(tokens); n == 0 || tokens[n-1].fn == nil {
				return nil, errors.WrapInvalid(fmt.Errorf("%w: misplaced operator %q", errors.ErrBadExpression, string(b)), "expression", "Compile", "tokenize")
			}
			tokens = append(tokens, token{op: b})
			i++
		default:
			return nil, errors.WrapInvalid(fmt.Errorf("%w: unexpected character %q", errors.ErrBadExpression, string(b)), "expression", "Compile", "tokenize")
		}
	}
	if negate {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: dangling unary minus", errors.ErrBadExpression), "expression", "Compile", "tokenize")
	}
	if n := len(tokens); n > 0 && tokens[n-1].fn == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: trailing operator", errors.ErrBadExpression), "expression", "Compile", "tokenize")
	}
	return tokens, nil
}

// foldOperator splices every occurrence of one operator into a binary
// closure, scanning left to right.
func foldOperator(tokens []token, op byte) ([]token, error) {
	out := tokens[:0:0]
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t.fn != nil || t.op != op {
			out = append(out, t)
			continue
		}
		if len(out) == 0 || out[len(out)-1].fn == nil || i+1 >= len(tokens) || tokens[i+1].fn == nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: misplaced operator %q", errors.ErrBadExpression, string(op)), "expression", "Compile", "fold operators")
		}
		left := out[len(out)-1].fn
		right := tokens[i+1].fn
		out[len(out)-1] = token{fn: binary(op, left, right)}
		i++
	}
	return out, nil
}

func binary(op byte, left, right evalFn) evalFn {
	switch op {
	case '^':
		return func(rec *data.Data) float64 { return math.Pow(left(rec), right(rec)) }
	case '/':
		return func(rec *data.Data) float64 { return left(rec) / right(rec) }
	case '*':
		return func(rec *data.Data) float64 { return left(rec) * right(rec) }
	case '%':
		return func(rec *data.Data) float64 { return math.Mod(left(rec), right(rec)) }
	default:
		return func(rec *data.Data) float64 { return left(rec) + right(rec) }
	}
}

// parseOrNaN converts a string field to a number, NaN when unparsable
func parseOrNaN(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '_'
}
