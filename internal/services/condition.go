package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Comparison operators accepted by the condition evaluator. Word forms such
// as "below" or "above" are not part of the vocabulary.
const (
	OpGreater      = ">"
	OpLess         = "<"
	OpGreaterEqual = ">="
	OpLessEqual    = "<="
	OpEqual        = "=="
	OpNotEqual     = "!="
)

// Operators lists the supported operators.
var Operators = []string{OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual}

// <field-path> <operator> <literal>; two-char operators are matched first.
var conditionPattern = regexp.MustCompile(
	`^\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\s*(>=|<=|==|!=|>|<)\s*(\S+)\s*$`)

// Condition a parsed threshold expression.
type Condition struct {
	Field    string
	Operator string
	Value    float64
}

// ParseCondition parses expr. ok is false for anything outside the grammar,
// including non-numeric or non-finite literals.
func ParseCondition(expr string) (Condition, bool) {
	m := conditionPattern.FindStringSubmatch(expr)
	if m == nil {
		return Condition{}, false
	}
	v, ok := parseNumber(m[3])
	if !ok {
		return Condition{}, false
	}
	return Condition{Field: m[1], Operator: m[2], Value: v}, true
}

// String renders the condition back into expression form.
func (c Condition) String() string {
	return c.Field + " " + c.Operator + " " + strconv.FormatFloat(c.Value, 'f', -1, 64)
}

// Evaluate parses and evaluates expr against ctx. Any parse or lookup failure
// yields false.
func Evaluate(expr string, ctx map[string]interface{}) bool {
	cond, ok := ParseCondition(expr)
	if !ok {
		return false
	}
	return cond.Eval(ctx)
}

// Eval evaluates the condition against ctx. Missing or non-numeric fields yield false.
func (c Condition) Eval(ctx map[string]interface{}) bool {
	raw, ok := lookupPath(ctx, c.Field)
	if !ok {
		return false
	}
	actual, ok := toNumber(raw)
	if !ok {
		return false
	}
	return compare(actual, c.Operator, c.Value)
}

func compare(actual float64, op string, expected float64) bool {
	switch op {
	case OpGreater:
		return actual > expected
	case OpLess:
		return actual < expected
	case OpGreaterEqual:
		return actual >= expected
	case OpLessEqual:
		return actual <= expected
	case OpEqual:
		return actual == expected
	case OpNotEqual:
		return actual != expected
	default:
		return false
	}
}

// IsOperator reports whether op belongs to the vocabulary.
func IsOperator(op string) bool {
	for _, o := range Operators {
		if o == op {
			return true
		}
	}
	return false
}

func lookupPath(ctx map[string]interface{}, path string) (interface{}, bool) {
	var cur interface{} = ctx
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]float64:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

func toNumber(v interface{}) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case uint:
		f = float64(t)
	case uint64:
		f = float64(t)
	case string:
		return parseNumber(t)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
