package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// Op is a filter comparison operator.
type Op string

const (
	OpGT  Op = ">"
	OpLT  Op = "<"
	OpGE  Op = ">="
	OpLE  Op = "<="
	OpEQ  Op = "="
	OpNE  Op = "!="
	OpUDF Op = "udf"
)

// ParseOp parses an operator symbol. "==" is accepted as "=".
func ParseOp(s string) (Op, error) {
	switch op := Op(strings.TrimSpace(s)); op {
	case OpGT, OpLT, OpGE, OpLE, OpEQ, OpNE, OpUDF:
		return op, nil
	case "==":
		return OpEQ, nil
	default:
		return "", fmt.Errorf("unknown filter operator %q", s)
	}
}

// Filter is a predicate on the decoded value bound to one variable.
// Comparisons are numeric when both sides parse as numbers and lexical
// otherwise. OpUDF delegates to Fn.
type Filter struct {
	Variable string
	Op       Op
	Value    string
	Fn       func(string) bool
}

func (f Filter) validate() error {
	if f.Variable == "" {
		return fmt.Errorf("filter has no variable")
	}
	if _, err := ParseOp(string(f.Op)); err != nil {
		return err
	}
	if f.Op == OpUDF && f.Fn == nil {
		return fmt.Errorf("filter on ?%s has no function", f.Variable)
	}
	return nil
}

// Eval applies f to a decoded term.
func (f Filter) Eval(value string) bool {
	if f.Op == OpUDF {
		return f.Fn(value)
	}
	cmp := compare(value, f.Value)
	switch f.Op {
	case OpGT:
		return cmp > 0
	case OpLT:
		return cmp < 0
	case OpGE:
		return cmp >= 0
	case OpLE:
		return cmp <= 0
	case OpEQ, "==":
		return cmp == 0
	case OpNE:
		return cmp != 0
	default:
		return false
	}
}

func compare(a, b string) int {
	x, errA := strconv.ParseFloat(a, 64)
	y, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

func (f Filter) String() string {
	if f.Op == OpUDF {
		return fmt.Sprintf("udf(?%s)", f.Variable)
	}
	return fmt.Sprintf("?%s %s %s", f.Variable, f.Op, f.Value)
}
