// Package rules defines the shared shape of inference rules and integrity
// constraints, their registration checks, and premise evaluation.
package rules

import (
	"errors"
	"fmt"
	"slices"

	"kgraph/internal/store"
)

// ErrMalformedRule is returned when a rule fails registration checks.
var ErrMalformedRule = errors.New("malformed rule")

// ErrUnbound is returned when a conclusion is instantiated with a binding
// that leaves one of its variables free.
var ErrUnbound = errors.New("unbound conclusion variable")

// Kind distinguishes inference rules from constraints.
type Kind uint8

const (
	// Inference rules add their instantiated conclusion to the store.
	Inference Kind = iota
	// Constraint rules signal a violation whenever their premise holds.
	Constraint
)

func (k Kind) String() string {
	switch k {
	case Inference:
		return "inference"
	case Constraint:
		return "constraint"
	default:
		return "unknown"
	}
}

// Violated is the all-constant conclusion that marks a constraint.
// It is never inserted into a store.
var Violated = store.NewPattern(store.Const(0), store.Const(0), store.Const(0))

// Rule is a premise conjunction, optional binding filters and a conclusion.
type Rule struct {
	ID         uint32
	Name       string
	Kind       Kind
	Premise    []store.Pattern
	Filters    []Filter
	Conclusion []store.Pattern
}

// Clone returns a deep copy of r.
func (r Rule) Clone() Rule {
	r.Premise = slices.Clone(r.Premise)
	r.Filters = slices.Clone(r.Filters)
	r.Conclusion = slices.Clone(r.Conclusion)
	return r
}

func (r Rule) String() string {
	name := r.Name
	if name == "" {
		name = fmt.Sprintf("#%d", r.ID)
	}
	return fmt.Sprintf("%s %s: %v => %v", r.Kind, name, r.Premise, r.Conclusion)
}

// PremiseVars returns the distinct variables of the premise in first-seen order.
func (r Rule) PremiseVars() []string {
	var vars []string
	for _, p := range r.Premise {
		for _, v := range p.Vars() {
			if !slices.Contains(vars, v) {
				vars = append(vars, v)
			}
		}
	}
	return vars
}

// Normalize checks r for range restriction and returns the canonical form
// to register. A constraint may omit its conclusion or give exactly the
// Violated sentinel; either way the normalized conclusion is the sentinel.
func Normalize(r Rule) (Rule, error) {
	r = r.Clone()
	if len(r.Premise) == 0 {
		return Rule{}, fmt.Errorf("%w: %s has an empty premise", ErrMalformedRule, r.label())
	}
	bound := r.PremiseVars()

	switch r.Kind {
	case Inference:
		if len(r.Conclusion) == 0 {
			return Rule{}, fmt.Errorf("%w: %s has no conclusion", ErrMalformedRule, r.label())
		}
		for _, c := range r.Conclusion {
			for _, v := range c.Vars() {
				if !slices.Contains(bound, v) {
					return Rule{}, fmt.Errorf("%w: %s concludes ?%s which the premise never binds",
						ErrMalformedRule, r.label(), v)
				}
			}
		}
	case Constraint:
		switch {
		case len(r.Conclusion) == 0:
		case len(r.Conclusion) == 1 && r.Conclusion[0] == Violated:
		default:
			return Rule{}, fmt.Errorf("%w: constraint %s must conclude the violation sentinel",
				ErrMalformedRule, r.label())
		}
		r.Conclusion = []store.Pattern{Violated}
	default:
		return Rule{}, fmt.Errorf("%w: %s has unknown kind %d", ErrMalformedRule, r.label(), r.Kind)
	}

	for _, f := range r.Filters {
		if err := f.validate(); err != nil {
			return Rule{}, fmt.Errorf("%w: %s: %v", ErrMalformedRule, r.label(), err)
		}
		if !slices.Contains(bound, f.Variable) {
			return Rule{}, fmt.Errorf("%w: %s filters on ?%s which the premise never binds",
				ErrMalformedRule, r.label(), f.Variable)
		}
	}
	return r, nil
}

func (r Rule) label() string {
	if r.Name != "" {
		return fmt.Sprintf("rule %q", r.Name)
	}
	return "rule"
}

// Instantiate grounds every conclusion pattern under b.
func (r Rule) Instantiate(b store.Binding) ([]store.Triple, error) {
	out := make([]store.Triple, 0, len(r.Conclusion))
	for _, c := range r.Conclusion {
		t, ok := c.Ground(b)
		if !ok {
			return nil, fmt.Errorf("%w: %v under %v", ErrUnbound, c, b)
		}
		out = append(out, t)
	}
	return out, nil
}
