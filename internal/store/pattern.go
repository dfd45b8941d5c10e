package store

import (
	"fmt"
	"iter"
	"maps"
	"slices"
)

// Term is either a named variable or a constant term code.
type Term struct {
	Var  string
	Code uint32
}

// Var returns a variable term. The name must be non-empty.
func Var(name string) Term { return Term{Var: name} }

// Const returns a constant term.
func Const(code uint32) Term { return Term{Code: code} }

// IsVar reports whether t is a variable.
func (t Term) IsVar() bool { return t.Var != "" }

func (t Term) String() string {
	if t.IsVar() {
		return "?" + t.Var
	}
	return fmt.Sprintf("%d", t.Code)
}

// Pattern is a triple whose positions may be variables.
type Pattern struct {
	S, P, O Term
}

// NewPattern builds a pattern from three terms.
func NewPattern(s, p, o Term) Pattern {
	return Pattern{S: s, P: p, O: o}
}

func (p Pattern) String() string {
	return fmt.Sprintf("(%s %s %s)", p.S, p.P, p.O)
}

func (p Pattern) terms() [3]Term {
	return [3]Term{p.S, p.P, p.O}
}

// Vars returns the distinct variable names of p in position order.
func (p Pattern) Vars() []string {
	var vars []string
	for _, t := range p.terms() {
		if t.IsVar() && !slices.Contains(vars, t.Var) {
			vars = append(vars, t.Var)
		}
	}
	return vars
}

// Ground substitutes b into p. It reports false if any variable is unbound.
func (p Pattern) Ground(b Binding) (Triple, bool) {
	var codes [3]uint32
	for i, t := range p.terms() {
		if !t.IsVar() {
			codes[i] = t.Code
			continue
		}
		v, ok := b[t.Var]
		if !ok {
			return Triple{}, false
		}
		codes[i] = v
	}
	return Triple{S: codes[0], P: codes[1], O: codes[2]}, true
}

// Binding maps variable names to term codes.
type Binding map[string]uint32

// Clone returns an independent copy of b.
func (b Binding) Clone() Binding {
	if b == nil {
		return Binding{}
	}
	return maps.Clone(b)
}

// Key returns a canonical string for b, usable for deduplication.
func (b Binding) Key() string {
	names := slices.Sorted(maps.Keys(b))
	key := make([]byte, 0, len(names)*8)
	for _, n := range names {
		key = fmt.Appendf(key, "%s=%d;", n, b[n])
	}
	return string(key)
}

// Match yields every extension of b under which p matches a triple of r.
// The sequence is lazy and may be ranged over more than once.
func Match(r Reader, p Pattern, b Binding) iter.Seq[Binding] {
	return func(yield func(Binding) bool) {
		var l Lookup
		terms := p.terms()
		var free [3]string
		for i, t := range terms {
			code, bound := t.Code, !t.IsVar()
			if t.IsVar() {
				code, bound = b[t.Var]
			}
			if !bound {
				free[i] = t.Var
				continue
			}
			switch i {
			case 0:
				l.S, l.Mask = code, l.Mask|BindS
			case 1:
				l.P, l.Mask = code, l.Mask|BindP
			case 2:
				l.O, l.Mask = code, l.Mask|BindO
			}
		}

		for t := range r.Scan(l) {
			next, ok := unify(b, free, [3]uint32{t.S, t.P, t.O})
			if !ok {
				continue
			}
			if !yield(next) {
				return
			}
		}
	}
}

// unify binds the free variables of a pattern against codes. A variable
// repeated across positions must take the same value everywhere.
func unify(b Binding, free [3]string, codes [3]uint32) (Binding, bool) {
	next := b.Clone()
	for i, name := range free {
		if name == "" {
			continue
		}
		if v, ok := next[name]; ok {
			if v != codes[i] {
				return nil, false
			}
			continue
		}
		next[name] = codes[i]
	}
	return next, true
}
