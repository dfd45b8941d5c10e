package core

import (
	"context"
	"fmt"
	"iter"

	"go.opentelemetry.io/otel/attribute"

	"kgraph/internal/rules"
	"kgraph/internal/store"
)

// ===== BACKWARD CHAINING =====

// Prove answers goal top-down: a goal holds if a stored fact matches it, or
// if an inference rule concludes it and its premises can be proven in turn.
// Rule applications nest at most the configured proof depth. Bindings of the
// goal's variables are returned without duplicates, facts before rules.
func (g *KnowledgeGraph) Prove(ctx context.Context, goal store.Pattern) ([]store.Binding, error) {
	_, span := g.tracer.Start(ctx, "core.Prove")
	defer span.End()

	g.mu.RLock()
	defer g.mu.RUnlock()

	depth := g.cfg.ProofDepth
	if depth <= 0 {
		depth = 10
	}
	p := &prover{g: g, maxDepth: depth}

	seen := make(map[string]struct{})
	var out []store.Binding
	for s := range p.solve([]store.Pattern{goal}, subst{}, 0) {
		if p.err != nil {
			break
		}
		b := make(store.Binding)
		complete := true
		for _, v := range goal.Vars() {
			t := s.walk(store.Var(v))
			if t.IsVar() {
				complete = false
				break
			}
			b[v] = t.Code
		}
		if !complete {
			continue
		}
		key := b.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, b)
	}
	if p.err != nil {
		span.RecordError(p.err)
		return nil, p.err
	}
	span.SetAttributes(attribute.Int("answers", len(out)))
	return out, nil
}

// subst maps variables to terms, which may themselves be variables.
type subst map[string]store.Term

func (s subst) walk(t store.Term) store.Term {
	for t.IsVar() {
		next, ok := s[t.Var]
		if !ok {
			return t
		}
		t = next
	}
	return t
}

// unify extends s so that a and b denote the same term.
func (s subst) unify(a, b store.Term) (subst, bool) {
	a, b = s.walk(a), s.walk(b)
	switch {
	case a.IsVar() && b.IsVar() && a.Var == b.Var:
		return s, true
	case a.IsVar():
		return s.with(a.Var, b), true
	case b.IsVar():
		return s.with(b.Var, a), true
	default:
		return s, a.Code == b.Code
	}
}

func (s subst) with(name string, t store.Term) subst {
	next := make(subst, len(s)+1)
	for k, v := range s {
		next[k] = v
	}
	next[name] = t
	return next
}

func (s subst) unifyPattern(a, b store.Pattern) (subst, bool) {
	s, ok := s.unify(a.S, b.S)
	if !ok {
		return nil, false
	}
	if s, ok = s.unify(a.P, b.P); !ok {
		return nil, false
	}
	return s.unify(a.O, b.O)
}

type prover struct {
	g        *KnowledgeGraph
	maxDepth int
	renames  int
	err      error
}

// solve yields substitutions under which every goal holds.
func (p *prover) solve(goals []store.Pattern, s subst, depth int) iter.Seq[subst] {
	return func(yield func(subst) bool) {
		if len(goals) == 0 {
			yield(s)
			return
		}
		goal, rest := goals[0], goals[1:]
		for next := range p.solveOne(goal, s, depth) {
			for done := range p.solve(rest, next, depth) {
				if !yield(done) {
					return
				}
			}
		}
	}
}

func (p *prover) solveOne(goal store.Pattern, s subst, depth int) iter.Seq[subst] {
	return func(yield func(subst) bool) {
		resolved := store.NewPattern(s.walk(goal.S), s.walk(goal.P), s.walk(goal.O))
		var l store.Lookup
		if !resolved.S.IsVar() {
			l.S, l.Mask = resolved.S.Code, l.Mask|store.BindS
		}
		if !resolved.P.IsVar() {
			l.P, l.Mask = resolved.P.Code, l.Mask|store.BindP
		}
		if !resolved.O.IsVar() {
			l.O, l.Mask = resolved.O.Code, l.Mask|store.BindO
		}
		for t := range p.g.facts.Scan(l) {
			ground := store.NewPattern(store.Const(t.S), store.Const(t.P), store.Const(t.O))
			if next, ok := s.unifyPattern(resolved, ground); ok {
				if !yield(next) {
					return
				}
			}
		}

		if depth >= p.maxDepth {
			return
		}
		for _, r := range p.g.rules {
			renamed := p.rename(r)
			for _, c := range renamed.Conclusion {
				head, ok := s.unifyPattern(resolved, c)
				if !ok {
					continue
				}
				for body := range p.solve(renamed.Premise, head, depth+1) {
					if !p.accept(renamed, body) {
						continue
					}
					if !yield(body) {
						return
					}
				}
				if p.err != nil {
					return
				}
			}
		}
	}
}

// rename gives the rule's variables names unique to this application.
func (p *prover) rename(r rules.Rule) rules.Rule {
	p.renames++
	suffix := fmt.Sprintf("#%d", p.renames)
	term := func(t store.Term) store.Term {
		if t.IsVar() {
			return store.Var(t.Var + suffix)
		}
		return t
	}
	pattern := func(pt store.Pattern) store.Pattern {
		return store.NewPattern(term(pt.S), term(pt.P), term(pt.O))
	}
	out := r.Clone()
	for i := range out.Premise {
		out.Premise[i] = pattern(out.Premise[i])
	}
	for i := range out.Conclusion {
		out.Conclusion[i] = pattern(out.Conclusion[i])
	}
	for i := range out.Filters {
		out.Filters[i].Variable += suffix
	}
	return out
}

func (p *prover) accept(r rules.Rule, s subst) bool {
	if len(r.Filters) == 0 {
		return true
	}
	b := make(store.Binding, len(r.Filters))
	for _, f := range r.Filters {
		t := s.walk(store.Var(f.Variable))
		if t.IsVar() {
			return false
		}
		b[f.Variable] = t.Code
	}
	ok, err := r.Accept(b, p.g.terms)
	if err != nil {
		p.err = err
		return false
	}
	return ok
}
