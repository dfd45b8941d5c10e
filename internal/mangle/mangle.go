// Package mangle re-evaluates a knowledge graph's asserted facts and
// inference rules with Google Mangle, an independent Datalog engine, and
// compares the result with the graph's own fixpoint.
package mangle

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
	"go.uber.org/zap"

	"kgraph/internal/core"
	"kgraph/internal/query"
	"kgraph/internal/rules"
	"kgraph/internal/store"
)

// ErrUnsupported is returned for rules Mangle cannot express with the same
// meaning, such as rules with filters.
var ErrUnsupported = errors.New("rule not expressible in mangle")

// Predicate is the single relation every fact is stored in.
const Predicate = "triple"

var triple = ast.PredicateSym{Symbol: Predicate, Arity: 3}

// Source renders the inference rules of snap as a Mangle program. Facts are
// not part of the source; Evaluate loads them directly into the store.
func Source(snap core.Snapshot) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Decl %s(S, P, O).\n", Predicate)
	for _, r := range snap.Rules {
		clauses, err := clauses(snap, r)
		if err != nil {
			return "", err
		}
		for _, c := range clauses {
			b.WriteString(c)
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// clauses renders one Mangle clause per conclusion of r.
func clauses(snap core.Snapshot, r rules.Rule) ([]string, error) {
	if len(r.Filters) > 0 {
		return nil, fmt.Errorf("%w: %s has filters", ErrUnsupported, r)
	}
	// Mangle variables must start with an uppercase letter, so every rule
	// variable is renamed V0, V1, ... in first-seen order.
	names := make(map[string]string)
	term := func(t store.Term) (string, error) {
		if t.IsVar() {
			n, ok := names[t.Var]
			if !ok {
				n = "V" + strconv.Itoa(len(names))
				names[t.Var] = n
			}
			return n, nil
		}
		s, err := snap.Decode(t.Code)
		if err != nil {
			return "", err
		}
		return strconv.Quote(s), nil
	}
	atom := func(p store.Pattern) (string, error) {
		var args [3]string
		for i, t := range []store.Term{p.S, p.P, p.O} {
			s, err := term(t)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		return fmt.Sprintf("%s(%s)", Predicate, strings.Join(args[:], ", ")), nil
	}

	body := make([]string, 0, len(r.Premise))
	for _, p := range r.Premise {
		a, err := atom(p)
		if err != nil {
			return nil, err
		}
		body = append(body, a)
	}
	out := make([]string, 0, len(r.Conclusion))
	for _, c := range r.Conclusion {
		head, err := atom(c)
		if err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf("%s :- %s.", head, strings.Join(body, ", ")))
	}
	return out, nil
}

// Evaluate computes the fixpoint of snap's asserted facts under its
// inference rules. Constraints are ignored. The result is sorted.
func Evaluate(snap core.Snapshot, logger *zap.Logger) ([]query.DecodedTriple, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	src, err := Source(snap)
	if err != nil {
		return nil, err
	}
	unit, err := parse.Unit(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse program: %w", err)
	}
	info, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze program: %w", err)
	}

	fs := factstore.NewSimpleInMemoryStore()
	for _, f := range snap.Asserted() {
		d, err := decode(snap, f.Triple)
		if err != nil {
			return nil, err
		}
		fs.Add(ast.Atom{Predicate: triple, Args: []ast.BaseTerm{
			ast.String(d.Subject), ast.String(d.Predicate), ast.String(d.Object),
		}})
	}

	// A single pass can stop one round short of the fixpoint, so evaluate
	// until the store stops growing.
	for passes := 1; ; passes++ {
		before := fs.EstimateFactCount()
		stats, err := mengine.EvalProgramWithStats(info, fs)
		if err != nil {
			return nil, fmt.Errorf("mangle evaluation failed: %w", err)
		}
		if fs.EstimateFactCount() == before {
			logger.Debug("mangle evaluation complete",
				zap.Int("rules", len(snap.Rules)),
				zap.Int("passes", passes),
				zap.Any("stats", stats))
			break
		}
	}

	var out []query.DecodedTriple
	err = fs.GetFacts(ast.NewQuery(triple), func(a ast.Atom) error {
		var args [3]string
		for i, arg := range a.Args {
			c, ok := arg.(ast.Constant)
			if !ok || c.Type != ast.StringType {
				return fmt.Errorf("unexpected mangle term %v", arg)
			}
			args[i] = c.Symbol
		}
		out = append(out, query.DecodedTriple{Subject: args[0], Predicate: args[1], Object: args[2]})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortTriples(out)
	return out, nil
}

// Report lists the differences between two fact sets.
type Report struct {
	// Missing holds facts Mangle derived that the graph does not store.
	Missing []query.DecodedTriple
	// Extra holds facts the graph stores that Mangle did not derive.
	Extra []query.DecodedTriple
}

// Consistent reports whether both engines agree.
func (r Report) Consistent() bool {
	return len(r.Missing) == 0 && len(r.Extra) == 0
}

// Check evaluates snap with Mangle and compares the fixpoint with the facts
// snap stores. snap should be taken after inference and before repair.
func Check(snap core.Snapshot, logger *zap.Logger) (Report, error) {
	want, err := Evaluate(snap, logger)
	if err != nil {
		return Report{}, err
	}
	have := make(map[query.DecodedTriple]struct{}, len(snap.Facts))
	for _, f := range snap.Facts {
		d, err := decode(snap, f.Triple)
		if err != nil {
			return Report{}, err
		}
		have[d] = struct{}{}
	}

	var rep Report
	for _, d := range want {
		if _, ok := have[d]; ok {
			delete(have, d)
			continue
		}
		rep.Missing = append(rep.Missing, d)
	}
	for d := range have {
		rep.Extra = append(rep.Extra, d)
	}
	sortTriples(rep.Extra)
	return rep, nil
}

func decode(snap core.Snapshot, t store.Triple) (query.DecodedTriple, error) {
	var d query.DecodedTriple
	var err error
	if d.Subject, err = snap.Decode(t.S); err != nil {
		return d, err
	}
	if d.Predicate, err = snap.Decode(t.P); err != nil {
		return d, err
	}
	d.Object, err = snap.Decode(t.O)
	return d, err
}

func sortTriples(ts []query.DecodedTriple) {
	sort.Slice(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Predicate != b.Predicate {
			return a.Predicate < b.Predicate
		}
		return a.Object < b.Object
	})
}
