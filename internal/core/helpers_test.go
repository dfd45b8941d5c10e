package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"kgraph/internal/config"
	"kgraph/internal/rules"
	"kgraph/internal/store"
)

// term encodes "?X" as a variable and anything else as a constant.
func term(g *KnowledgeGraph, s string) store.Term {
	if name, ok := strings.CutPrefix(s, "?"); ok {
		return store.Var(name)
	}
	return store.Const(g.EncodeTerm(s))
}

func pat(g *KnowledgeGraph, s, p, o string) store.Pattern {
	return store.NewPattern(term(g, s), term(g, p), term(g, o))
}

func rule(name string, premise []store.Pattern, conclusion ...store.Pattern) rules.Rule {
	return rules.Rule{Name: name, Premise: premise, Conclusion: conclusion}
}

func mustRule(t *testing.T, g *KnowledgeGraph, r rules.Rule) uint32 {
	t.Helper()
	id, err := g.AddRule(r)
	require.NoError(t, err)
	return id
}

func mustConstraint(t *testing.T, g *KnowledgeGraph, r rules.Rule) uint32 {
	t.Helper()
	id, err := g.AddConstraint(r)
	require.NoError(t, err)
	return id
}

func engine(mutate func(*config.EngineConfig)) Option {
	cfg := config.DefaultConfig().Engine
	mutate(&cfg)
	return WithEngineConfig(cfg)
}

// decoded renders triples as "s p o" lines.
func decoded(t *testing.T, g *KnowledgeGraph, ts []store.Triple) []string {
	t.Helper()
	out := make([]string, 0, len(ts))
	for _, tr := range ts {
		d, err := g.DecodeTriple(tr)
		require.NoError(t, err)
		out = append(out, d.Subject+" "+d.Predicate+" "+d.Object)
	}
	return out
}

// scenarioUniversity builds the professor/student contradiction.
func scenarioUniversity(t *testing.T, opts ...Option) *KnowledgeGraph {
	t.Helper()
	g := New(opts...)
	g.AddABoxTriple("john", "isA", "professor")
	g.AddABoxTriple("john", "isA", "student")
	g.AddABoxTriple("john", "teaches", "math101")
	g.AddABoxTriple("john", "enrolledIn", "physics101")

	mustRule(t, g, rule("teachers are professors",
		[]store.Pattern{pat(g, "?X", "teaches", "?Y")},
		pat(g, "?X", "isA", "professor")))
	mustRule(t, g, rule("enrolled are students",
		[]store.Pattern{pat(g, "?X", "enrolledIn", "?Y")},
		pat(g, "?X", "isA", "student")))
	mustConstraint(t, g, rules.Rule{
		Name: "professor and student",
		Premise: []store.Pattern{
			pat(g, "?X", "isA", "professor"),
			pat(g, "?X", "isA", "student"),
		},
	})
	return g
}

// chain asserts a linked list n0 -> n1 -> ... -> n(length) over "edge"
// and registers the transitive closure rules over "path".
func chain(t *testing.T, g *KnowledgeGraph, length int) {
	t.Helper()
	for i := range length {
		g.AddABoxTriple(node(i), "edge", node(i+1))
	}
	mustRule(t, g, rule("edge is path",
		[]store.Pattern{pat(g, "?X", "edge", "?Y")},
		pat(g, "?X", "path", "?Y")))
	mustRule(t, g, rule("path is transitive",
		[]store.Pattern{pat(g, "?X", "path", "?Y"), pat(g, "?Y", "path", "?Z")},
		pat(g, "?X", "path", "?Z")))
}

func node(i int) string {
	return "n" + string(rune('a'+i))
}
