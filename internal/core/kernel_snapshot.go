package core

import (
	"fmt"

	"kgraph/internal/rules"
	"kgraph/internal/store"
	"kgraph/internal/terms"
)

// Snapshot is a detached copy of a graph's state for read-only consumers
// such as exporters. It shares nothing with the graph.
type Snapshot struct {
	GraphID     string
	Terms       []string
	Facts       []store.Fact
	Rules       []rules.Rule
	Constraints []rules.Rule
}

// Snapshot copies the graph's terms, facts and rules under the read lock.
func (g *KnowledgeGraph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stored := g.facts.Facts()
	facts := make([]store.Fact, len(stored))
	for i, f := range stored {
		facts[i] = f.Clone()
	}
	return Snapshot{
		GraphID:     g.id.String(),
		Terms:       g.terms.Terms(),
		Facts:       facts,
		Rules:       cloneRules(g.rules),
		Constraints: cloneRules(g.constraints),
	}
}

// Decode resolves a term code against the snapshot's term list.
func (s Snapshot) Decode(code uint32) (string, error) {
	if int(code) >= len(s.Terms) {
		return "", fmt.Errorf("%w: %d", terms.ErrUnknownTerm, code)
	}
	return s.Terms[code], nil
}

// DecodeTerm renders a pattern term: variables as "?name", constants decoded.
func (s Snapshot) DecodeTerm(t store.Term) (string, error) {
	if t.IsVar() {
		return "?" + t.Var, nil
	}
	return s.Decode(t.Code)
}

// Asserted returns the asserted facts only.
func (s Snapshot) Asserted() []store.Fact {
	var out []store.Fact
	for _, f := range s.Facts {
		if f.IsAsserted() {
			out = append(out, f)
		}
	}
	return out
}
