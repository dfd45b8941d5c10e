package core

import (
	"go.uber.org/zap"

	"kgraph/internal/query"
	"kgraph/internal/store"
)

// ===== FACT MANAGEMENT =====

// AddABoxTriple asserts the fact (s, p, o), interning its terms.
// Asserting a fact that inference already derived marks it asserted.
func (g *KnowledgeGraph) AddABoxTriple(s, p, o string) store.Triple {
	t := store.Triple{S: g.terms.Encode(s), P: g.terms.Encode(p), O: g.terms.Encode(o)}
	g.AddTriple(t)
	return t
}

// AddTriple asserts an already encoded fact.
func (g *KnowledgeGraph) AddTriple(t store.Triple) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.assertLocked(t)
}

// AddTriples asserts a batch of encoded facts under one lock.
func (g *KnowledgeGraph) AddTriples(ts []store.Triple) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	added := 0
	for _, t := range ts {
		if g.assertLocked(t) {
			added++
		}
	}
	g.logger.Debug("asserted facts", zap.Int("requested", len(ts)), zap.Int("added", added))
	return added
}

func (g *KnowledgeGraph) assertLocked(t store.Triple) bool {
	delete(g.tombstones, t)
	f, added := g.facts.Add(t, store.AssertedProvenance)
	if !added && !f.IsAsserted() {
		f.Provenance = store.AssertedProvenance
	}
	if added {
		g.metrics.Facts.Inc()
	}
	return added
}

// QueryABox returns every stored fact, asserted and derived, in insertion order.
func (g *KnowledgeGraph) QueryABox() []store.Triple {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.facts.Triples()
}

// Facts returns copies of every stored fact with provenance.
func (g *KnowledgeGraph) Facts() []store.Fact {
	g.mu.RLock()
	defer g.mu.RUnlock()
	stored := g.facts.Facts()
	out := make([]store.Fact, len(stored))
	for i, f := range stored {
		out[i] = f.Clone()
	}
	return out
}

// Fact returns the stored fact for decoded terms.
func (g *KnowledgeGraph) Fact(s, p, o string) (store.Fact, bool) {
	t, ok := g.lookupTriple(s, p, o)
	if !ok {
		return store.Fact{}, false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	f, ok := g.facts.Get(t)
	if !ok {
		return store.Fact{}, false
	}
	return f.Clone(), true
}

// Contains reports whether the decoded fact is stored.
func (g *KnowledgeGraph) Contains(s, p, o string) bool {
	_, ok := g.Fact(s, p, o)
	return ok
}

// Len returns the number of stored facts.
func (g *KnowledgeGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.facts.Len()
}

// DecodeTriple resolves every position of t.
func (g *KnowledgeGraph) DecodeTriple(t store.Triple) (query.DecodedTriple, error) {
	return query.Decode(graphView{g}, t)
}

func (g *KnowledgeGraph) lookupTriple(s, p, o string) (store.Triple, bool) {
	sc, ok1 := g.terms.Lookup(s)
	pc, ok2 := g.terms.Lookup(p)
	oc, ok3 := g.terms.Lookup(o)
	return store.Triple{S: sc, P: pc, O: oc}, ok1 && ok2 && ok3
}
