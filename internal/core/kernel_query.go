package core

import (
	"iter"

	"kgraph/internal/logging"
	"kgraph/internal/query"
	"kgraph/internal/store"
	"kgraph/internal/stream"
)

// ===== QUERIES =====

// Query starts a builder over the graph. Each terminal call takes the read
// lock and sees the store as of that call.
func (g *KnowledgeGraph) Query() *query.Builder {
	return query.New(g)
}

// Read implements query.Source under the read lock.
func (g *KnowledgeGraph) Read(fn func(query.View) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn(graphView{g})
}

// Match returns the bindings of p against the current store.
func (g *KnowledgeGraph) Match(p store.Pattern) []store.Binding {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []store.Binding
	for b := range store.Match(g.facts, p, nil) {
		out = append(out, b)
	}
	return out
}

type graphView struct {
	g *KnowledgeGraph
}

func (v graphView) Scan(l store.Lookup) iter.Seq[store.Triple] { return v.g.facts.Scan(l) }

func (v graphView) Lookup(term string) (uint32, bool) { return v.g.terms.Lookup(term) }

func (v graphView) Decode(code uint32) (string, error) { return v.g.terms.Decode(code) }

// ===== STREAMS =====

// NewStream starts a continuous query builder that encodes terms through the
// graph's term table and records into the graph's metrics. Window
// defaults come from the stream configuration.
func (g *KnowledgeGraph) NewStream() *stream.Builder {
	return stream.NewBuilder(g.terms,
		stream.WithDefaults(g.stream),
		stream.WithLogger(g.categoryLogger(logging.CategoryStream)),
		stream.WithMetrics(g.metrics))
}
