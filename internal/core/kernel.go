// Package core implements the knowledge graph: a term table, a fact store,
// inference rules and integrity constraints, with forward-chaining
// inference, constraint repair, backward-chaining proofs and queries.
//
// A KnowledgeGraph is single-writer: every mutating call takes the write
// lock, and queries share the read lock, so a query never observes a store
// in the middle of a fixpoint or repair.
package core

import (
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"kgraph/internal/config"
	"kgraph/internal/logging"
	"kgraph/internal/metrics"
	"kgraph/internal/rules"
	"kgraph/internal/store"
	"kgraph/internal/terms"
)

const tracerName = "kgraph.core"

// KnowledgeGraph owns one term table, fact store, rule set and constraint set.
type KnowledgeGraph struct {
	mu sync.RWMutex

	id     uuid.UUID
	cfg    config.EngineConfig
	stream config.StreamConfig
	udf    config.UDFConfig

	terms       *terms.Table
	facts       *store.Store
	rules       []rules.Rule
	constraints []rules.Rule
	nextRuleID  uint32

	// Facts retracted by repair. Inference will not re-derive them until
	// they are asserted again.
	tombstones map[store.Triple]struct{}

	logs    *logging.Set
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a KnowledgeGraph.
type Option func(*KnowledgeGraph)

// WithConfig applies engine, stream and metric settings.
func WithConfig(cfg *config.Config) Option {
	return func(g *KnowledgeGraph) {
		g.cfg = cfg.Engine
		g.stream = cfg.Stream
		g.udf = cfg.UDF
		if g.metrics == nil {
			if cfg.Metrics.Enabled {
				g.metrics = metrics.New(cfg.Metrics.Namespace)
			} else {
				g.metrics = metrics.NewDisabled(cfg.Metrics.Namespace)
			}
		}
	}
}

// WithEngineConfig overrides only the inference settings.
func WithEngineConfig(cfg config.EngineConfig) Option {
	return func(g *KnowledgeGraph) { g.cfg = cfg }
}

// WithLogging routes log output through the category set.
func WithLogging(set *logging.Set) Option {
	return func(g *KnowledgeGraph) { g.logs = set }
}

// WithMetrics records into m instead of a fresh private registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *KnowledgeGraph) { g.metrics = m }
}

// WithTracerProvider emits spans through tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *KnowledgeGraph) { g.tracer = tp.Tracer(tracerName) }
}

// New creates an empty knowledge graph.
func New(opts ...Option) *KnowledgeGraph {
	defaults := config.DefaultConfig()
	g := &KnowledgeGraph{
		id:         uuid.New(),
		cfg:        defaults.Engine,
		stream:     defaults.Stream,
		udf:        defaults.UDF,
		terms:      terms.NewTable(),
		facts:      store.New(),
		tombstones: make(map[store.Triple]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = metrics.New(defaults.Metrics.Namespace)
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer(tracerName)
	}
	g.logger = g.logs.Get(logging.CategoryKernel).With(zap.String("graph", g.id.String()))
	return g
}

// ID identifies the graph instance in logs and exports.
func (g *KnowledgeGraph) ID() uuid.UUID {
	return g.id
}

// Metrics returns the graph's instruments.
func (g *KnowledgeGraph) Metrics() *metrics.Metrics {
	return g.metrics
}

// categoryLogger returns a category logger tagged with the graph ID.
func (g *KnowledgeGraph) categoryLogger(c logging.Category) *zap.Logger {
	return g.logs.Get(c).With(zap.String("graph", g.id.String()))
}

// ===== TERMS =====

// EncodeTerm returns the code for s, interning it on first use.
func (g *KnowledgeGraph) EncodeTerm(s string) uint32 {
	return g.terms.Encode(s)
}

// DecodeTerm returns the string for id, or ErrUnknownTerm.
func (g *KnowledgeGraph) DecodeTerm(id uint32) (string, error) {
	return g.terms.Decode(id)
}

// LookupTerm returns the code for s without interning it.
func (g *KnowledgeGraph) LookupTerm(s string) (uint32, bool) {
	return g.terms.Lookup(s)
}

// Terms exposes the graph's term table, for components that encode on
// the graph's behalf.
func (g *KnowledgeGraph) Terms() *terms.Table {
	return g.terms
}
