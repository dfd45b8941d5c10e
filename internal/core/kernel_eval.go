package core

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kgraph/internal/config"
	"kgraph/internal/logging"
	"kgraph/internal/rules"
	"kgraph/internal/store"
)

// ===== INFERENCE =====

// InferNewFacts runs the registered inference rules to a fixpoint using the
// configured strategy and returns the facts added by this call in
// derivation order. A second call without new assertions returns nothing.
//
// If the fixpoint is not reached within the configured number of rounds
// the call fails with ErrNonTermination and every fact and confirmation it
// added is discarded.
func (g *KnowledgeGraph) InferNewFacts(ctx context.Context) ([]store.Triple, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inferLocked(ctx, g.cfg.Strategy == config.StrategyNaive)
}

// InferNewFactsNaive re-evaluates every rule against the whole store each
// round. It reaches the same fixpoint as semi-naive evaluation and exists
// as a reference for it.
func (g *KnowledgeGraph) InferNewFactsNaive(ctx context.Context) ([]store.Triple, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inferLocked(ctx, true)
}

// derivation is one instantiated conclusion and the rule that produced it.
type derivation struct {
	rule   uint32
	triple store.Triple
}

// inferenceRun holds the undo journal of one inference call.
type inferenceRun struct {
	mark      uint64
	confirmed map[*store.Fact]int
	derived   []store.Triple
	rounds    int
}

func (g *KnowledgeGraph) inferLocked(ctx context.Context, naive bool) ([]store.Triple, error) {
	strategy := config.StrategySemiNaive
	if naive {
		strategy = config.StrategyNaive
	}
	ctx, span := g.tracer.Start(ctx, "core.InferNewFacts",
		trace.WithAttributes(
			attribute.String("strategy", strategy),
			attribute.Int("rules", len(g.rules)),
			attribute.Int("facts", g.facts.Len())))
	defer span.End()

	log := g.categoryLogger(logging.CategoryInference)
	timer := logging.StartTimer(log, "InferNewFacts")
	start := time.Now()
	defer func() {
		timer.Stop()
		g.metrics.InferenceDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
	}()

	run := &inferenceRun{mark: g.facts.Seq(), confirmed: make(map[*store.Fact]int)}
	limit := g.cfg.MaxIterations
	if limit <= 0 {
		limit = config.DefaultConfig().Engine.MaxIterations
	}

	// Every stored fact is new to the first round.
	var delta store.Reader = g.facts
	for round := 1; ; round++ {
		if round > limit {
			g.rollback(run)
			g.metrics.NonTermination.Inc()
			err := fmt.Errorf("%w: no fixpoint after %d rounds", ErrNonTermination, limit)
			log.Error("inference aborted", zap.Int("rounds", limit), zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		derived, err := g.evaluateRound(ctx, delta, naive)
		if err != nil {
			g.rollback(run)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		next := g.commit(run, derived)
		run.rounds = round
		g.metrics.InferenceRounds.Inc()
		log.Debug("inference round",
			zap.Int("round", round),
			zap.Int("candidates", len(derived)),
			zap.Int("new", next.Len()))

		if next.Len() == 0 {
			break
		}
		delta = next
	}

	span.SetAttributes(attribute.Int("rounds", run.rounds), attribute.Int("derived", len(run.derived)))
	log.Info("fixpoint reached",
		zap.String("strategy", strategy),
		zap.Int("rounds", run.rounds),
		zap.Int("derived", len(run.derived)),
		zap.Int("facts", g.facts.Len()))
	return run.derived, nil
}

// evaluateRound evaluates every inference rule once. Results are merged in
// rule order so parallel and sequential evaluation commit identically.
func (g *KnowledgeGraph) evaluateRound(ctx context.Context, delta store.Reader, naive bool) ([]derivation, error) {
	if g.cfg.Parallelism <= 1 || len(g.rules) < 2 {
		var out []derivation
		for _, r := range g.rules {
			ds, err := g.evaluateRule(r, delta, naive)
			if err != nil {
				return nil, err
			}
			out = append(out, ds...)
		}
		return out, nil
	}

	results := make([][]derivation, len(g.rules))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Parallelism)
	for i, r := range g.rules {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			ds, err := g.evaluateRule(r, delta, naive)
			if err != nil {
				return err
			}
			results[i] = ds
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(results...), nil
}

// evaluateRule returns the conclusions r derives this round. In semi-naive
// mode each premise position in turn is matched against the delta, with the
// remaining premises matched against the full store.
func (g *KnowledgeGraph) evaluateRule(r rules.Rule, delta store.Reader, naive bool) ([]derivation, error) {
	var out []derivation
	emit := func(m rules.Match) error {
		ok, err := r.Accept(m.Binding, g.terms)
		if err != nil || !ok {
			return err
		}
		triples, err := r.Instantiate(m.Binding)
		if err != nil {
			return fmt.Errorf("%w: rule %d: %v", ErrInvariant, r.ID, err)
		}
		for _, t := range triples {
			out = append(out, derivation{rule: r.ID, triple: t})
		}
		return nil
	}

	if naive {
		for m := range rules.Join(r.Premise, func(int) store.Reader { return g.facts }) {
			if err := emit(m); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	for k := range r.Premise {
		// Put the delta premise first so the join is driven by new facts.
		premise := make([]store.Pattern, 0, len(r.Premise))
		premise = append(premise, r.Premise[k])
		premise = append(premise, r.Premise[:k]...)
		premise = append(premise, r.Premise[k+1:]...)
		source := func(i int) store.Reader {
			if i == 0 {
				return delta
			}
			return g.facts
		}
		for m := range rules.Join(premise, source) {
			if err := emit(m); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// commit inserts a round's derivations and returns the facts that were new.
// Re-derivations of stored facts are recorded as confirmations.
func (g *KnowledgeGraph) commit(run *inferenceRun, derived []derivation) *store.Store {
	next := store.New()
	for _, d := range derived {
		if _, dead := g.tombstones[d.triple]; dead {
			continue
		}
		f, added := g.facts.Add(d.triple, store.DerivedBy(d.rule))
		if added {
			next.Add(d.triple, f.Provenance)
			run.derived = append(run.derived, d.triple)
			g.metrics.DerivedFacts.Inc()
			g.metrics.Facts.Inc()
			continue
		}
		if f.Origin == store.Derived && f.RuleID == d.rule {
			continue
		}
		if f.Confirmed(d.rule) {
			continue
		}
		if _, seen := run.confirmed[f]; !seen {
			run.confirmed[f] = len(f.Confirmations)
		}
		f.Confirmations = append(f.Confirmations, d.rule)
		g.metrics.ConfirmedFacts.Inc()
	}
	return next
}

// rollback restores the store to its state before the run.
func (g *KnowledgeGraph) rollback(run *inferenceRun) {
	removed := g.facts.RollbackTo(run.mark)
	for f, n := range run.confirmed {
		f.Confirmations = f.Confirmations[:n]
	}
	g.metrics.Facts.Set(float64(g.facts.Len()))
	g.categoryLogger(logging.CategoryInference).Warn("inference rolled back",
		zap.Int("removed", removed),
		zap.Int("confirmations_reverted", len(run.confirmed)))
}
