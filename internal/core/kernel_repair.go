package core

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"kgraph/internal/logging"
	"kgraph/internal/store"
)

// ===== CONSTRAINTS AND REPAIR =====
//
// Repair policy, applied one retraction at a time until no witness remains:
//
//  1. Take the first witness: constraints in registration order, bindings
//     in join order.
//  2. Among its responsible facts, retract the derived fact with the
//     highest insertion sequence (the one furthest along the derivation
//     chain).
//  3. Only when every responsible fact is asserted, retract the asserted
//     fact with the highest insertion sequence.
//
// The same plan is computed on a read-only view by QueryWithRepairs, so a
// query against the repaired view and an actual Repair always agree.

// Witness is a binding under which a constraint's premise holds, with the
// facts that matched it.
type Witness struct {
	ConstraintID uint32
	Binding      store.Binding
	Facts        []store.Triple
}

// Violations returns every constraint witness against the current store.
func (g *KnowledgeGraph) Violations(ctx context.Context) ([]Witness, error) {
	_, span := g.tracer.Start(ctx, "core.Violations")
	defer span.End()

	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Witness
	for _, c := range g.constraints {
		var err error
		for m := range c.Solve(g.facts, g.terms, &err) {
			out = append(out, Witness{ConstraintID: c.ID, Binding: m.Binding, Facts: m.Facts})
		}
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}
	span.SetAttributes(attribute.Int("witnesses", len(out)))
	return out, nil
}

// Repair retracts facts until no constraint witness remains and returns
// the retracted facts in retraction order. Retracted facts are not
// re-derived by later inference unless asserted again.
func (g *KnowledgeGraph) Repair(ctx context.Context) ([]store.Triple, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.repairLocked(ctx)
}

// InferNewFactsSemiNaiveWithRepairs runs semi-naive inference to a fixpoint,
// then repairs the store. It returns the facts derived by this call that
// survived the repair.
func (g *KnowledgeGraph) InferNewFactsSemiNaiveWithRepairs(ctx context.Context) ([]store.Triple, error) {
	ctx, span := g.tracer.Start(ctx, "core.InferNewFactsSemiNaiveWithRepairs")
	defer span.End()

	g.mu.Lock()
	defer g.mu.Unlock()

	derived, err := g.inferLocked(ctx, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	retracted, err := g.repairLocked(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(retracted) == 0 {
		return derived, nil
	}
	gone := make(map[store.Triple]struct{}, len(retracted))
	for _, t := range retracted {
		gone[t] = struct{}{}
	}
	return slices.DeleteFunc(derived, func(t store.Triple) bool {
		_, ok := gone[t]
		return ok
	}), nil
}

// QueryWithRepairs matches p against the store as Repair would leave it,
// without modifying the store.
func (g *KnowledgeGraph) QueryWithRepairs(ctx context.Context, p store.Pattern) ([]store.Binding, error) {
	ctx, span := g.tracer.Start(ctx, "core.QueryWithRepairs")
	defer span.End()

	g.mu.RLock()
	defer g.mu.RUnlock()

	_, removed, err := g.planRepair(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	view := store.Excluding(g.facts, removed)

	var out []store.Binding
	for b := range store.Match(view, p, nil) {
		out = append(out, b)
	}
	span.SetAttributes(attribute.Int("bindings", len(out)), attribute.Int("hidden", len(removed)))
	return out, nil
}

func (g *KnowledgeGraph) repairLocked(ctx context.Context) ([]store.Triple, error) {
	ctx, span := g.tracer.Start(ctx, "core.Repair")
	defer span.End()

	log := g.categoryLogger(logging.CategoryRepair)
	timer := logging.StartTimer(log, "Repair")
	defer timer.Stop()

	plan, _, err := g.planRepair(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	for _, t := range plan {
		f, ok := g.facts.Remove(t)
		if !ok {
			continue
		}
		g.tombstones[t] = struct{}{}
		g.metrics.ConstraintWitnesses.Inc()
		g.metrics.RepairRetractions.WithLabelValues(f.Origin.String()).Inc()
		log.Info("retracted fact",
			zap.Stringer("triple", t),
			zap.Stringer("provenance", f.Provenance),
			zap.Uint64("seq", f.Seq))
	}
	g.metrics.Facts.Set(float64(g.facts.Len()))
	span.SetAttributes(attribute.Int("retracted", len(plan)))
	return plan, nil
}

// planRepair computes the retraction sequence without mutating the store.
// It returns the retractions in order and the same facts as a set.
func (g *KnowledgeGraph) planRepair(ctx context.Context) ([]store.Triple, map[store.Triple]struct{}, error) {
	removed := make(map[store.Triple]struct{})
	view := store.Excluding(g.facts, removed)

	var plan []store.Triple
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		w, found, err := g.firstWitness(view)
		if err != nil {
			return nil, nil, err
		}
		if !found {
			return plan, removed, nil
		}
		victim := g.chooseVictim(w)
		removed[victim] = struct{}{}
		plan = append(plan, victim)
	}
}

func (g *KnowledgeGraph) firstWitness(view store.Reader) (Witness, bool, error) {
	for _, c := range g.constraints {
		var err error
		for m := range c.Solve(view, g.terms, &err) {
			return Witness{ConstraintID: c.ID, Binding: m.Binding, Facts: m.Facts}, true, nil
		}
		if err != nil {
			return Witness{}, false, err
		}
	}
	return Witness{}, false, nil
}

// chooseVictim applies the retraction policy to one witness.
func (g *KnowledgeGraph) chooseVictim(w Witness) store.Triple {
	var best *store.Fact
	for _, t := range w.Facts {
		f, ok := g.facts.Get(t)
		if !ok {
			continue
		}
		if best == nil || preferRetract(f, best) {
			best = f
		}
	}
	return best.Triple
}

// preferRetract reports whether a is a better retraction candidate than b.
func preferRetract(a, b *store.Fact) bool {
	if a.IsAsserted() != b.IsAsserted() {
		return !a.IsAsserted()
	}
	return a.Seq > b.Seq
}

// DescribeWitness renders w with decoded terms, for reports.
func (g *KnowledgeGraph) DescribeWitness(w Witness) (string, error) {
	g.mu.RLock()
	name := fmt.Sprintf("#%d", w.ConstraintID)
	for _, c := range g.constraints {
		if c.ID == w.ConstraintID && c.Name != "" {
			name = c.Name
		}
	}
	g.mu.RUnlock()

	parts := make([]string, 0, len(w.Facts))
	for _, t := range w.Facts {
		line, err := g.terms.DecodeTriple(t.S, t.P, t.O)
		if err != nil {
			return "", err
		}
		parts = append(parts, line)
	}
	return fmt.Sprintf("%s violated by {%s}", name, strings.Join(parts, " ")), nil
}
