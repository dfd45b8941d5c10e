package core

import (
	"fmt"

	"go.uber.org/zap"

	"kgraph/internal/rules"
)

// ===== RULE AND CONSTRAINT REGISTRATION =====

// AddRule validates and registers an inference rule and returns its ID.
// A rule whose conclusion uses a variable the premise never binds is
// rejected with ErrMalformedRule and the rule set is left unchanged.
func (g *KnowledgeGraph) AddRule(r rules.Rule) (uint32, error) {
	r.Kind = rules.Inference
	return g.register(r)
}

// AddConstraint validates and registers an integrity constraint. Its
// conclusion must be empty or the rules.Violated sentinel.
func (g *KnowledgeGraph) AddConstraint(r rules.Rule) (uint32, error) {
	r.Kind = rules.Constraint
	return g.register(r)
}

func (g *KnowledgeGraph) register(r rules.Rule) (uint32, error) {
	normalized, err := rules.Normalize(r)
	if err != nil {
		g.logger.Warn("rejected rule", zap.String("kind", r.Kind.String()), zap.Error(err))
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	normalized.ID = g.nextRuleID
	g.nextRuleID++
	switch normalized.Kind {
	case rules.Inference:
		g.rules = append(g.rules, normalized)
	case rules.Constraint:
		g.constraints = append(g.constraints, normalized)
	default:
		return 0, fmt.Errorf("%w: unknown kind %v", ErrMalformedRule, normalized.Kind)
	}
	g.logger.Debug("registered rule",
		zap.Uint32("id", normalized.ID),
		zap.String("kind", normalized.Kind.String()),
		zap.String("name", normalized.Name),
		zap.Int("premises", len(normalized.Premise)))
	return normalized.ID, nil
}

// Rules returns the registered inference rules in registration order.
func (g *KnowledgeGraph) Rules() []rules.Rule {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return cloneRules(g.rules)
}

// Constraints returns the registered constraints in registration order.
func (g *KnowledgeGraph) Constraints() []rules.Rule {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return cloneRules(g.constraints)
}

// Rule returns the rule or constraint registered under id.
func (g *KnowledgeGraph) Rule(id uint32) (rules.Rule, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, set := range [][]rules.Rule{g.rules, g.constraints} {
		for _, r := range set {
			if r.ID == id {
				return r.Clone(), true
			}
		}
	}
	return rules.Rule{}, false
}

func cloneRules(rs []rules.Rule) []rules.Rule {
	out := make([]rules.Rule, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}
