package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"kgraph/internal/logging"
	"kgraph/internal/program"
	"kgraph/internal/udf"
)

// LoadProgram reads a YAML program and registers its rules, constraints
// and facts. Filter functions are compiled under the graph's UDF settings.
func (g *KnowledgeGraph) LoadProgram(ctx context.Context, path string) (program.Summary, error) {
	log := g.categoryLogger(logging.CategoryProgram)

	p, err := program.Load(path)
	if err != nil {
		return program.Summary{}, err
	}
	compiler, err := udf.NewCompiler(g.udf, log)
	if err != nil {
		return program.Summary{}, fmt.Errorf("%s: %w", path, err)
	}
	sum, err := p.Apply(ctx, g, compiler)
	if err != nil {
		return sum, fmt.Errorf("%s: %w", path, err)
	}
	log.Info("program loaded",
		zap.String("path", path),
		zap.Int("facts", sum.Facts),
		zap.Int("rules", sum.Rules),
		zap.Int("constraints", sum.Constraints))
	return sum, nil
}
