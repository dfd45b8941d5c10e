package core

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kgraph/internal/store"
)

func TestUniversityContradiction(t *testing.T) {
	ctx := context.Background()
	g := scenarioUniversity(t)

	derived, err := g.InferNewFacts(ctx)
	require.NoError(t, err)
	assert.Empty(t, derived, "both roles were already asserted")

	for _, role := range []string{"professor", "student"} {
		f, ok := g.Fact("john", "isA", role)
		require.True(t, ok)
		assert.True(t, f.IsAsserted())
		assert.Len(t, f.Confirmations, 1, "%s should be confirmed by inference", role)
	}

	witnesses, err := g.Violations(ctx)
	require.NoError(t, err)
	require.Len(t, witnesses, 1)
	desc, err := g.DescribeWitness(witnesses[0])
	require.NoError(t, err)
	assert.Contains(t, desc, "professor and student violated by")

	role := pat(g, "john", "isA", "?Role")
	bindings, err := g.QueryWithRepairs(ctx, role)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	got, err := g.DecodeTerm(bindings[0]["Role"])
	require.NoError(t, err)
	assert.Equal(t, "professor", got, "the later assertion is retracted")
	assert.Len(t, g.Match(role), 2, "QueryWithRepairs leaves the store untouched")

	retracted, err := g.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"john isA student"}, decoded(t, g, retracted))
	assert.Len(t, g.Match(role), 1)

	witnesses, err = g.Violations(ctx)
	require.NoError(t, err)
	assert.Empty(t, witnesses)
	assert.Equal(t, 1.0, testutil.ToFloat64(g.Metrics().RepairRetractions.WithLabelValues("asserted")))
}

func TestRepairedFactsStayRetracted(t *testing.T) {
	ctx := context.Background()
	g := scenarioUniversity(t)

	_, err := g.InferNewFactsSemiNaiveWithRepairs(ctx)
	require.NoError(t, err)
	require.False(t, g.Contains("john", "isA", "student"))

	derived, err := g.InferNewFacts(ctx)
	require.NoError(t, err)
	assert.Empty(t, derived)
	assert.False(t, g.Contains("john", "isA", "student"), "inference must not re-derive a repaired fact")

	g.AddABoxTriple("john", "isA", "student")
	witnesses, err := g.Violations(ctx)
	require.NoError(t, err)
	assert.Len(t, witnesses, 1, "re-assertion brings the conflict back")
}

func TestRepairPrefersDerivedFacts(t *testing.T) {
	ctx := context.Background()
	g := New()
	g.AddABoxTriple("john", "isA", "student")
	g.AddABoxTriple("john", "teaches", "math101")
	mustRule(t, g, rule("teachers are professors",
		[]store.Pattern{pat(g, "?X", "teaches", "?Y")},
		pat(g, "?X", "isA", "professor")))
	mustConstraint(t, g, rule("professor and student", []store.Pattern{
		pat(g, "?X", "isA", "professor"),
		pat(g, "?X", "isA", "student"),
	}))

	survivors, err := g.InferNewFactsSemiNaiveWithRepairs(ctx)
	require.NoError(t, err)
	assert.Empty(t, survivors)
	assert.True(t, g.Contains("john", "isA", "student"))
	assert.False(t, g.Contains("john", "isA", "professor"))
	assert.Equal(t, 1.0, testutil.ToFloat64(g.Metrics().RepairRetractions.WithLabelValues("derived")))
}

func TestRepairRetractsOncePerWitness(t *testing.T) {
	ctx := context.Background()
	g := New()
	for _, p := range []string{"ann", "bo", "cy"} {
		g.AddABoxTriple(p, "status", "alive")
		g.AddABoxTriple(p, "status", "dead")
	}
	mustConstraint(t, g, rule("alive and dead", []store.Pattern{
		pat(g, "?X", "status", "alive"),
		pat(g, "?X", "status", "dead"),
	}))

	retracted, err := g.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ann status dead", "bo status dead", "cy status dead"}, decoded(t, g, retracted))
	assert.Equal(t, 3, g.Len())
}

func TestRepairWithoutConstraintsIsNoop(t *testing.T) {
	g := New()
	chain(t, g, 2)
	retracted, err := g.Repair(context.Background())
	require.NoError(t, err)
	assert.Empty(t, retracted)
	assert.Equal(t, 2, g.Len())
}

func TestRepairHonorsCancellation(t *testing.T) {
	g := scenarioUniversity(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Repair(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 4, g.Len())
}
