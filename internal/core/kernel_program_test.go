package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kgraph/internal/query"
)

func TestLoadProgram(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ages.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
facts:
  - alice age 30
  - bob age 15
rules:
  - name: adults
    when:
      - ?X age ?A
    where:
      - ?A > 17
    then:
      - ?X isA adult
`), 0o644))

	g := New()
	sum, err := g.LoadProgram(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Facts)

	derived, err := g.InferNewFacts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice isA adult"}, decoded(t, g, derived))
}

func TestNewStreamSharesTermsAndMetrics(t *testing.T) {
	g := New()
	g.AddABoxTriple("Alice", "knows", "Bob")

	s, err := g.NewStream().Window(10, 2).WithPredicate("knows").Build()
	require.NoError(t, err)
	require.NoError(t, s.AddStreamTriple("Alice", "knows", "Bob", 1))
	require.NoError(t, s.AddStreamTriple("Bob", "knows", "Charlie", 2))
	require.NoError(t, s.AddStreamTriple("Alice", "likes", "Pizza", 3))

	batches, err := s.GetStreamResults()
	require.NoError(t, err)
	require.NotEmpty(t, batches)
	assert.Equal(t, []query.DecodedTriple{
		{Subject: "Alice", Predicate: "knows", Object: "Bob"},
		{Subject: "Bob", Predicate: "knows", Object: "Charlie"},
	}, batches[0].Triples)

	_, ok := g.LookupTerm("Pizza")
	assert.True(t, ok, "stream terms are interned in the graph's table")
	assert.Equal(t, 3.0, testutil.ToFloat64(g.Metrics().StreamIngested))
	assert.Equal(t, 1, g.Len(), "stream facts never enter the graph's store")
}
