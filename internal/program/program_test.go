package program_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"kgraph/internal/config"
	"kgraph/internal/core"
	"kgraph/internal/program"
	"kgraph/internal/udf"
)

const university = `
facts:
  - john isA professor
  - john isA student
  - john teaches math101
  - john enrolledIn physics101
rules:
  - name: teachers are professors
    when:
      - ?X teaches ?Y
    then:
      - ?X isA professor
  - name: enrolled are students
    when:
      - ?X enrolledIn ?Y
    then:
      - ?X isA student
constraints:
  - name: professor and student
    when:
      - ?X isA professor
      - ?X isA student
`

func TestApplyUniversity(t *testing.T) {
	p, err := program.Parse([]byte(university))
	require.NoError(t, err)

	g := core.New()
	sum, err := p.Apply(context.Background(), g, nil)
	require.NoError(t, err)
	assert.Equal(t, program.Summary{Facts: 4, Rules: 2, Constraints: 1}, sum)

	witnesses, err := g.Violations(context.Background())
	require.NoError(t, err)
	assert.Len(t, witnesses, 1)
}

func TestParseRejectsInvalidPrograms(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"short fact", "facts:\n  - a b\n"},
		{"long fact", "facts:\n  - a b c d\n"},
		{"rule without premise", "rules:\n  - name: r\n    then:\n      - a b c\n"},
		{"rule without conclusion", "rules:\n  - name: r\n    when:\n      - ?X b c\n"},
		{"constraint with conclusion", "constraints:\n  - name: c\n    when:\n      - ?X b c\n    then:\n      - ?X d e\n"},
		{"short filter", "rules:\n  - when:\n      - ?X age ?A\n    where:\n      - ?A >\n    then:\n      - ?X ok yes\n"},
		{"filter without op", "rules:\n  - when:\n      - ?X age ?A\n    where:\n      - var: ?A\n        value: '3'\n    then:\n      - ?X ok yes\n"},
		{"filter variable without marker", "rules:\n  - when:\n      - ?X age ?A\n    where:\n      - A > 3\n    then:\n      - ?X ok yes\n"},
		{"not yaml", "facts: [[["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := program.Parse([]byte(tt.src))
			assert.ErrorIs(t, err, program.ErrInvalidProgram)
		})
	}
}

func TestApplyLeavesTargetUnchangedOnBadRule(t *testing.T) {
	p, err := program.Parse([]byte(`
facts:
  - a p b
rules:
  - name: fine
    when:
      - ?X p ?Y
    then:
      - ?Y p ?X
  - name: unbound head
    when:
      - ?X p ?Y
    then:
      - ?X q ?Z
`))
	require.NoError(t, err)

	g := core.New()
	_, err = p.Apply(context.Background(), g, nil)
	assert.ErrorIs(t, err, core.ErrMalformedRule)
	assert.Empty(t, g.Rules())
	assert.Zero(t, g.Len())
}

func TestApplyFilters(t *testing.T) {
	p, err := program.Parse([]byte(`
facts:
  - alice age 30
  - bob age 15
  - alice email alice@mit.edu
  - bob email bob@example.com
rules:
  - name: adults
    when:
      - ?X age ?A
    where:
      - ?A >= 18
    then:
      - ?X isA adult
  - name: academics
    when:
      - ?X email ?E
    where:
      - var: ?E
        udf: |
          import "strings"

          func Filter(v string) bool { return strings.HasSuffix(v, ".edu") }
    then:
      - ?X isA academic
`))
	require.NoError(t, err)

	compiler, err := udf.NewCompiler(config.DefaultConfig().UDF, zaptest.NewLogger(t))
	require.NoError(t, err)

	g := core.New()
	_, err = p.Apply(context.Background(), g, compiler)
	require.NoError(t, err)
	_, err = g.InferNewFacts(context.Background())
	require.NoError(t, err)

	assert.True(t, g.Contains("alice", "isA", "adult"))
	assert.False(t, g.Contains("bob", "isA", "adult"))
	assert.True(t, g.Contains("alice", "isA", "academic"))
	assert.False(t, g.Contains("bob", "isA", "academic"))
}

func TestUDFWithoutCompiler(t *testing.T) {
	p, err := program.Parse([]byte(`
rules:
  - when:
      - ?X p ?Y
    where:
      - var: ?Y
        udf: "func Filter(v string) bool { return true }"
    then:
      - ?Y p ?X
`))
	require.NoError(t, err)
	_, err = p.Apply(context.Background(), core.New(), nil)
	assert.ErrorIs(t, err, program.ErrInvalidProgram)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "university.yaml")
	require.NoError(t, os.WriteFile(path, []byte(university), 0o644))

	p, err := program.Load(path)
	require.NoError(t, err)
	assert.Len(t, p.Facts, 4)

	_, err = program.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
