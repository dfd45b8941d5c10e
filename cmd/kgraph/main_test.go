package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kgraph/internal/query"
)

const university = `facts:
  - john isA professor
  - john isA student
  - john teaches math101
  - john enrolledIn physics101
  - mary teaches cs101
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

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes the CLI with a config path that does not exist, so every
// setting is a default.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runWithConfig(t, filepath.Join(t.TempDir(), "kgraph.yaml"), args...)
}

func runWithConfig(t *testing.T, cfg string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", cfg}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestInfer(t *testing.T) {
	prog := writeFile(t, "university.yaml", university)
	out, err := run(t, "infer", prog)
	require.NoError(t, err)
	assert.Equal(t, "mary isA professor .\n", out)
}

func TestRepair(t *testing.T) {
	prog := writeFile(t, "university.yaml", university)
	out, err := run(t, "repair", prog)
	require.NoError(t, err)
	assert.Equal(t,
		"violation: professor and student violated by {john isA professor . john isA student .}\n"+
			"retracted: john isA student .\n", out)

	out, err = run(t, "repair", "--dry-run", prog)
	require.NoError(t, err)
	assert.NotContains(t, out, "retracted")
}

func TestQuery(t *testing.T) {
	prog := writeFile(t, "university.yaml", university)

	out, err := run(t, "query", prog, "--predicate", "isA", "--object", "professor")
	require.NoError(t, err)
	assert.Equal(t, "john isA professor .\nmary isA professor .\n", out)

	out, err = run(t, "query", prog, "--subject", "mary", "--format", "json")
	require.NoError(t, err)
	var rows []query.DecodedTriple
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 2)

	out, err = run(t, "query", prog, "--repaired", "john isA ?Role")
	require.NoError(t, err)
	assert.Equal(t, "?Role=professor\n", out)

	_, err = run(t, "query", prog, "--format", "xml")
	assert.Error(t, err)
}

func TestProve(t *testing.T) {
	prog := writeFile(t, "university.yaml", university)

	out, err := run(t, "prove", prog, "?Who isA professor")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"?Who=john", "?Who=mary"}, strings.Fields(out))

	out, err = run(t, "prove", prog, "mary isA professor")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	_, err = run(t, "prove", prog, "mary professor")
	assert.Error(t, err)
}

func TestStream(t *testing.T) {
	events := writeFile(t, "events.txt", "Alice knows Bob 1\nBob knows Charlie 2\nAlice likes Pizza 3\n")

	out, err := run(t, "stream", events, "--window", "10", "--slide", "2", "--predicate", "knows")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "@2\n  Alice knows Bob .\n  Bob knows Charlie .\n"), out)
	assert.NotContains(t, out, "Pizza")

	out, err = run(t, "stream", events, "--window", "10", "--slide", "2", "--subject", "Alice", "--operator", "istream")
	require.NoError(t, err)
	assert.Equal(t, "@2\n  Alice knows Bob .\n@3\n  Alice likes Pizza .\n", out)

	_, err = run(t, "stream", events, "--window", "0")
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	prog := writeFile(t, "university.yaml", university)
	out, err := run(t, "check", prog)
	require.NoError(t, err)
	assert.Equal(t, "ok: 6 facts agree\n", out)
}

func TestExport(t *testing.T) {
	prog := writeFile(t, "university.yaml", university)
	db := filepath.Join(t.TempDir(), "out", "graph.db")
	nt := filepath.Join(t.TempDir(), "graph.nt")

	out, err := run(t, "export", prog, "--repair", "--sqlite", db, "--ntriples", nt)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(nt)
	require.NoError(t, err)
	assert.Contains(t, string(data),
		"<http://kgraph.local/mary> <http://kgraph.local/isA> <http://kgraph.local/professor> . # derived by rule 0")
	assert.NotContains(t, string(data), "<http://kgraph.local/student>")

	_, err = os.Stat(db)
	require.NoError(t, err)

	out, err = run(t, "export", prog)
	require.NoError(t, err)
	assert.Equal(t, 6, strings.Count(out, "\n"))
}

func TestMetricsFlag(t *testing.T) {
	prog := writeFile(t, "university.yaml", university)
	out, err := run(t, "infer", prog, "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "kgraph_inference_derived_facts_total 1")
}

func TestMetricsFlagWithMetricsDisabled(t *testing.T) {
	prog := writeFile(t, "university.yaml", university)
	cfg := writeFile(t, "kgraph.yaml", "metrics:\n  enabled: false\n")
	out, err := runWithConfig(t, cfg, "infer", prog, "--metrics")
	require.NoError(t, err)
	assert.Equal(t, "mary isA professor .\n", out)
}

func TestExportBaseIRIFromConfig(t *testing.T) {
	prog := writeFile(t, "university.yaml", university)
	cfg := writeFile(t, "kgraph.yaml", "export:\n  base_iri: https://uni.example/kb/\n")
	out, err := runWithConfig(t, cfg, "export", prog)
	require.NoError(t, err)
	assert.Contains(t, out, "<https://uni.example/kb/mary> <https://uni.example/kb/isA> <https://uni.example/kb/professor> .")
}
