package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dataset = `{
  "project_name": "letters",
  "entities": [
    {"id": "e1", "label": "Ada", "entity_type": "person"},
    {"id": "e2", "label": "Society", "entity_type": "org"},
    {"id": "e3", "label": "Charles", "entity_type": "person"}
  ],
  "documents": [
    {"document_id": "d1", "entity_ids": ["e1", "e2"]},
    {"document_id": "d2", "entity_ids": ["e1", "e2"]},
    {"document_id": "d3", "entity_ids": ["e2", "e3"]}
  ]
}`

// run executes graphctl with args against a fresh SQLite file seeded with
// dataset.
func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--sqlite", dbPath, "--database-url", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func seeded(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "dataset.json")
	require.NoError(t, os.WriteFile(file, []byte(dataset), 0o644))

	dbPath := filepath.Join(dir, "graph.db")
	out, err := run(t, dbPath, "import", "p1", file)
	require.NoError(t, err)
	assert.Equal(t, "imported 3 entities, 3 documents, 0 relationships\n", out)
	return dbPath
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCmd()
	assert.Equal(t, "graphctl", cmd.Use)
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"import", "drop", "stats", "export", "centrality", "communities", "path", "neighbors", "migrate", "publish"} {
		assert.True(t, names[want], want)
	}
}

func TestStats(t *testing.T) {
	dbPath := seeded(t)

	out, err := run(t, dbPath, "stats", "p1")
	require.NoError(t, err)
	var stats graph.Statistics
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 3, stats.NodeCount)
	assert.Equal(t, 2, stats.EdgeCount)

	out, err = run(t, dbPath, "stats", "p1", "--entity-types", "person")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.NodeCount)
	assert.Equal(t, 0, stats.EdgeCount)
}

func TestExport(t *testing.T) {
	dbPath := seeded(t)

	out, err := run(t, dbPath, "export", "p1", "--format", "GraphML")
	require.NoError(t, err)
	assert.Contains(t, out, "<graphml")

	file := filepath.Join(t.TempDir(), "graph.gexf")
	_, err = run(t, dbPath, "export", "p1", "--format", "gexf", "-o", file)
	require.NoError(t, err)
	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(b), "<gexf")

	_, err = run(t, dbPath, "export", "p1", "--format", "svg")
	assert.ErrorIs(t, err, graph.ErrInvalidParameter)
}

func TestCentralityAndCommunities(t *testing.T) {
	dbPath := seeded(t)

	out, err := run(t, dbPath, "centrality", "p1", "--limit", "1")
	require.NoError(t, err)
	var scores []graph.CentralityScore
	require.NoError(t, json.Unmarshal([]byte(out), &scores))
	require.Len(t, scores, 1)
	assert.Equal(t, "e2", scores[0].NodeID)

	_, err = run(t, dbPath, "centrality", "p1", "--metric", "bogus")
	assert.ErrorIs(t, err, graph.ErrUnknownMetric)

	out, err = run(t, dbPath, "communities", "p1")
	require.NoError(t, err)
	var res graph.CommunityResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.NotEmpty(t, res.Communities)
}

func TestPathAndNeighbors(t *testing.T) {
	dbPath := seeded(t)

	out, err := run(t, dbPath, "path", "p1", "e1", "e3")
	require.NoError(t, err)
	var path graph.PathResult
	require.NoError(t, json.Unmarshal([]byte(out), &path))
	assert.Equal(t, []string{"e1", "e2", "e3"}, path.PathNodes)

	out, err = run(t, dbPath, "path", "p1", "e1", "e3", "--all", "--max-length", "1")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))

	_, err = run(t, dbPath, "path", "p1", "e1", "ghost")
	assert.ErrorIs(t, err, graph.ErrEntityNotFound)

	out, err = run(t, dbPath, "neighbors", "p1", "e1", "--degree", "2")
	require.NoError(t, err)
	var neighbors []graph.NeighborResult
	require.NoError(t, json.Unmarshal([]byte(out), &neighbors))
	require.Len(t, neighbors, 2)
	assert.Equal(t, "e2", neighbors[0].ID)
	assert.Equal(t, 2, neighbors[1].Distance)
}

func TestMissingSource(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--sqlite", "", "--database-url", "", "stats", "p1"})
	assert.ErrorContains(t, cmd.Execute(), "no graph source")

	_, err := run(t, "", "migrate", "up")
	assert.ErrorContains(t, err, "--database-url")
}

func TestDrop(t *testing.T) {
	dbPath := seeded(t)

	out, err := run(t, dbPath, "drop", "p1")
	require.NoError(t, err)
	assert.Equal(t, "dropped project p1\n", out)

	out, err = run(t, dbPath, "stats", "p1")
	require.NoError(t, err)
	var stats graph.Statistics
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Zero(t, stats.NodeCount)
}
