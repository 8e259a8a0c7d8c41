package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	files, err := fs.Glob(Migrations(), "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, f := range files {
		name := strings.TrimPrefix(f, "migrations/")
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestSchemaHasGraphSourceTables(t *testing.T) {
	b, err := fs.ReadFile(Migrations(), "migrations/000001_graph_sources.up.sql")
	require.NoError(t, err)
	for _, table := range []string{"projects", "project_files", "entities", "entity_mentions", "relationships"} {
		assert.Contains(t, string(b), "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}

func TestRollbackRejectsNonPositiveSteps(t *testing.T) {
	assert.Error(t, Rollback("postgres://unused", 0))
}
