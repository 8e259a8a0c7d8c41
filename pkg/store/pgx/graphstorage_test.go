package pgx

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/db"
	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/util"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/common"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingConn struct {
	err   error
	calls int
}

func (c *failingConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	c.calls++
	return pgconn.CommandTag{}, c.err
}

func (c *failingConn) Query(context.Context, string, ...any) (pgxv5.Rows, error) {
	c.calls++
	return nil, c.err
}

func (c *failingConn) QueryRow(context.Context, string, ...any) pgxv5.Row {
	c.calls++
	return nil
}

func (c *failingConn) Begin(context.Context) (pgxv5.Tx, error) {
	c.calls++
	return nil, c.err
}

func TestTransportErrorsAreRetried(t *testing.T) {
	conn := &failingConn{err: errors.New("connection reset")}
	s := NewGraphDBStorageWithConnection(conn, WithRetries(3, util.NoBackoff))

	_, err := s.GetEntities(context.Background(), store.EntityQuery{ProjectID: "1"})
	assert.ErrorContains(t, err, "failed to query entities")
	assert.ErrorIs(t, err, conn.err)
	assert.Equal(t, 3, conn.calls)
}

func TestServerErrorsAreNotRetried(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "42P01", Message: `relation "entities" does not exist`}
	conn := &failingConn{err: pgErr}
	s := NewGraphDBStorageWithConnection(conn, WithRetries(3, util.NoBackoff))

	_, err := s.GetDocumentEntities(context.Background(), store.DocumentQuery{ProjectID: "1"})
	var got *pgconn.PgError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "42P01", got.Code)
	assert.Equal(t, 1, conn.calls)
}

func TestNonNumericProjectMatchesNothing(t *testing.T) {
	conn := &failingConn{err: errors.New("must not be called")}
	s := NewGraphDBStorageWithConnection(conn)
	ctx := context.Background()

	entities, err := s.GetEntities(ctx, store.EntityQuery{ProjectID: "abc"})
	require.NoError(t, err)
	assert.Empty(t, entities)
	docs, err := s.GetDocumentEntities(ctx, store.DocumentQuery{ProjectID: "abc"})
	require.NoError(t, err)
	assert.Empty(t, docs)
	rels, err := s.GetRelationships(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, rels)
	assert.Zero(t, conn.calls)

	assert.Error(t, s.Import(ctx, "abc", store.Dataset{}))
}

func TestImportBeginFailure(t *testing.T) {
	conn := &failingConn{err: errors.New("pool closed")}
	s := NewGraphDBStorageWithConnection(conn)
	err := s.Import(context.Background(), "1", store.Dataset{})
	assert.ErrorContains(t, err, "failed to begin import")
}

// TestPostgresRoundTrip runs against a real database when
// GRAPH_TEST_DATABASE_URL is set.
func TestPostgresRoundTrip(t *testing.T) {
	url := os.Getenv("GRAPH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("GRAPH_TEST_DATABASE_URL not set")
	}
	require.NoError(t, db.Migrate(url))

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	projectID := "990001"
	_, err = pool.Exec(ctx, "DELETE FROM projects WHERE id = $1", 990001)
	require.NoError(t, err)

	s := NewGraphDBStorageWithConnection(pool, WithBatchSize(2))
	day := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Import(ctx, projectID, store.Dataset{
		ProjectName: "roundtrip",
		Entities: []common.Entity{
			{ID: "e1", Label: "Ada\x00", Type: "person", Properties: map[string]any{"born": "1815"}},
			{ID: "e2", Label: "Analytical Engine", Type: "machine"},
		},
		Documents: []common.DocumentEntities{
			{DocumentID: "d1", EntityIDs: []string{"e2", "e1", "ghost"}, CreatedAt: day},
			{DocumentID: "d2", EntityIDs: []string{"e1"}},
		},
		Relationships: []common.Relationship{{SourceID: "e1", TargetID: "e2", Type: "designed"}},
	}))

	entities, err := s.GetEntities(ctx, store.EntityQuery{ProjectID: projectID})
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "Ada", entities[0].Label)
	assert.Equal(t, 2, entities[0].DocumentCount)
	assert.Equal(t, "1815", entities[0].Properties["born"])

	persons, err := s.GetEntities(ctx, store.EntityQuery{ProjectID: projectID, EntityTypes: []string{"person"}})
	require.NoError(t, err)
	assert.Len(t, persons, 1)

	docs, err := s.GetDocumentEntities(ctx, store.DocumentQuery{ProjectID: projectID, DocumentIDs: []string{"d1"}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"e1", "e2"}, docs[0].EntityIDs)
	assert.True(t, docs[0].CreatedAt.Equal(day))

	rels, err := s.GetRelationships(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, []common.Relationship{{SourceID: "e1", TargetID: "e2", Type: "designed"}}, rels)
}
