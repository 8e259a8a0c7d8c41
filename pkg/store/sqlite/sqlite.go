// Package sqlite is a file based graph source for local use and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/store"

	_ "modernc.org/sqlite"
)

var (
	_ store.GraphSource = (*Store)(nil)
	_ store.Importer    = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id   TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS documents (
    project_id TEXT NOT NULL,
    id         TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (project_id, id)
);
CREATE TABLE IF NOT EXISTS entities (
    project_id TEXT NOT NULL,
    id         TEXT NOT NULL,
    name       TEXT NOT NULL DEFAULT '',
    type       TEXT NOT NULL DEFAULT '',
    properties TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (project_id, id)
);
CREATE INDEX IF NOT EXISTS entities_type_idx ON entities (project_id, type);
CREATE TABLE IF NOT EXISTS entity_mentions (
    project_id  TEXT NOT NULL,
    entity_id   TEXT NOT NULL,
    document_id TEXT NOT NULL,
    PRIMARY KEY (project_id, entity_id, document_id)
);
CREATE INDEX IF NOT EXISTS entity_mentions_document_idx ON entity_mentions (project_id, document_id);
CREATE TABLE IF NOT EXISTS relationships (
    project_id TEXT NOT NULL,
    source_id  TEXT NOT NULL,
    target_id  TEXT NOT NULL,
    type       TEXT NOT NULL,
    PRIMARY KEY (project_id, source_id, target_id, type)
);`

// Store reads and writes graph sources in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at dsn and bootstraps the schema.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// an in-memory database lives in a single connection
	conn.SetMaxOpenConns(1)

	s := &Store{db: conn}
	if err := s.bootstrap(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Debug("[Store] Opened sqlite database", "dsn", dsn)
	return s, nil
}

func (s *Store) bootstrap(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to configure sqlite: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// inClause renders "AND column IN (?, ...)" for a non-empty value list.
func inClause(column string, values []string) (string, []any) {
	if len(values) == 0 {
		return "", nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return fmt.Sprintf(" AND %s IN (%s)", column, strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")), args
}
