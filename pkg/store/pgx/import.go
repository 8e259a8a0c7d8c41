package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/util"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const (
	upsertProjectSQL = `
INSERT INTO projects (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = CASE WHEN EXCLUDED.name = '' THEN projects.name ELSE EXCLUDED.name END`

	upsertEntitySQL = `
INSERT INTO entities (project_id, public_id, name, type, properties) VALUES ($1, $2, $3, $4, $5::jsonb)
ON CONFLICT (project_id, public_id) DO UPDATE
SET name = EXCLUDED.name, type = EXCLUDED.type, properties = EXCLUDED.properties`

	upsertFileSQL = `
INSERT INTO project_files (project_id, public_id, created_at) VALUES ($1, $2, COALESCE($3::timestamptz, now()))
ON CONFLICT (project_id, public_id) DO UPDATE SET created_at = COALESCE($3::timestamptz, project_files.created_at)`

	insertMentionSQL = `
INSERT INTO entity_mentions (entity_id, file_id)
SELECT e.id, f.id FROM entities e, project_files f
WHERE e.project_id = $1 AND e.public_id = $2 AND f.project_id = $1 AND f.public_id = $3
ON CONFLICT DO NOTHING`

	insertRelationshipSQL = `
INSERT INTO relationships (project_id, source_id, target_id, type)
SELECT $1, s.id, t.id, $4 FROM entities s, entities t
WHERE s.project_id = $1 AND s.public_id = $2 AND t.project_id = $1 AND t.public_id = $3
ON CONFLICT DO NOTHING`
)

type statement struct {
	sql  string
	args []any
}

// Import writes ds into the project in one transaction. Mentions and
// relationships that refer to unknown entities are skipped.
func (s *GraphDBStorage) Import(ctx context.Context, projectID string, ds store.Dataset) error {
	id, ok := parseProjectID(projectID)
	if !ok {
		return fmt.Errorf("project id %q is not numeric", projectID)
	}

	stmts := make([]statement, 0, len(ds.Entities)+len(ds.Documents)*2+len(ds.Relationships))
	for _, e := range ds.Entities {
		props := e.Properties
		if props == nil {
			props = map[string]any{}
		}
		stmts = append(stmts, statement{upsertEntitySQL, []any{
			id,
			e.ID,
			util.CleanLabel(e.Label),
			util.CleanType(e.Type),
			props,
		}})
	}
	for _, d := range ds.Documents {
		var createdAt any
		if !d.CreatedAt.IsZero() {
			createdAt = d.CreatedAt
		}
		stmts = append(stmts, statement{upsertFileSQL, []any{id, d.DocumentID, createdAt}})
		for _, entityID := range store.DedupeStrings(d.EntityIDs) {
			stmts = append(stmts, statement{insertMentionSQL, []any{id, entityID, d.DocumentID}})
		}
	}
	for _, r := range ds.Relationships {
		stmts = append(stmts, statement{insertRelationshipSQL, []any{
			id, r.SourceID, r.TargetID, util.CleanType(r.Type),
		}})
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, upsertProjectSQL, id, util.CleanLabel(ds.ProjectName)); err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}

	err = store.ChunkRange(len(stmts), s.batchSize, func(start, end int) error {
		batch := &pgxv5.Batch{}
		for _, st := range stmts[start:end] {
			batch.Queue(st.sql, st.args...)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to import statements %d-%d: %w", start, end, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	logger.Info("[Store] Imported dataset",
		"project_id", projectID,
		"entities", len(ds.Entities),
		"documents", len(ds.Documents),
		"relationships", len(ds.Relationships),
	)
	return nil
}
