package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/util"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/store"
)

// Import writes ds into the project in one transaction. Mentions and
// relationships that refer to unknown entities are skipped.
func (s *Store) Import(ctx context.Context, projectID string, ds store.Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	if err := importDataset(ctx, tx, projectID, ds); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
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

func importDataset(ctx context.Context, tx *sql.Tx, projectID string, ds store.Dataset) error {
	if _, err := tx.ExecContext(ctx, `
INSERT INTO projects (id, name) VALUES (?, ?)
ON CONFLICT (id) DO UPDATE SET name = CASE WHEN excluded.name = '' THEN projects.name ELSE excluded.name END`,
		projectID, util.CleanLabel(ds.ProjectName)); err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}

	for _, e := range ds.Entities {
		props := []byte("{}")
		if len(e.Properties) > 0 {
			b, err := json.Marshal(e.Properties)
			if err != nil {
				return fmt.Errorf("entity %s has invalid properties: %w", e.ID, err)
			}
			props = b
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO entities (project_id, id, name, type, properties) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (project_id, id) DO UPDATE SET name = excluded.name, type = excluded.type, properties = excluded.properties`,
			projectID, e.ID, util.CleanLabel(e.Label), util.CleanType(e.Type), string(props)); err != nil {
			return fmt.Errorf("failed to upsert entity %s: %w", e.ID, err)
		}
	}

	for _, d := range ds.Documents {
		createdAt := ""
		if !d.CreatedAt.IsZero() {
			createdAt = d.CreatedAt.UTC().Format(time.RFC3339Nano)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO documents (project_id, id, created_at) VALUES (?, ?, ?)
ON CONFLICT (project_id, id) DO UPDATE SET created_at = CASE WHEN excluded.created_at = '' THEN documents.created_at ELSE excluded.created_at END`,
			projectID, d.DocumentID, createdAt); err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", d.DocumentID, err)
		}
		for _, entityID := range store.DedupeStrings(d.EntityIDs) {
			if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO entity_mentions (project_id, entity_id, document_id)
SELECT ?, ?, ? WHERE EXISTS (SELECT 1 FROM entities WHERE project_id = ? AND id = ?)`,
				projectID, entityID, d.DocumentID, projectID, entityID); err != nil {
				return fmt.Errorf("failed to insert mention of %s: %w", entityID, err)
			}
		}
	}

	for _, r := range ds.Relationships {
		if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO relationships (project_id, source_id, target_id, type)
SELECT ?, ?, ?, ?
WHERE EXISTS (SELECT 1 FROM entities WHERE project_id = ? AND id = ?)
  AND EXISTS (SELECT 1 FROM entities WHERE project_id = ? AND id = ?)`,
			projectID, r.SourceID, r.TargetID, util.CleanType(r.Type),
			projectID, r.SourceID, projectID, r.TargetID); err != nil {
			return fmt.Errorf("failed to insert relationship %s-%s: %w", r.SourceID, r.TargetID, err)
		}
	}
	return nil
}

// DeleteProject removes every record of a project.
func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"relationships", "entity_mentions", "entities", "documents"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE project_id = ?", projectID); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", projectID); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return tx.Commit()
}
