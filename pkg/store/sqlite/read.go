package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/common"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/store"
)

// GetEntities returns the entities of a project with the number of
// documents mentioning each of them.
func (s *Store) GetEntities(ctx context.Context, q store.EntityQuery) ([]common.Entity, error) {
	query := `
SELECT e.id, e.name, e.type, e.properties, COUNT(m.document_id)
FROM entities e
LEFT JOIN entity_mentions m ON m.project_id = e.project_id AND m.entity_id = e.id
WHERE e.project_id = ?`
	args := []any{q.ProjectID}

	typeClause, typeArgs := inClause("e.type", q.EntityTypes)
	query += typeClause
	args = append(args, typeArgs...)

	if docClause, docArgs := inClause("dm.document_id", q.DocumentIDs); docClause != "" {
		query += ` AND EXISTS (SELECT 1 FROM entity_mentions dm
WHERE dm.project_id = e.project_id AND dm.entity_id = e.id` + docClause + `)`
		args = append(args, docArgs...)
	}
	query += ` GROUP BY e.id ORDER BY e.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var out []common.Entity
	for rows.Next() {
		var e common.Entity
		var props string
		if err := rows.Scan(&e.ID, &e.Label, &e.Type, &props, &e.DocumentCount); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		if props != "" && props != "{}" {
			if err := json.Unmarshal([]byte(props), &e.Properties); err != nil {
				return nil, fmt.Errorf("entity %s has invalid properties: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetDocumentEntities returns the entities mentioned per document.
// Documents without mentions are left out.
func (s *Store) GetDocumentEntities(ctx context.Context, q store.DocumentQuery) ([]common.DocumentEntities, error) {
	query := `
SELECT d.id, d.created_at, m.entity_id
FROM documents d
JOIN entity_mentions m ON m.project_id = d.project_id AND m.document_id = d.id
WHERE d.project_id = ?`
	args := []any{q.ProjectID}
	docClause, docArgs := inClause("d.id", q.DocumentIDs)
	query += docClause + ` ORDER BY d.id, m.entity_id`
	args = append(args, docArgs...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query document entities: %w", err)
	}
	defer rows.Close()

	var out []common.DocumentEntities
	for rows.Next() {
		var docID, createdAt, entityID string
		if err := rows.Scan(&docID, &createdAt, &entityID); err != nil {
			return nil, fmt.Errorf("failed to scan document entity: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].DocumentID != docID {
			doc := common.DocumentEntities{DocumentID: docID}
			if createdAt != "" {
				t, err := time.Parse(time.RFC3339Nano, createdAt)
				if err != nil {
					return nil, fmt.Errorf("document %s has invalid date: %w", docID, err)
				}
				doc.CreatedAt = t
			}
			out = append(out, doc)
		}
		last := &out[len(out)-1]
		last.EntityIDs = append(last.EntityIDs, entityID)
	}
	return out, rows.Err()
}

// GetRelationships returns the typed relationships of a project.
func (s *Store) GetRelationships(ctx context.Context, projectID string) ([]common.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT source_id, target_id, type FROM relationships
WHERE project_id = ?
ORDER BY source_id, target_id, type`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var out []common.Relationship
	for rows.Next() {
		var r common.Relationship
		if err := rows.Scan(&r.SourceID, &r.TargetID, &r.Type); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
