package pgx

import (
	"context"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/common"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const getDocumentEntitiesSQL = `
SELECT f.public_id, f.created_at, array_agg(DISTINCT e.public_id ORDER BY e.public_id)
FROM project_files f
JOIN entity_mentions m ON m.file_id = f.id
JOIN entities e ON e.id = m.entity_id
WHERE f.project_id = $1
  AND (cardinality($2::text[]) = 0 OR f.public_id = ANY($2::text[]))
GROUP BY f.id
ORDER BY f.public_id`

// GetDocumentEntities returns the entities mentioned per document. Documents
// without mentions are left out.
func (s *GraphDBStorage) GetDocumentEntities(ctx context.Context, q store.DocumentQuery) ([]common.DocumentEntities, error) {
	projectID, ok := parseProjectID(q.ProjectID)
	if !ok {
		return nil, nil
	}
	return query(ctx, s, "document entities", func(ctx context.Context) ([]common.DocumentEntities, error) {
		rows, err := s.conn.Query(ctx, getDocumentEntitiesSQL, projectID, nonNil(q.DocumentIDs))
		if err != nil {
			return nil, err
		}
		return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.DocumentEntities, error) {
			var d common.DocumentEntities
			err := row.Scan(&d.DocumentID, &d.CreatedAt, &d.EntityIDs)
			return d, err
		})
	})
}

const getRelationshipsSQL = `
SELECT s.public_id, t.public_id, r.type
FROM relationships r
JOIN entities s ON s.id = r.source_id
JOIN entities t ON t.id = r.target_id
WHERE r.project_id = $1
ORDER BY r.id`

// GetRelationships returns the typed relationships of a project.
func (s *GraphDBStorage) GetRelationships(ctx context.Context, projectID string) ([]common.Relationship, error) {
	id, ok := parseProjectID(projectID)
	if !ok {
		return nil, nil
	}
	return query(ctx, s, "relationships", func(ctx context.Context) ([]common.Relationship, error) {
		rows, err := s.conn.Query(ctx, getRelationshipsSQL, id)
		if err != nil {
			return nil, err
		}
		return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Relationship, error) {
			var r common.Relationship
			err := row.Scan(&r.SourceID, &r.TargetID, &r.Type)
			return r, err
		})
	})
}
