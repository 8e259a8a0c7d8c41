package pgx

import (
	"context"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/common"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const getEntitiesSQL = `
SELECT e.public_id, e.name, e.type, e.properties, COUNT(DISTINCT m.file_id)::int AS document_count
FROM entities e
LEFT JOIN entity_mentions m ON m.entity_id = e.id
WHERE e.project_id = $1
  AND (cardinality($2::text[]) = 0 OR e.type = ANY($2::text[]))
  AND (cardinality($3::text[]) = 0 OR EXISTS (
      SELECT 1
      FROM entity_mentions dm
      JOIN project_files f ON f.id = dm.file_id
      WHERE dm.entity_id = e.id AND f.public_id = ANY($3::text[])
  ))
GROUP BY e.id
ORDER BY e.public_id`

// GetEntities returns the entities of a project with the number of
// documents mentioning each of them.
func (s *GraphDBStorage) GetEntities(ctx context.Context, q store.EntityQuery) ([]common.Entity, error) {
	projectID, ok := parseProjectID(q.ProjectID)
	if !ok {
		return nil, nil
	}
	return query(ctx, s, "entities", func(ctx context.Context) ([]common.Entity, error) {
		rows, err := s.conn.Query(ctx, getEntitiesSQL, projectID, nonNil(q.EntityTypes), nonNil(q.DocumentIDs))
		if err != nil {
			return nil, err
		}
		return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Entity, error) {
			var e common.Entity
			var props map[string]any
			if err := row.Scan(&e.ID, &e.Label, &e.Type, &props, &e.DocumentCount); err != nil {
				return common.Entity{}, err
			}
			if len(props) > 0 {
				e.Properties = props
			}
			return e, nil
		})
	})
}
