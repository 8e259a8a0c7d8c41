package store

import (
	"context"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/common"
)

// EntityQuery selects the candidate entities of a graph build. Empty slices
// mean "no restriction".
type EntityQuery struct {
	ProjectID   string
	EntityTypes []string
	DocumentIDs []string
}

// DocumentQuery selects the documents whose entity associations feed the
// co-occurrence counts of a graph build.
type DocumentQuery struct {
	ProjectID   string
	DocumentIDs []string
}

// EntitiesProvider returns the canonical entities of a project.
type EntitiesProvider interface {
	GetEntities(ctx context.Context, query EntityQuery) ([]common.Entity, error)
}

// DocumentsProvider returns entity-to-document associations of a project.
type DocumentsProvider interface {
	GetDocumentEntities(ctx context.Context, query DocumentQuery) ([]common.DocumentEntities, error)
}

// RelationshipsProvider is optionally implemented by a DocumentsProvider or
// EntitiesProvider that also knows explicitly typed relationships.
type RelationshipsProvider interface {
	GetRelationships(ctx context.Context, projectID string) ([]common.Relationship, error)
}

// GraphSource bundles all providers a graph build can use. Both the pgx and
// the sqlite stores implement it.
type GraphSource interface {
	EntitiesProvider
	DocumentsProvider
	RelationshipsProvider
}
