package common

import "time"

// Entity is a canonical entity record as delivered by the entity store.
// Optional fields that are not known are left at their zero value; the
// graph builder fills them with defaults.
//
// An entity belongs to exactly one project and may be referenced by many
// documents of that project.
type Entity struct {
	ID            string         `json:"id"`
	Label         string         `json:"label,omitempty"`
	Type          string         `json:"entity_type,omitempty"`
	DocumentCount int            `json:"document_count,omitempty"`
	Properties    map[string]any `json:"properties,omitempty"`
}

// DocumentEntities lists the entities mentioned in one document. It is the
// raw signal for co-occurrence: every pair of entities in the same document
// co-occurs once.
type DocumentEntities struct {
	DocumentID string    `json:"document_id"`
	EntityIDs  []string  `json:"entity_ids"`
	CreatedAt  time.Time `json:"created_at"`
}

// Relationship is an explicitly typed link between two entities, e.g. one
// produced by relation extraction. Relationships only label edges, they
// never create edges on their own.
type Relationship struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Type     string `json:"type"`
}

// Event types delivered on the domain event feed.
const (
	EventEntityCreated   = "entity.created"
	EventEntityDeleted   = "entity.deleted"
	EventEntitiesMerged  = "entities.merged"
	EventDocumentCreated = "document.created"
	EventDocumentDeleted = "document.deleted"
	EventProjectDeleted  = "project.deleted"
)

// Event is a domain notification about a change in the source data of a
// project. The graph service only uses it to drop cached graphs.
type Event struct {
	Type        string    `json:"type"`
	ProjectID   string    `json:"project_id"`
	EntityIDs   []string  `json:"entity_ids,omitempty"`
	DocumentIDs []string  `json:"document_ids,omitempty"`
	OccurredAt  time.Time `json:"occurred_at,omitzero"`
}
