package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/common"
)

// Dataset is the source data of one project in the shape the providers
// return it. It is the unit of bulk imports.
type Dataset struct {
	ProjectName   string                    `json:"project_name,omitempty"`
	Entities      []common.Entity           `json:"entities"`
	Documents     []common.DocumentEntities `json:"documents"`
	Relationships []common.Relationship     `json:"relationships,omitempty"`
}

// Importer writes a dataset into a store. Existing records with the same
// ids are replaced, nothing is deleted.
type Importer interface {
	Import(ctx context.Context, projectID string, ds Dataset) error
}

// ReadDataset decodes a JSON dataset and rejects records without ids.
func ReadDataset(r io.Reader) (Dataset, error) {
	var ds Dataset
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ds); err != nil {
		return Dataset{}, fmt.Errorf("failed to decode dataset: %w", err)
	}
	for i, e := range ds.Entities {
		if e.ID == "" {
			return Dataset{}, fmt.Errorf("entity %d has no id", i)
		}
	}
	for i, d := range ds.Documents {
		if d.DocumentID == "" {
			return Dataset{}, fmt.Errorf("document %d has no id", i)
		}
	}
	for i, r := range ds.Relationships {
		if r.SourceID == "" || r.TargetID == "" {
			return Dataset{}, fmt.Errorf("relationship %d has no endpoints", i)
		}
	}
	return ds, nil
}
