package engine

import (
	"context"
	"slices"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/common"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger"
)

// invalidatingEvents are the event types that change the source data of a
// project graph.
var invalidatingEvents = map[string]struct{}{
	common.EventEntityCreated:   {},
	common.EventEntityDeleted:   {},
	common.EventEntitiesMerged:  {},
	common.EventDocumentCreated: {},
	common.EventDocumentDeleted: {},
	common.EventProjectDeleted:  {},
}

// IsInvalidating reports whether events of type eventType drop cached graphs.
func IsInvalidating(eventType string) bool {
	_, ok := invalidatingEvents[eventType]
	return ok
}

// HandleEvent drops the cached graph of the project an event refers to.
// It reports whether the cache was invalidated. Unknown event types and
// events without a project are ignored.
func (e *Engine) HandleEvent(event common.Event) bool {
	if !IsInvalidating(event.Type) {
		logger.Debug("[Graph] Ignoring event", "type", event.Type, "project_id", event.ProjectID)
		return false
	}
	if event.ProjectID == "" {
		logger.Warn("[Graph] Event without project", "type", event.Type)
		return false
	}
	e.cache.Invalidate(event.ProjectID)
	logger.Info("[Graph] Invalidated project graph",
		"type", event.Type,
		"project_id", event.ProjectID,
		"entities", len(event.EntityIDs),
		"documents", len(event.DocumentIDs),
	)
	return true
}

// Invalidate drops the cached graph of projectID.
func (e *Engine) Invalidate(projectID string) {
	e.cache.Invalidate(projectID)
}

// RunInvalidator handles events from ch until ch is closed or ctx ends.
func (e *Engine) RunInvalidator(ctx context.Context, ch <-chan common.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			e.HandleEvent(event)
		}
	}
}

// InvalidatingEventTypes returns the event types that drop cached graphs,
// sorted. They are the routing keys the event consumer binds.
func InvalidatingEventTypes() []string {
	types := make([]string, 0, len(invalidatingEvents))
	for t := range invalidatingEvents {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
