package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrEntityNotFound is returned when a requested node id is not part of the graph.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrUnknownMetric is returned for unsupported centrality metrics.
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrInvalidParameter is returned for malformed bounds. No work is done.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrDependencyUnavailable wraps failures of the entity and document providers.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

func entityNotFound(id string) error {
	return fmt.Errorf("%w: %q", ErrEntityNotFound, id)
}

func invalidParameter(name string, value any) error {
	return fmt.Errorf("%w: %s=%v", ErrInvalidParameter, name, value)
}

func dependencyUnavailable(provider string, err error) error {
	return fmt.Errorf("%w: %s provider: %w", ErrDependencyUnavailable, provider, err)
}

func invalidMetric(metric string) error {
	return fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
}
