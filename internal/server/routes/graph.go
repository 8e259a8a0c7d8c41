package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/graph"

	"github.com/labstack/echo/v4"
)

type projectParams struct {
	ProjectID string `param:"id" validate:"required"`
}

// GetGraphHandler builds the graph of a project. Build options select the
// entities and documents, filter options prune the result.
func GetGraphHandler(c echo.Context) error {
	params := new(projectParams)
	if err := bindRequest(c, params); err != nil {
		return invalidParams(c)
	}
	var build graph.BuildOptions
	var filter graph.FilterOptions
	if err := bindQuery(c, &build, &filter); err != nil {
		return invalidParams(c)
	}
	build.EntityTypes = splitList(build.EntityTypes)
	build.DocumentIDs = splitList(build.DocumentIDs)
	normalizeFilter(&filter)
	// entity types are applied while building
	filter.EntityTypes = nil

	if err := filter.Validate(); err != nil {
		return graphError(c, err)
	}

	ctx := c.Request().Context()
	g, err := engineOf(c).BuildGraph(ctx, params.ProjectID, build)
	if err != nil {
		return graphError(c, err)
	}
	if !filter.IsZero() {
		g, err = graph.FilterGraph(g, filter)
		if err != nil {
			return graphError(c, err)
		}
	}
	return c.JSON(http.StatusOK, g)
}

func GetStatisticsHandler(c echo.Context) error {
	params := new(projectParams)
	if err := bindRequest(c, params); err != nil {
		return invalidParams(c)
	}
	var filter graph.FilterOptions
	if err := bindQuery(c, &filter); err != nil {
		return invalidParams(c)
	}
	normalizeFilter(&filter)

	stats, err := engineOf(c).CalculateStatistics(c.Request().Context(), params.ProjectID, filter)
	if err != nil {
		return graphError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func GetSubgraphHandler(c echo.Context) error {
	type subgraphParams struct {
		ProjectID string `param:"id" validate:"required"`
		EntityID  string `query:"entity_id" validate:"required"`
	}

	params := new(subgraphParams)
	if err := bindRequest(c, params); err != nil {
		return invalidParams(c)
	}
	opts := graph.SubgraphOptions{Depth: 1}
	if err := bindQuery(c, &opts); err != nil {
		return invalidParams(c)
	}

	g, err := engineOf(c).ExtractSubgraph(c.Request().Context(), params.ProjectID, params.EntityID, opts)
	if err != nil {
		return graphError(c, err)
	}
	return c.JSON(http.StatusOK, g)
}
