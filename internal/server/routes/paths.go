package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/graph"

	"github.com/labstack/echo/v4"
)

const (
	defaultMaxPathLength = 4
	defaultPathLimit     = 100
)

type pathParams struct {
	ProjectID string `param:"id" validate:"required"`
	Source    string `query:"source" validate:"required"`
	Target    string `query:"target" validate:"required"`
}

func GetShortestPathHandler(c echo.Context) error {
	params := new(pathParams)
	if err := bindRequest(c, params); err != nil {
		return invalidParams(c)
	}

	res, err := engineOf(c).FindShortestPath(c.Request().Context(), params.ProjectID, params.Source, params.Target)
	if err != nil {
		return graphError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func GetAllPathsHandler(c echo.Context) error {
	type allPathsParams struct {
		pathParams
		MaxLength int `query:"max_length"`
		Limit     int `query:"limit"`
	}
	type allPathsResponse struct {
		Paths []graph.Path `json:"paths"`
	}

	params := &allPathsParams{MaxLength: defaultMaxPathLength, Limit: defaultPathLimit}
	if err := bindRequest(c, params); err != nil {
		return invalidParams(c)
	}

	paths, err := engineOf(c).FindAllPaths(c.Request().Context(), params.ProjectID, params.Source, params.Target, params.MaxLength, params.Limit)
	if err != nil {
		return graphError(c, err)
	}
	if paths == nil {
		paths = []graph.Path{}
	}
	return c.JSON(http.StatusOK, allPathsResponse{Paths: paths})
}

func GetNeighborsHandler(c echo.Context) error {
	type neighborsParams struct {
		ProjectID string `param:"id" validate:"required"`
		EntityID  string `query:"entity_id" validate:"required"`
		Degree    int    `query:"degree"`
	}
	type neighborsResponse struct {
		Neighbors []graph.NeighborResult `json:"neighbors"`
	}

	params := &neighborsParams{Degree: 1}
	if err := bindRequest(c, params); err != nil {
		return invalidParams(c)
	}

	neighbors, err := engineOf(c).GetNeighbors(c.Request().Context(), params.ProjectID, params.EntityID, params.Degree)
	if err != nil {
		return graphError(c, err)
	}
	if neighbors == nil {
		neighbors = []graph.NeighborResult{}
	}
	return c.JSON(http.StatusOK, neighborsResponse{Neighbors: neighbors})
}
