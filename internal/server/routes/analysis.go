package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/graph"

	"github.com/labstack/echo/v4"
)

func GetCentralityHandler(c echo.Context) error {
	type centralityParams struct {
		ProjectID string `param:"id" validate:"required"`
		Metric    string `query:"metric"`
	}
	type centralityResponse struct {
		Metric string                  `json:"metric"`
		Scores []graph.CentralityScore `json:"scores"`
	}

	params := &centralityParams{Metric: graph.MetricDegree}
	if err := bindRequest(c, params); err != nil {
		return invalidParams(c)
	}
	var opts graph.CentralityOptions
	var filter graph.FilterOptions
	if err := bindQuery(c, &opts, &filter); err != nil {
		return invalidParams(c)
	}
	normalizeFilter(&filter)

	scores, err := engineOf(c).CalculateCentrality(c.Request().Context(), params.ProjectID, params.Metric, opts, filter)
	if err != nil {
		return graphError(c, err)
	}
	return c.JSON(http.StatusOK, centralityResponse{Metric: params.Metric, Scores: scores})
}

func GetCommunitiesHandler(c echo.Context) error {
	params := new(projectParams)
	if err := bindRequest(c, params); err != nil {
		return invalidParams(c)
	}
	var opts graph.CommunityOptions
	var filter graph.FilterOptions
	if err := bindQuery(c, &opts, &filter); err != nil {
		return invalidParams(c)
	}
	normalizeFilter(&filter)

	res, err := engineOf(c).DetectCommunities(c.Request().Context(), params.ProjectID, opts, filter)
	if err != nil {
		return graphError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
