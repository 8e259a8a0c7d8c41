package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func PostInvalidateHandler(c echo.Context) error {
	params := new(projectParams)
	if err := bindRequest(c, params); err != nil {
		return invalidParams(c)
	}
	engineOf(c).Invalidate(params.ProjectID)
	return c.JSON(http.StatusAccepted, map[string]string{"message": "Graph invalidated"})
}

func GetCacheStatsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, engineOf(c).Cache().Stats())
}
