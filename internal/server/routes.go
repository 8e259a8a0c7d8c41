package server

import (
	"net/http"

	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/server/routes"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(e *echo.Echo, gatherer prometheus.Gatherer) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	apiRoutes.GET("/cache", routes.GetCacheStatsHandler, middleware.RequirePermission(middleware.PermissionCacheView))

	graphRoutes := apiRoutes.Group("/projects/:id/graph")
	view := middleware.RequirePermission(middleware.PermissionGraphView)

	graphRoutes.GET("", routes.GetGraphHandler, view)
	graphRoutes.GET("/stats", routes.GetStatisticsHandler, view)
	graphRoutes.GET("/subgraph", routes.GetSubgraphHandler, view)
	graphRoutes.GET("/centrality", routes.GetCentralityHandler, view)
	graphRoutes.GET("/communities", routes.GetCommunitiesHandler, view)
	graphRoutes.GET("/path", routes.GetShortestPathHandler, view)
	graphRoutes.GET("/paths", routes.GetAllPathsHandler, view)
	graphRoutes.GET("/neighbors", routes.GetNeighborsHandler, view)

	// Export routes
	graphRoutes.GET("/export", routes.GetExportHandler, middleware.RequirePermission(middleware.PermissionGraphExport))
	graphRoutes.POST("/export", routes.PostExportHandler, middleware.RequirePermission(middleware.PermissionGraphExport))

	graphRoutes.POST("/invalidate", routes.PostInvalidateHandler, middleware.RequirePermission(middleware.PermissionGraphInvalidate))
}
