package routes

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/engine"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error string `json:"error"`
}

func invalidParams(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request params"})
}

// graphError maps engine errors to HTTP statuses.
func graphError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, graph.ErrEntityNotFound):
		status = http.StatusNotFound
	case errors.Is(err, graph.ErrInvalidParameter), errors.Is(err, graph.ErrUnknownMetric):
		status = http.StatusBadRequest
	case errors.Is(err, graph.ErrDependencyUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// client went away
		status = 499
	}

	if status >= http.StatusInternalServerError {
		logger.Error("[Server] Graph request failed", "path", c.Path(), "project_id", c.Param("id"), "err", err)
	}
	if status == http.StatusInternalServerError {
		return c.JSON(status, errorResponse{Error: "Internal server error"})
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func appOf(c echo.Context) *middleware.App {
	return c.(*middleware.AppContext).App
}

func engineOf(c echo.Context) *engine.Engine {
	return appOf(c).Engine
}

// bindQuery binds the query string into each of dst. List values may be
// repeated or comma separated.
func bindQuery(c echo.Context, dst ...any) error {
	binder := &echo.DefaultBinder{}
	for _, d := range dst {
		if err := binder.BindQueryParams(c, d); err != nil {
			return err
		}
	}
	return nil
}

func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func normalizeFilter(f *graph.FilterOptions) {
	f.EntityTypes = splitList(f.EntityTypes)
	f.RelationshipTypes = splitList(f.RelationshipTypes)
	f.PreserveNodes = splitList(f.PreserveNodes)
}

// bindRequest binds path and query params into data and validates it.
func bindRequest(c echo.Context, data any) error {
	if err := c.Bind(data); err != nil {
		return err
	}
	return c.Validate(data)
}
