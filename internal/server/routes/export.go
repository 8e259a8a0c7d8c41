package routes

import (
	"net/http"
	"strings"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/graph"

	"github.com/labstack/echo/v4"
)

// GetExportHandler streams the serialized graph. The fingerprint doubles
// as ETag.
func GetExportHandler(c echo.Context) error {
	type exportParams struct {
		ProjectID string `param:"id" validate:"required"`
		Format    string `query:"format"`
	}

	params := &exportParams{Format: graph.FormatJSON}
	if err := bindRequest(c, params); err != nil {
		return invalidParams(c)
	}
	var filter graph.FilterOptions
	if err := bindQuery(c, &filter); err != nil {
		return invalidParams(c)
	}
	normalizeFilter(&filter)
	format := strings.ToLower(params.Format)

	doc, fingerprint, err := engineOf(c).ExportGraph(c.Request().Context(), params.ProjectID, format, filter)
	if err != nil {
		return graphError(c, err)
	}

	etag := `"` + fingerprint + `"`
	c.Response().Header().Set("ETag", etag)
	if c.Request().Header.Get("If-None-Match") == etag {
		return c.NoContent(http.StatusNotModified)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		`attachment; filename="graph-`+params.ProjectID+`.`+graph.FormatExtension(format)+`"`)
	return c.Blob(http.StatusOK, graph.FormatContentType(format)+"; charset=utf-8", []byte(doc))
}

// PostExportHandler uploads the export to object storage and returns a
// download link.
func PostExportHandler(c echo.Context) error {
	type exportData struct {
		ProjectID string              `param:"id" validate:"required"`
		Format    string              `json:"format"`
		Filter    graph.FilterOptions `json:"filter"`
	}
	type exportResponse struct {
		Message     string `json:"message"`
		Key         string `json:"key,omitempty"`
		URL         string `json:"url,omitempty"`
		Fingerprint string `json:"fingerprint,omitempty"`
	}

	data := &exportData{Format: graph.FormatJSON}
	if err := bindRequest(c, data); err != nil {
		return c.JSON(http.StatusBadRequest, exportResponse{Message: "Invalid request params"})
	}

	exports := appOf(c).Exports
	if exports == nil {
		return c.JSON(http.StatusServiceUnavailable, exportResponse{Message: "Export storage is not configured"})
	}

	ctx := c.Request().Context()
	format := strings.ToLower(data.Format)
	doc, fingerprint, err := engineOf(c).ExportGraph(ctx, data.ProjectID, format, data.Filter)
	if err != nil {
		return graphError(c, err)
	}

	key, err := exports.PutExport(ctx, data.ProjectID, fingerprint, format, doc)
	if err != nil {
		return graphError(c, err)
	}
	link, err := exports.GenerateDownloadLink(ctx, key)
	if err != nil {
		return graphError(c, err)
	}

	return c.JSON(http.StatusCreated, exportResponse{
		Message:     "Export created",
		Key:         key,
		URL:         link,
		Fingerprint: fingerprint,
	})
}
