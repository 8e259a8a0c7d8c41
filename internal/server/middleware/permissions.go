package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

// Permissions guarding the graph routes, read from the "permissions" claim.
const (
	PermissionGraphView       = "graph.view"
	PermissionGraphExport     = "graph.export"
	PermissionGraphInvalidate = "graph.invalidate"
	PermissionCacheView       = "cache.view"
)

const roleAdmin = "admin"

var allPermissions = []string{
	PermissionGraphView,
	PermissionGraphExport,
	PermissionGraphInvalidate,
	PermissionCacheView,
}

// Can reports whether user holds permission. Admins hold all of them.
func Can(user *AppUser, permission string) bool {
	if user == nil {
		return false
	}
	return user.Role == roleAdmin || slices.Contains(user.Permissions, permission)
}

// RequirePermission answers 401 without an authenticated user and 403 when
// the user cannot act on graphs with permission.
func RequirePermission(permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := c.(*AppContext).User
			if user == nil {
				return unauthorized(c, "Unauthorized")
			}
			if !Can(user, permission) {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "Forbidden: missing permission " + permission})
			}
			return next(c)
		}
	}
}
