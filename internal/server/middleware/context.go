package middleware

import (
	"context"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/engine"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID      int64
	Role        string
	Permissions []string
}

// ExportStore uploads exports and signs download links. Implemented by
// *storage.ExportStore.
type ExportStore interface {
	PutExport(ctx context.Context, projectID, fingerprint, format, doc string) (string, error)
	GenerateDownloadLink(ctx context.Context, key string) (string, error)
	DeleteProjectExports(ctx context.Context, projectID string) error
}

type App struct {
	Engine *engine.Engine
	// Exports is nil when no bucket is configured.
	Exports        ExportStore
	Key            jwt.Keyfunc
	MasterAPIKey   string
	MasterUserID   int64
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
