package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/config"
	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/queue"
	mid "github.com/OFFIS-RIT/kiwi/entitygraph/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/storage"
	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/util"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/cache"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/common"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/engine"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/store"
	pgxstore "github.com/OFFIS-RIT/kiwi/entitygraph/pkg/store/pgx"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/store/sqlite"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New creates the echo instance serving app. Without corsOrigins every
// origin is allowed.
func New(app *mid.App, gatherer prometheus.Gatherer, corsOrigins ...string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	if len(corsOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: corsOrigins}))
	} else {
		e.Use(middleware.CORS())
	}
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())

	RegisterRoutes(e, gatherer)
	return e
}

// OpenSource opens the configured graph source. The returned closer
// releases it.
func OpenSource(ctx context.Context, cfg config.Database) (store.GraphSource, io.Closer, error) {
	if cfg.SQLitePath != "" {
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("[Server] Using sqlite graph source", "path", cfg.SQLitePath)
		return s, s, nil
	}

	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	s := pgxstore.NewGraphDBStorageWithConnection(pool,
		pgxstore.WithRetries(cfg.MaxRetries, util.ExponentialBackoff(100*time.Millisecond, 2*time.Second)),
	)
	return s, closerFunc(pool.Close), nil
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

// eventHandler forwards events to the invalidator and then drops the stored
// exports of deleted projects. An export failure sends the event to the
// retry queue after the invalidation went through.
func eventHandler(exports mid.ExportStore, events chan<- common.Event) queue.HandlerFunc {
	forward := queue.ChannelHandler(events)
	return func(ctx context.Context, event common.Event) error {
		if err := forward(ctx, event); err != nil {
			return err
		}
		if event.Type == common.EventProjectDeleted && exports != nil {
			if err := exports.DeleteProjectExports(ctx, event.ProjectID); err != nil {
				logger.Warn("[Server] Failed to delete project exports", "project_id", event.ProjectID, "err", err)
				return err
			}
		}
		return nil
	}
}

// eventDialer opens a channel on the feed, declares the event queues and
// binds a consumer to them.
func eventDialer(cfg config.Events, handler queue.HandlerFunc) queue.DialFunc {
	return func(ctx context.Context) (*queue.Session, error) {
		conn, err := queue.Init(ctx, cfg.URL(), 10)
		if err != nil {
			return nil, err
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to open channel: %w", err)
		}
		if err := queue.SetupEventQueues(ch, cfg.Exchange, cfg.Queue, engine.InvalidatingEventTypes()); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to set up event queues: %w", err)
		}
		return &queue.Session{
			Consumer: queue.NewConsumer(ch, cfg.Queue, cfg.MaxRetries, handler),
			Close: func() {
				ch.Close()
				conn.Close()
			},
		}, nil
	}
}

// Init wires the service from cfg and serves until SIGINT or SIGTERM.
func Init(cfg config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, closer, err := OpenSource(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open graph source", "err", err)
	}
	defer closer.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	graphCache, err := cache.NewGraphCache("base", cache.WithRegisterer(reg), cache.WithTTL(cfg.Cache.TTL))
	if err != nil {
		logger.Fatal("Failed to create graph cache", "err", err)
	}
	eng := engine.New(graph.NewBuilder(src, src), graphCache,
		engine.WithBuildTimeout(cfg.Cache.BuildTimeout),
		engine.WithMaxConcurrentBuilds(int64(cfg.Cache.MaxConcurrentBuilds)),
	)

	app := &mid.App{
		Engine:         eng,
		MasterAPIKey:   cfg.Auth.MasterAPIKey,
		MasterUserID:   int64(cfg.Auth.MasterUserID),
		MasterUserRole: cfg.Auth.MasterUserRole,
	}

	if cfg.Auth.URL != "" {
		k, err := keyfunc.NewDefault([]string{cfg.Auth.URL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		app.Key = k.Keyfunc
	}

	if cfg.S3.Enabled() {
		client, err := storage.NewS3Client(ctx, cfg.S3)
		if err != nil {
			logger.Fatal("Failed to create s3 client", "err", err)
		}
		exports, err := storage.NewExportStore(client, cfg.S3)
		if err != nil {
			logger.Fatal("Failed to create export store", "err", err)
		}
		app.Exports = exports
	}

	if cfg.Events.Enabled {
		events := make(chan common.Event, 64)
		go func() {
			if err := eng.RunInvalidator(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("[Server] Invalidator stopped", "err", err)
			}
		}()
		// events missed while disconnected are unknown, so every session
		// starts from an empty cache
		go queue.Supervise(ctx, eventDialer(cfg.Events, eventHandler(app.Exports, events)),
			util.ExponentialBackoff(time.Second, 30*time.Second),
			eng.Cache().InvalidateAll,
		)
	}

	e := New(app, reg, cfg.CORSOrigins...)
	go func() {
		logger.Info("[Server] Starting server", "port", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
