package main

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/config"
	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/db"
	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/server"
	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/util"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{}))
		logger.Fatal("Invalid configuration", "err", err)
	}

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  cfg.Debug,
		Format: cfg.LogFormat,
	})
	logger.Init(consoleLogger)

	if cfg.Database.SQLitePath == "" && util.GetEnvBool("GRAPH_AUTO_MIGRATE", false) {
		// postgres may still be starting
		err := util.RetryErrWithContext(context.Background(), 5, util.ExponentialBackoff(time.Second, 10*time.Second), func(context.Context) error {
			return db.Migrate(cfg.Database.URL)
		})
		if err != nil {
			logger.Fatal("Failed to migrate database", "err", err)
		}
	}

	server.Init(cfg)
}
