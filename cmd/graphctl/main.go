// Command graphctl runs graph operations against a graph source without the
// HTTP service, and manages the source schema and the event feed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/config"
	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/server"
	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/util"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/cache"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/engine"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger/console"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/store"

	"github.com/spf13/cobra"
)

// globalOptions are shared by all commands.
type globalOptions struct {
	sqlitePath  string
	databaseURL string
	debug       bool
	logFormat   string
}

// session is an opened graph source with an engine on top.
type session struct {
	source store.GraphSource
	engine *engine.Engine
	closer io.Closer
}

func (s *session) Close() error {
	return s.closer.Close()
}

func (o *globalOptions) database() (config.Database, error) {
	if o.sqlitePath == "" && o.databaseURL == "" {
		return config.Database{}, errors.New("no graph source: set --sqlite or --database-url")
	}
	return config.Database{
		URL:        o.databaseURL,
		SQLitePath: o.sqlitePath,
		MaxRetries: 3,
	}, nil
}

func (o *globalOptions) open(ctx context.Context) (*session, error) {
	dbCfg, err := o.database()
	if err != nil {
		return nil, err
	}
	src, closer, err := server.OpenSource(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph source: %w", err)
	}
	c, err := cache.NewGraphCache("graphctl")
	if err != nil {
		closer.Close()
		return nil, err
	}
	return &session{
		source: src,
		engine: engine.New(graph.NewBuilder(src, src), c),
		closer: closer,
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "graphctl",
		Short:         "Entity relationship graph tool",
		Long:          `graphctl builds and analyzes entity relationship graphs straight from a graph source, imports datasets and publishes change events.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
				Debug:  opts.debug,
				Format: opts.logFormat,
				Output: cmd.ErrOrStderr(),
			}))
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.sqlitePath, "sqlite", util.GetEnv("GRAPH_SQLITE_PATH"), "Path of a SQLite graph source")
	flags.StringVar(&opts.databaseURL, "database-url", util.GetEnv("DATABASE_URL"), "PostgreSQL connection URL")
	flags.BoolVar(&opts.debug, "debug", util.GetEnvBool("DEBUG", false), "Enable debug logging")
	flags.StringVar(&opts.logFormat, "log-format", console.FormatText, "Log format: text, json or logfmt")

	rootCmd.AddCommand(
		newImportCmd(opts),
		newDropCmd(opts),
		newStatsCmd(opts),
		newExportCmd(opts),
		newCentralityCmd(opts),
		newCommunitiesCmd(opts),
		newPathCmd(opts),
		newNeighborsCmd(opts),
		newMigrateCmd(opts),
		newPublishCmd(),
	)
	return rootCmd
}

func main() {
	util.LoadEnv()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
