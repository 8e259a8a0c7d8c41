package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/config"
	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/db"
	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/queue"
	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/util"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/common"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/store"

	"github.com/spf13/cobra"
)

// withSession opens the graph source for the duration of fn.
func withSession(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <project-id> <dataset.json>",
		Short: "Import entities, documents and relationships into a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			ds, err := store.ReadDataset(f)
			if err != nil {
				return err
			}

			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				importer, ok := s.source.(store.Importer)
				if !ok {
					return errors.New("graph source does not support imports")
				}
				start := time.Now()
				if err := importer.Import(ctx, args[0], ds); err != nil {
					return err
				}
				logger.Info("Imported dataset",
					"project_id", args[0],
					"entities", len(ds.Entities),
					"documents", len(ds.Documents),
					"relationships", len(ds.Relationships),
					"duration", time.Since(start),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d entities, %d documents, %d relationships\n",
					len(ds.Entities), len(ds.Documents), len(ds.Relationships))
				return nil
			})
		},
	}
}

// projectDeleter is implemented by sources that own their data, like the
// SQLite store.
type projectDeleter interface {
	DeleteProject(ctx context.Context, projectID string) error
}

func newDropCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <project-id>",
		Short: "Delete every record of a project from a local graph source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				deleter, ok := s.source.(projectDeleter)
				if !ok {
					return errors.New("graph source does not support deleting projects")
				}
				if err := deleter.DeleteProject(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "dropped project %s\n", args[0])
				return nil
			})
		},
	}
}

// addFilterFlags registers the filter options shared by the analysis commands.
func addFilterFlags(cmd *cobra.Command, f *graph.FilterOptions) {
	cmd.Flags().StringSliceVar(&f.EntityTypes, "entity-types", nil, "Keep only nodes of these types")
	cmd.Flags().StringSliceVar(&f.RelationshipTypes, "relationship-types", nil, "Keep only edges of these types")
	cmd.Flags().IntVar(&f.MinDegree, "min-degree", 0, "Drop nodes with a lower degree")
	cmd.Flags().Float64Var(&f.MinEdgeWeight, "min-edge-weight", 0, "Drop edges with a lower weight")
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	var filter graph.FilterOptions
	cmd := &cobra.Command{
		Use:   "stats <project-id>",
		Short: "Print graph statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				stats, err := s.engine.CalculateStatistics(ctx, args[0], filter)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
	addFilterFlags(cmd, &filter)
	return cmd
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var (
		filter graph.FilterOptions
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export <project-id>",
		Short: "Serialize the graph as JSON, GraphML or GEXF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				doc, fingerprint, err := s.engine.ExportGraph(ctx, args[0], strings.ToLower(format), filter)
				if err != nil {
					return err
				}
				logger.Debug("Exported graph", "project_id", args[0], "format", format, "fingerprint", fingerprint)
				if out == "" || out == "-" {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), doc)
					return err
				}
				return os.WriteFile(out, []byte(doc), 0o644)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", graph.FormatJSON, "Export format: json, graphml or gexf")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file, stdout if empty")
	addFilterFlags(cmd, &filter)
	return cmd
}

func newCentralityCmd(opts *globalOptions) *cobra.Command {
	var (
		filter  graph.FilterOptions
		metric  string
		options graph.CentralityOptions
	)
	cmd := &cobra.Command{
		Use:   "centrality <project-id>",
		Short: "Rank entities by a centrality metric",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				scores, err := s.engine.CalculateCentrality(ctx, args[0], metric, options, filter)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), scores)
			})
		},
	}
	cmd.Flags().StringVar(&metric, "metric", graph.MetricDegree, "Metric: degree, pagerank, betweenness, closeness or eigenvector")
	cmd.Flags().IntVar(&options.Limit, "limit", 10, "Number of entities to print, 0 for all")
	cmd.Flags().BoolVar(&options.Normalized, "normalized", false, "Normalize degree scores")
	addFilterFlags(cmd, &filter)
	return cmd
}

func newCommunitiesCmd(opts *globalOptions) *cobra.Command {
	var (
		filter  graph.FilterOptions
		options graph.CommunityOptions
	)
	cmd := &cobra.Command{
		Use:   "communities <project-id>",
		Short: "Detect communities with Louvain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				res, err := s.engine.DetectCommunities(ctx, args[0], options, filter)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().IntVar(&options.MinSize, "min-size", 0, "Drop smaller communities from the output")
	cmd.Flags().Float64Var(&options.Resolution, "resolution", 0, "Modularity resolution, 1 if unset")
	addFilterFlags(cmd, &filter)
	return cmd
}

func newPathCmd(opts *globalOptions) *cobra.Command {
	var (
		all       bool
		maxLength int
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "path <project-id> <source> <target>",
		Short: "Find the shortest path, or all simple paths, between two entities",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				if all {
					paths, err := s.engine.FindAllPaths(ctx, args[0], args[1], args[2], maxLength, limit)
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), paths)
				}
				res, err := s.engine.FindShortestPath(ctx, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Enumerate all simple paths")
	cmd.Flags().IntVar(&maxLength, "max-length", 4, "Maximum hops per path with --all")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of paths with --all")
	return cmd
}

func newNeighborsCmd(opts *globalOptions) *cobra.Command {
	var degree int
	cmd := &cobra.Command{
		Use:   "neighbors <project-id> <entity-id>",
		Short: "List the entities within a number of hops",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				res, err := s.engine.GetNeighbors(ctx, args[0], args[1], degree)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().IntVar(&degree, "degree", 1, "Number of hops")
	return cmd
}

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.databaseURL == "" {
				return errors.New("migrate needs --database-url")
			}
			return db.Migrate(opts.databaseURL)
		},
	}

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.databaseURL == "" {
				return errors.New("migrate needs --database-url")
			}
			return db.Rollback(opts.databaseURL, steps)
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	migrateCmd.AddCommand(upCmd, downCmd)
	return migrateCmd
}

func newPublishCmd() *cobra.Command {
	var (
		exchange    string
		entityIDs   []string
		documentIDs []string
	)
	cmd := &cobra.Command{
		Use:   "publish <event-type> <project-id>",
		Short: "Publish a domain event to the event exchange",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			event := common.Event{
				Type:        args[0],
				ProjectID:   args[1],
				EntityIDs:   entityIDs,
				DocumentIDs: documentIDs,
			}
			if event.Type == "" || event.ProjectID == "" {
				return errors.New("event type and project id must not be empty")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg := config.FromEnv().Events
			conn, err := queue.Init(ctx, cfg.URL(), 3)
			if err != nil {
				return err
			}
			defer conn.Close()
			ch, err := conn.Channel()
			if err != nil {
				return fmt.Errorf("failed to open channel: %w", err)
			}
			defer ch.Close()

			if err := queue.PublishEvent(ctx, ch, exchange, event); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s for project %s\n", event.Type, event.ProjectID)
			return nil
		},
	}
	cmd.Flags().StringVar(&exchange, "exchange", util.GetEnvString("GRAPH_EVENTS_EXCHANGE", "graph_events"), "Topic exchange to publish to")
	cmd.Flags().StringSliceVar(&entityIDs, "entities", nil, "Affected entity ids")
	cmd.Flags().StringSliceVar(&documentIDs, "documents", nil, "Affected document ids")
	return cmd
}
