package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dgtm-project/dgtm/internal/manager"
	"github.com/dgtm-project/dgtm/pkg/export"
	"github.com/dgtm-project/dgtm/pkg/semgraph"
	"github.com/dgtm-project/dgtm/pkg/semgraph/container"
	"github.com/dgtm-project/dgtm/pkg/semgraph/dict"
	"github.com/dgtm-project/dgtm/pkg/semgraph/graph"
	"github.com/dgtm-project/dgtm/pkg/semgraph/pipeline"
	"github.com/dgtm-project/dgtm/pkg/semgraph/rules"
	"github.com/dgtm-project/dgtm/pkg/semgraph/staging"
	"github.com/dgtm-project/dgtm/pkg/semgraph/validate"
	"github.com/dgtm-project/dgtm/pkg/server"
)

func main() {
	_ = godotenv.Load()
	setupLogging()

	cfg := semgraph.ConfigFromEnv()

	root := &cobra.Command{
		Use:           "dgtm",
		Short:         "Semantic graph store: validate, build, and query compressed knowledge graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		statusCmd(cfg),
		ingestCmd(cfg),
		validateCmd(cfg),
		buildCmd(cfg),
		lookupCmd(cfg),
		exportCmd(cfg),
		serveCmd(cfg),
	)

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(semgraph.ExitCode(err))
	}
}

func setupLogging() {
	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("DGTM_LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func statusCmd(cfg *semgraph.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Run the environment sanity check and report pipeline state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := semgraph.LoadSchema(cfg.SchemaPath); err != nil {
				return err
			}
			if _, err := rules.Load(cfg.RulesPath); err != nil {
				return err
			}
			store, err := staging.Open(staging.Config{Dir: cfg.StagingDir})
			if err != nil {
				return err
			}
			defer store.Close()

			counts, err := store.CountByStage()
			if err != nil {
				return err
			}
			fmt.Printf("data dir:   %s\n", cfg.DataDir)
			fmt.Printf("schema:     %s (ok)\n", cfg.SchemaPath)
			fmt.Printf("rules:      %s (ok)\n", cfg.RulesPath)
			for _, stage := range []staging.ProcessStatus{
				staging.StageEnriched, staging.StageValidated, staging.StageNeedsReview,
			} {
				fmt.Printf("%-13s %d\n", string(stage)+":", counts[stage])
			}
			if info, err := os.Stat(cfg.BlobPath); err == nil {
				fmt.Printf("graph blob:  %s (%d bytes)\n", cfg.BlobPath, info.Size())
			} else {
				fmt.Printf("graph blob:  not built yet\n")
			}
			return nil
		},
	}
}

func ingestCmd(cfg *semgraph.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Load enriched node records from the input file into staging",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := staging.Open(staging.Config{Dir: cfg.StagingDir, SyncWrites: true})
			if err != nil {
				return err
			}
			defer store.Close()

			stage := &pipeline.IngestStage{Cfg: cfg, Store: store}
			return pipeline.NewRunner(stage).Run(context.Background())
		},
	}
}

func validateCmd(cfg *semgraph.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate staged nodes against the schema and coherence rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := semgraph.LoadSchema(cfg.SchemaPath)
			if err != nil {
				return err
			}
			coherence, err := rules.Load(cfg.RulesPath)
			if err != nil {
				return err
			}
			store, err := staging.Open(staging.Config{Dir: cfg.StagingDir, SyncWrites: true})
			if err != nil {
				return err
			}
			defer store.Close()

			trace, auditFile, err := rules.OpenTrace("", cfg.AuditPath)
			if err != nil {
				return err
			}
			defer auditFile.Close()

			stage := &pipeline.ValidateStage{
				Cfg:       cfg,
				Store:     store,
				Validator: validate.New(schema, coherence),
				Trace:     trace,
			}
			return pipeline.NewRunner(stage).Run(context.Background())
		},
	}
}

func buildCmd(cfg *semgraph.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the relation graph and commit the compressed blob and index",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := staging.Open(staging.Config{Dir: cfg.StagingDir, SyncWrites: true})
			if err != nil {
				return err
			}
			defer store.Close()

			dictDB, err := dict.OpenDB(cfg.DictDir, false, false)
			if err != nil {
				return err
			}
			defer dictDB.Close()

			d, err := dict.Open(dictDB, cfg.SymbolCapacity, cfg.CacheSize)
			if err != nil {
				return err
			}

			stage := &pipeline.BuildStage{
				Cfg:     cfg,
				Store:   store,
				Builder: graph.NewBuilder(d),
			}
			return pipeline.NewRunner(stage).Run(context.Background())
		},
	}
}

func lookupCmd(cfg *semgraph.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <term or #symbol>",
		Short: "Retrieve one node and its relations from the committed graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := manager.New()
			defer mgr.CloseAll()

			h, err := mgr.Open(cfg)
			if err != nil {
				return err
			}

			var (
				node *semgraph.EntityNode
				rels []semgraph.Relation
			)
			if strings.HasPrefix(args[0], "#") {
				sym, perr := semgraph.ParseSymbol(args[0])
				if perr != nil {
					return perr
				}
				node, rels, err = h.LookupSymbol(sym)
			} else {
				node, rels, err = h.Lookup(pipeline.NormalizeTerm(args[0]))
			}
			if err != nil {
				return err
			}

			fmt.Printf("%s  %s  [%s/%s]  intensity=%d plausibility=%d status=%s\n",
				node.Symbol, node.Term, node.Category, node.Class,
				node.Intensity, node.Plausibility, node.Status)
			for _, rel := range rels {
				target, terr := h.Term(rel.Target)
				if terr != nil {
					target = rel.Target.String()
				}
				fmt.Printf("  -[%s]-> %s (%s)\n", rel.Type, target, rel.Target)
			}
			return nil
		},
	}
}

func exportCmd(cfg *semgraph.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "export <output.json>",
		Short: "Export the committed graph as D3 visualization JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := container.Open(cfg.BlobPath, cfg.IndexPath, container.DefaultChunkCache)
			if err != nil {
				return err
			}
			defer r.Close()

			g, err := export.FromReader(r)
			if err != nil {
				return err
			}
			if err := export.WriteFile(g, args[0]); err != nil {
				return err
			}
			slog.Info("graph exported", "path", args[0], "nodes", len(g.Nodes), "links", len(g.Links))
			return nil
		},
	}
}

func serveCmd(cfg *semgraph.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve read-only lookups over HTTP for downstream consumers",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := manager.New()
			defer mgr.CloseAll()

			port := os.Getenv("PORT")
			if port == "" {
				port = "8080"
			}
			srv := server.New(cfg, mgr)
			slog.Info("lookup server starting", "addr", ":"+port, "data_dir", cfg.DataDir)
			return srv.Run(":" + port)
		},
	}
}
