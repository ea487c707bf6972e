package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querypatrol/pkg/analysis"
	"github.com/ekaya-inc/querypatrol/pkg/collector"
	"github.com/ekaya-inc/querypatrol/pkg/config"
	"github.com/ekaya-inc/querypatrol/pkg/logging"
	"github.com/ekaya-inc/querypatrol/pkg/mcp"
	"github.com/ekaya-inc/querypatrol/pkg/models"
	"github.com/ekaya-inc/querypatrol/pkg/relations"
	relmssql "github.com/ekaya-inc/querypatrol/pkg/relations/mssql"
	relpostgres "github.com/ekaya-inc/querypatrol/pkg/relations/postgres"
	"github.com/ekaya-inc/querypatrol/pkg/report"
	"github.com/ekaya-inc/querypatrol/pkg/suggest"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	configPath string

	analyzeLog        string
	analyzeRelations  string
	analyzeFormat     string
	burstThreshold    int
	offsetThreshold   int
	disabledDetectors []string

	introspectDialect string
	introspectDSN     string
	introspectOut     string

	serveTransport string
)

var rootCmd = &cobra.Command{
	Use:   "querypatrol",
	Short: "Pattern analysis for development-time SQL query logs",
	Long: `querypatrol reads the SQL statements an application executed, groups
them into patterns, and reports access problems a single statement
cannot show: repetition bursts (N+1 loops), joins whose rows are
discarded, LIMIT applied after row-multiplying joins, unbounded scans,
and deep OFFSET pagination.

Query logs are JSON Lines files as written by the collector package.
Relation facts (primary keys, association cardinalities) sharpen the
join detectors; supply them as YAML or introspect them from a live
database.`,
	SilenceUsage: true,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a query log and report findings",
	RunE:  runAnalyze,
}

var introspectCmd = &cobra.Command{
	Use:   "introspect",
	Short: "Discover relation facts from a live database",
	RunE:  runIntrospect,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis engine over the Model Context Protocol",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the querypatrol version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the config file")

	analyzeCmd.Flags().StringVarP(&analyzeLog, "log", "l", "", "Path to the JSONL query log (required)")
	analyzeCmd.Flags().StringVarP(&analyzeRelations, "relations", "r", "", "Path to a relation facts YAML file")
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "console", "Report format (console, json)")
	analyzeCmd.Flags().IntVar(&burstThreshold, "burst-threshold", 0, "Override the repetition burst threshold")
	analyzeCmd.Flags().IntVar(&offsetThreshold, "deep-offset-threshold", 0, "Override the deep pagination offset threshold")
	analyzeCmd.Flags().StringSliceVar(&disabledDetectors, "disable", nil, "Finding kinds whose detectors are skipped")
	analyzeCmd.MarkFlagRequired("log")

	introspectCmd.Flags().StringVar(&introspectDialect, "dialect", "", "Database dialect (postgres, mssql); defaults to the configured one")
	introspectCmd.Flags().StringVar(&introspectDSN, "dsn", "", "Connection string; defaults to the configured connection")
	introspectCmd.Flags().StringVarP(&introspectOut, "out", "o", "", "Write facts YAML to this file instead of stdout")

	serveCmd.Flags().StringVarP(&serveTransport, "transport", "t", "", "Transport (stdio, http); defaults to the configured one")

	rootCmd.AddCommand(analyzeCmd, introspectCmd, serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger every subcommand shares.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFrom(configPath, Version)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return nil, nil, err
	}

	return cfg, logger, nil
}

func engineConfig(cfg *config.Config) analysis.EngineConfig {
	return analysis.EngineConfig{
		Detectors: analysis.DetectorConfig{
			BurstThreshold:      cfg.Analysis.BurstThreshold,
			DeepOffsetThreshold: cfg.Analysis.DeepOffsetThreshold,
			LargeResultRows:     cfg.Analysis.LargeResultRows,
		},
		MaxConcurrent: cfg.Analysis.MaxConcurrentDetectors,
		Disabled:      cfg.Analysis.DisabledDetectors,
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if burstThreshold > 0 {
		cfg.Analysis.BurstThreshold = burstThreshold
	}
	if offsetThreshold > 0 {
		cfg.Analysis.DeepOffsetThreshold = offsetThreshold
	}
	if len(disabledDetectors) > 0 {
		cfg.Analysis.DisabledDetectors = disabledDetectors
	}

	records, err := collector.ReadLogFile(analyzeLog)
	if err != nil {
		return err
	}
	logger.Debug("query log loaded",
		zap.String("path", analyzeLog),
		zap.Int("records", len(records)))

	facts, err := loadFacts(cfg, logger)
	if err != nil {
		return err
	}

	engine := analysis.NewEngine(engineConfig(cfg), suggest.NewCatalog(), logger)
	findings, err := engine.Run(cmd.Context(), records, facts)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	var rpt report.Reporter
	switch analyzeFormat {
	case "json":
		rpt = report.NewJSONReporter(os.Stdout)
	case "console":
		rpt = report.NewConsoleReporter(os.Stdout)
	default:
		return fmt.Errorf("unknown format %q (expected console or json)", analyzeFormat)
	}
	if err := rpt.Report(findings); err != nil {
		return err
	}

	critical := 0
	for _, f := range findings {
		if f.Severity == models.SeverityCritical {
			critical++
		}
	}
	if critical > 0 {
		logger.Sync()
		os.Exit(1)
	}
	return nil
}

// loadFacts resolves relation facts for an analysis run: the --relations
// flag wins, then the configured facts file. Without either the
// detectors fall back to their heuristics.
func loadFacts(cfg *config.Config, logger *zap.Logger) (*relations.Facts, error) {
	path := analyzeRelations
	if path == "" {
		path = cfg.Relations.FactsFile
	}
	if path == "" {
		return nil, nil
	}

	facts, err := relations.LoadFile(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("relation facts loaded",
		zap.String("path", path),
		zap.Int("tables", facts.TableCount()),
		zap.Int("associations", facts.AssociationCount()))
	return facts, nil
}

func runIntrospect(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	dialect := introspectDialect
	if dialect == "" {
		dialect = cfg.Relations.Dialect
	}

	facts, err := discoverFacts(cmd.Context(), cfg, dialect, logger)
	if err != nil {
		return err
	}

	out, err := relations.Marshal(facts)
	if err != nil {
		return err
	}

	if introspectOut == "" {
		_, err := os.Stdout.Write(out)
		return err
	}
	if err := os.WriteFile(introspectOut, out, 0o644); err != nil {
		return fmt.Errorf("failed to write facts file: %w", err)
	}
	logger.Info("relation facts written",
		zap.String("path", introspectOut),
		zap.Int("tables", facts.TableCount()),
		zap.Int("associations", facts.AssociationCount()))
	return nil
}

func discoverFacts(ctx context.Context, cfg *config.Config, dialect string, logger *zap.Logger) (*relations.Facts, error) {
	switch dialect {
	case "postgres":
		dsn := introspectDSN
		if dsn == "" {
			dsn = cfg.Relations.ConnectionString()
		}
		provider, err := relpostgres.New(ctx, relpostgres.Config{
			ConnString: dsn,
			Schema:     cfg.Relations.Schema,
			MaxConns:   cfg.Relations.MaxConnections,
		}, logger)
		if err != nil {
			return nil, err
		}
		defer provider.Close()
		return provider.Discover(ctx)

	case "mssql":
		dsn := introspectDSN
		if dsn == "" {
			dsn = cfg.Relations.SQLServerURL()
		}
		provider, err := relmssql.New(ctx, relmssql.Config{
			ConnString: dsn,
			Schema:     cfg.Relations.Schema,
		}, logger)
		if err != nil {
			return nil, err
		}
		defer provider.Close()
		return provider.Discover(ctx)

	default:
		return nil, fmt.Errorf("unknown dialect %q (expected postgres or mssql)", dialect)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if serveTransport != "" {
		cfg.Serve.Transport = serveTransport
	}

	var facts *relations.Facts
	if cfg.Relations.FactsFile != "" {
		facts, err = relations.LoadFile(cfg.Relations.FactsFile)
		if err != nil {
			return err
		}
		logger.Info("relation facts loaded",
			zap.String("path", cfg.Relations.FactsFile),
			zap.Int("tables", facts.TableCount()))
	}

	engine := analysis.NewEngine(engineConfig(cfg), suggest.NewCatalog(), logger)
	srv := mcp.NewServer(mcp.ToolDeps{
		Engine:  engine,
		Facts:   facts,
		Logger:  logger,
		Version: cfg.Version,
	})

	switch cfg.Serve.Transport {
	case "stdio":
		logger.Info("serving MCP over stdio", zap.String("version", cfg.Version))
		return srv.ServeStdio()
	case "http":
		addr := net.JoinHostPort(cfg.Serve.BindAddr, cfg.Serve.Port)
		mux := http.NewServeMux()
		mux.Handle("/mcp", srv.NewStreamableHTTPServer())
		logger.Info("serving MCP over http",
			zap.String("addr", addr),
			zap.String("version", cfg.Version))
		return http.ListenAndServe(addr, mux)
	default:
		return fmt.Errorf("unknown serve.transport %q (expected stdio or http)", cfg.Serve.Transport)
	}
}
