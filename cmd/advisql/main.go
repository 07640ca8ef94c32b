package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/advisql/advisql"
	"github.com/advisql/advisql/internal/analyzer"
	"github.com/advisql/advisql/internal/config"
	"github.com/advisql/advisql/internal/llm"
	"github.com/advisql/advisql/internal/server"
)

var (
	configPath string
	dbURL      string
	schemaName string
	listenAddr string
)

var rootCmd = &cobra.Command{
	Use:   "advisql",
	Short: "Schema-aware SQL query optimization advisor",
	Long: `AdviSQL analyzes SQL queries against a live PostgreSQL, MySQL, or SQLite
database and suggests rewrites, indexes, materialized views, partitioning,
and sharding based on the actual schema and table statistics.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the advisory HTTP server",
	RunE:  runServe,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <query>",
	Short: "Analyze a query's structure and complexity",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize <query>",
	Short: "Suggest optimizations for a query against the configured database",
	Args:  cobra.ExactArgs(1),
	RunE:  runOptimize,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "Database connection URL (postgres://, mysql://, or sqlite://)")
	rootCmd.PersistentFlags().StringVarP(&schemaName, "schema", "s", "", "Database schema name (default: public for PostgreSQL)")
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address (default :8080)")

	rootCmd.AddCommand(serveCmd, analyzeCmd, optimizeCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if schemaName != "" {
		cfg.SchemaName = schemaName
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL is required (--db-url flag, ADVISQL_DATABASE_URL, or config file)")
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func newEngine(ctx context.Context, cfg *config.Config, log *zap.Logger) (*advisql.Engine, error) {
	opts := &advisql.Options{
		SchemaName: cfg.SchemaName,
		TTLs:       cfg.TTLs(),
		Logger:     log,
	}
	if cfg.LLM.Enabled {
		opts.Oracle = llm.NewChatClient(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.APIKey)
	}
	return advisql.New(ctx, cfg.DatabaseURL, opts)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := newEngine(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warn("failed to close database connection", zap.Error(err))
		}
	}()

	handler := server.NewHandler(engine, log, nil)
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	analysis, err := analyzer.Analyze(args[0])
	if err != nil {
		return err
	}
	return printJSON(analysis)
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	engine, err := newEngine(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close database connection: %v\n", err)
		}
	}()

	result, err := engine.Optimize(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(result)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
