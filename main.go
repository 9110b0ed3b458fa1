package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"ainotebook/internal/config"
	"ainotebook/internal/logging"
	"ainotebook/internal/store"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	serve := func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, configPath)
	}

	root := &cobra.Command{
		Use:          "ainotebook",
		Short:        "AI notebook backend: notes, notebooks and a chat proxy over a flat-file store",
		Version:      version,
		SilenceUsage: true,
		RunE:         serve,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file (optional)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server (default)",
		Args:  cobra.NoArgs,
		RunE:  serve,
	})

	root.AddCommand(&cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Copy users, notebooks, notes and API configs from the JSON files into SQLite",
		Long: `Reads the JSON collections under store.data_dir and replaces the contents of
the SQLite database at store.sqlite_path with them. Tags live in memory and
are not migrated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runMigrate(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	})

	return root
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer closeLog()
	logger.Info("starting ainotebook v%s", version)

	for _, w := range cfg.Warnings() {
		logger.Warn("%s", w)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed: %v", err)
		return err
	}
	defer a.close()

	if err := a.run(ctx, cfg.Server); err != nil {
		logger.Error("server stopped: %v", err)
		return err
	}
	logger.Info("ainotebook stopped")
	return nil
}

func runMigrate(ctx context.Context, out io.Writer, cfg *config.Config) error {
	logger := logging.NewLogger("migrate", logging.ParseLevel(cfg.Logging.Level), os.Stderr)

	src, err := store.Open(ctx, store.Options{Driver: store.DriverJSON, DataDir: cfg.Store.DataDir}, logger)
	if err != nil {
		return fmt.Errorf("open json store: %w", err)
	}
	defer src.Close()

	dst, err := store.Open(ctx, store.Options{Driver: store.DriverSQLite, SQLitePath: cfg.Store.SQLitePath}, logger)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	defer dst.Close()

	counts, err := src.CopyTo(ctx, dst)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(out, "Migrated %s -> %s\n", cfg.Store.DataDir, cfg.Store.SQLitePath)
	for _, name := range names {
		fmt.Fprintf(out, "  %-12s %d\n", name, counts[name])
	}
	return nil
}

func printConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out, "Configuration loaded successfully!")
	fmt.Fprintf(out, "Listen address:  %s\n", cfg.Server.Addr())
	fmt.Fprintf(out, "CORS origin:     %s\n", cfg.Server.CORSOrigin)
	fmt.Fprintf(out, "Store driver:    %s\n", cfg.Store.Driver)
	fmt.Fprintf(out, "Data directory:  %s\n", cfg.Store.DataDir)
	if cfg.Store.Driver == store.DriverSQLite {
		fmt.Fprintf(out, "SQLite path:     %s\n", cfg.Store.SQLitePath)
	}
	fmt.Fprintf(out, "Chat timeout:    %s\n", cfg.Chat.Timeout)
	fmt.Fprintf(out, "Web clipper:     %v\n", cfg.Ingest.Enabled)
	fmt.Fprintf(out, "Log level:       %s\n", cfg.Logging.Level)
	for _, w := range cfg.Warnings() {
		fmt.Fprintf(out, "WARNING: %s\n", w)
	}
}
