package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ainotebook/internal/api"
	"ainotebook/internal/auth"
	"ainotebook/internal/chat"
	"ainotebook/internal/config"
	"ainotebook/internal/ingest"
	"ainotebook/internal/llm"
	"ainotebook/internal/logging"
	"ainotebook/internal/notebook"
	"ainotebook/internal/store"
	"ainotebook/internal/watcher"
)

// newLogger builds the root logger. When a log file is configured entries are
// tee'd to it as JSON; the returned func flushes and closes the file.
func newLogger(cfg config.LoggingConfig) (*logging.Logger, func(), error) {
	level := logging.ParseLevel(cfg.Level)
	if cfg.File == "" {
		return logging.NewLogger("main", level, os.Stdout), func() {}, nil
	}
	fw, err := logging.NewFileWriter(cfg.File, cfg.MaxSizeMB, cfg.MaxBackups)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewTeeLogger("main", level, os.Stdout, fw)
	return logger, func() {
		if err := fw.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] close log file: %v\n", err)
		}
	}, nil
}

func storeOptions(cfg config.StoreConfig) store.Options {
	return store.Options{
		Driver:     cfg.Driver,
		DataDir:    cfg.DataDir,
		SQLitePath: cfg.SQLitePath,
	}
}

func chatOptions(cfg config.ChatConfig) chat.Options {
	return chat.Options{
		Timeout:       cfg.Timeout,
		TestTimeout:   cfg.TestTimeout,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
		HistoryLimit:  cfg.HistoryLimit,
		RatePerMinute: cfg.RatePerMinute,
		Burst:         cfg.Burst,
	}
}

func ingestOptions(cfg config.IngestConfig) ingest.Options {
	return ingest.Options{
		Enabled:           cfg.Enabled,
		Timeout:           cfg.Timeout,
		MaxBytes:          cfg.MaxBytes,
		UserAgent:         cfg.UserAgent,
		AllowPrivateHosts: cfg.AllowPrivateHosts,
	}
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// app is the wired server and the resources it owns.
type app struct {
	store   *store.Store
	server  *api.Server
	watcher *watcher.Watcher
	logger  *logging.Logger
}

// newApp opens the store and wires every service into the HTTP server.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	st, err := store.Open(ctx, storeOptions(cfg.Store), logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	reg := newRegistry()
	hub := api.NewHub(logger.Named("websocket"))

	notes := notebook.NewService(st, hub, logger.Named("notebook"))
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTRefreshSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	accounts := auth.NewService(st.Users, tokens, cfg.Auth.BcryptCost, notes, logger.Named("auth"))

	llmClient := llm.NewClient(&http.Client{}, logger.Named("llm"))
	chatSvc := chat.NewService(st.APIConfigs, llmClient, notes, chat.NewMetrics(reg), chatOptions(cfg.Chat), logger.Named("chat"))

	removed, err := chatSvc.CleanupConfigs(ctx)
	if err != nil {
		logger.WithContext("error", err.Error()).Warn("api config cleanup failed")
	} else if removed > 0 {
		logger.WithContext("removed", removed).Info("removed invalid api configs")
	}

	clipper := ingest.NewClipper(&http.Client{}, notes, ingestOptions(cfg.Ingest), logger.Named("ingest"))

	server, err := api.NewServer(api.Deps{
		Auth:     accounts,
		Notebook: notes,
		Chat:     chatSvc,
		Clipper:  clipper,
		Hub:      hub,
		Registry: reg,
		Logger:   logger.Named("api"),
	}, cfg.Server)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create server: %w", err)
	}

	a := &app{store: st, server: server, logger: logger}
	if cfg.Store.Watch && cfg.Store.Driver == store.DriverJSON {
		w, err := watcher.NewWatcher(st.CachedFiles(), logger.Named("watcher"))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("create watcher: %w", err)
		}
		a.watcher = w
	}
	return a, nil
}

// run serves until ctx is cancelled, then shuts down within shutdownTimeout.
func (a *app) run(ctx context.Context, cfg config.ServerConfig) error {
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			a.logger.WithContext("error", err.Error()).Warn("data file watcher disabled")
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Start(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (a *app) close() {
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			a.logger.WithContext("error", err.Error()).Warn("failed to close watcher")
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.WithContext("error", err.Error()).Warn("failed to close store")
	}
}
