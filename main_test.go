package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ainotebook/internal/config"
	"ainotebook/internal/logging"
	"ainotebook/internal/store"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestOptionBridges(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	chatOpts := chatOptions(cfg.Chat)
	assert.Equal(t, 30*time.Second, chatOpts.Timeout)
	assert.Equal(t, 10*time.Second, chatOpts.TestTimeout)
	assert.Equal(t, 2000, chatOpts.MaxTokens)
	assert.Equal(t, 10, chatOpts.HistoryLimit)
	assert.Equal(t, 30, chatOpts.RatePerMinute)
	assert.Equal(t, 5, chatOpts.Burst)

	ingestOpts := ingestOptions(cfg.Ingest)
	assert.True(t, ingestOpts.Enabled)
	assert.Equal(t, int64(5*1024*1024), ingestOpts.MaxBytes)
	assert.False(t, ingestOpts.AllowPrivateHosts)

	storeOpts := storeOptions(cfg.Store)
	assert.Equal(t, store.DriverJSON, storeOpts.Driver)
	assert.Equal(t, "data", storeOpts.DataDir)
	assert.Equal(t, "data/ainotebook.db", storeOpts.SQLitePath)
}

func TestCheckConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "server:\n  port: 8081\n")

	out, err := execute(t, "check-config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration loaded successfully!")
	assert.Contains(t, out, "Listen address:  :8081")
	assert.Contains(t, out, "Store driver:    json")
	assert.Contains(t, out, "WARNING: JWT_SECRET is not set")
}

func TestCheckConfig_Invalid(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "store:\n  driver: postgres\n")

	_, err := execute(t, "check-config", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store driver")
}

func TestMigrate_CopiesJSONIntoSQLite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	dbPath := filepath.Join(dir, "db", "app.db")
	path := writeConfig(t, dir, "store:\n  data_dir: "+dataDir+"\n  sqlite_path: "+dbPath+"\nlogging:\n  level: error\n")

	logger := logging.NewLogger("test", logging.ERROR, io.Discard)
	src, err := store.Open(ctx, store.Options{Driver: store.DriverJSON, DataDir: dataDir}, logger)
	require.NoError(t, err)
	_, err = src.Users.Create(ctx, func(existing []store.User) (store.User, error) {
		return store.User{ID: "u1", Username: "ada", Email: "ada@example.com", Password: "hash", CreatedAt: store.Now(), UpdatedAt: store.Now()}, nil
	})
	require.NoError(t, err)
	require.NoError(t, src.Close())

	out, err := execute(t, "migrate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Migrated "+dataDir+" -> "+dbPath)
	assert.Regexp(t, `users\s+1`, out)
	assert.Regexp(t, `notebooks\s+1`, out)

	dst, err := store.Open(ctx, store.Options{Driver: store.DriverSQLite, SQLitePath: dbPath}, logger)
	require.NoError(t, err)
	defer dst.Close()
	user, err := dst.Users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ada", user.Username)
}

func TestNewLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	logger, closeLog, err := newLogger(config.LoggingConfig{Level: "debug", File: path, MaxSizeMB: 1, MaxBackups: 1})
	require.NoError(t, err)

	logger.Info("hello from %s", "main")
	closeLog()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from main")
}

func TestNewApp_ServesHealthAndMetrics(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "store:\n  data_dir: "+filepath.Join(dir, "data")+"\nauth:\n  bcrypt_cost: 4\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg, logging.NewLogger("test", logging.ERROR, io.Discard))
	require.NoError(t, err)
	defer a.close()
	require.NotNil(t, a.watcher, "json driver watches its data files")

	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "go_goroutines"), "runtime collectors are registered")
	assert.Contains(t, body, "http_active_requests")
}
