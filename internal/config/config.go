package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"golang.org/x/crypto/bcrypt"

	"ainotebook/internal/logging"
)

// Insecure fallbacks kept for compatibility with existing deployments.
const (
	DefaultJWTSecret        = "your-secret-key"
	DefaultJWTRefreshSecret = "your-refresh-secret-key"

	// EnvPrefix namespaces the generic SECTION_FIELD overrides.
	EnvPrefix = "AINOTEBOOK_"

	maxConfigFileSize = 1024 * 1024
)

const defaultsYAML = `
server:
  port: 3001
  bind_address: ""
  cors_origin: "http://localhost:3000"
  read_timeout: 15s
  write_timeout: 60s
  idle_timeout: 60s
  shutdown_timeout: 10s
  body_limit: "2M"
auth:
  jwt_secret: "your-secret-key"
  jwt_refresh_secret: "your-refresh-secret-key"
  access_ttl: 1h
  refresh_ttl: 168h
  bcrypt_cost: 12
store:
  driver: json
  data_dir: data
  sqlite_path: ""
  watch: true
chat:
  timeout: 30s
  test_timeout: 10s
  max_tokens: 2000
  temperature: 0.7
  history_limit: 10
  rate_per_minute: 30
  burst: 5
ingest:
  enabled: true
  timeout: 15s
  max_bytes: 5242880
  user_agent: "ainotebook-clipper/1.0"
  allow_private_hosts: false
logging:
  level: info
  file: ""
  max_size_mb: 10
  max_backups: 3
`

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Auth    AuthConfig    `koanf:"auth"`
	Store   StoreConfig   `koanf:"store"`
	Chat    ChatConfig    `koanf:"chat"`
	Ingest  IngestConfig  `koanf:"ingest"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port            int           `koanf:"port"`
	BindAddress     string        `koanf:"bind_address"`
	CORSOrigin      string        `koanf:"cors_origin"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	BodyLimit       string        `koanf:"body_limit"` // echo size notation, e.g. "2M"
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.BindAddress, s.Port)
}

// AuthConfig configures token signing and password hashing
type AuthConfig struct {
	JWTSecret        string        `koanf:"jwt_secret"`
	JWTRefreshSecret string        `koanf:"jwt_refresh_secret"`
	AccessTTL        time.Duration `koanf:"access_ttl"`
	RefreshTTL       time.Duration `koanf:"refresh_ttl"`
	BcryptCost       int           `koanf:"bcrypt_cost"`
}

// StoreConfig selects the record store backend
type StoreConfig struct {
	Driver     string `koanf:"driver"` // "json" or "sqlite"
	DataDir    string `koanf:"data_dir"`
	SQLitePath string `koanf:"sqlite_path"` // defaults to <data_dir>/ainotebook.db
	Watch      bool   `koanf:"watch"`       // reload JSON files edited outside the process
}

// ChatConfig controls the chat completion proxy
type ChatConfig struct {
	Timeout       time.Duration `koanf:"timeout"`
	TestTimeout   time.Duration `koanf:"test_timeout"`
	MaxTokens     int           `koanf:"max_tokens"`
	Temperature   float64       `koanf:"temperature"`
	HistoryLimit  int           `koanf:"history_limit"`
	RatePerMinute int           `koanf:"rate_per_minute"` // 0 disables the limiter
	Burst         int           `koanf:"burst"`
}

// IngestConfig controls the web clipper
type IngestConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Timeout   time.Duration `koanf:"timeout"`
	MaxBytes  int64         `koanf:"max_bytes"`
	UserAgent string        `koanf:"user_agent"`
	// AllowPrivateHosts lets the clipper fetch loopback and private addresses.
	AllowPrivateHosts bool `koanf:"allow_private_hosts"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level      string `koanf:"level"`
	File       string `koanf:"file"` // optional JSON log file, rotated by size
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
}

// Load reads configuration from defaults, then the YAML file at path (if it
// exists), then the environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaultsYAML)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if content != nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = strings.TrimRight(cfg.Store.DataDir, "/") + "/ainotebook.db"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// legacyEnv maps the bare variable names deployments already use.
var legacyEnv = map[string]string{
	"PORT":               "server.port",
	"CORS_ORIGIN":        "server.cors_origin",
	"JWT_SECRET":         "auth.jwt_secret",
	"JWT_REFRESH_SECRET": "auth.jwt_refresh_secret",
	"DATA_DIR":           "store.data_dir",
	"LOG_LEVEL":          "logging.level",
}

// envKey maps an environment variable to a config key, or "" to ignore it.
//
//	PORT                         -> server.port
//	AINOTEBOOK_CHAT_MAX_TOKENS   -> chat.max_tokens
func envKey(name string) string {
	if key, ok := legacyEnv[name]; ok {
		return key
	}
	if !strings.HasPrefix(name, EnvPrefix) {
		return ""
	}
	parts := strings.SplitN(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "_", 2)
	if len(parts) != 2 || parts[1] == "" {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.CORSOrigin == "" {
		return fmt.Errorf("server cors_origin is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown_timeout must be positive")
	}

	if c.Auth.JWTSecret == "" || c.Auth.JWTRefreshSecret == "" {
		return fmt.Errorf("jwt secrets must not be empty")
	}
	if c.Auth.JWTSecret == c.Auth.JWTRefreshSecret {
		return fmt.Errorf("access and refresh token secrets must differ")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	switch c.Store.Driver {
	case "json", "sqlite":
	default:
		return fmt.Errorf("store driver must be 'json' or 'sqlite', got %q", c.Store.Driver)
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store data_dir is required")
	}

	if c.Chat.Timeout <= 0 || c.Chat.TestTimeout <= 0 {
		return fmt.Errorf("chat timeouts must be positive")
	}
	if c.Chat.MaxTokens <= 0 {
		return fmt.Errorf("chat max_tokens must be positive")
	}
	if c.Chat.HistoryLimit < 0 {
		return fmt.Errorf("chat history_limit must not be negative")
	}
	if c.Chat.RatePerMinute < 0 {
		return fmt.Errorf("chat rate_per_minute must not be negative")
	}

	if c.Ingest.Enabled && (c.Ingest.Timeout <= 0 || c.Ingest.MaxBytes <= 0) {
		return fmt.Errorf("ingest timeout and max_bytes must be positive")
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	return nil
}

// Warnings lists settings that work but are unsafe outside development.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Auth.JWTSecret == DefaultJWTSecret {
		warnings = append(warnings, "JWT_SECRET is not set, using the insecure built-in default")
	}
	if c.Auth.JWTRefreshSecret == DefaultJWTRefreshSecret {
		warnings = append(warnings, "JWT_REFRESH_SECRET is not set, using the insecure built-in default")
	}
	if c.Server.CORSOrigin == "*" {
		warnings = append(warnings, "CORS origin '*' combined with credentials is rejected by browsers")
	}
	return warnings
}
