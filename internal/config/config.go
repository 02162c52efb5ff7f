// ABOUTME: Configuration loading and parsing for till
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config represents the complete till configuration
type Config struct {
	Store   StoreConfig   `yaml:"store" toml:"store"`
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
	Changes ChangesConfig `yaml:"changes" toml:"changes"`
	API     APIConfig     `yaml:"api" toml:"api"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// StoreConfig holds the datastore location and backend
type StoreConfig struct {
	Dir     string `yaml:"dir" toml:"dir"`
	File    string `yaml:"file" toml:"file"`
	Backend string `yaml:"backend" toml:"backend"` // json or sqlite
}

// Path returns the full path of the datastore file.
func (s StoreConfig) Path() string {
	return filepath.Join(s.Dir, s.File)
}

// ServerConfig holds the local HTTP listener address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// AuthConfig holds authentication configuration. An empty secret disables auth.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// ChangesConfig holds change-log retention settings
type ChangesConfig struct {
	Retention     time.Duration `yaml:"-" toml:"-"`
	PruneInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	RetentionRaw     string `yaml:"retention" toml:"retention"`
	PruneIntervalRaw string `yaml:"prune_interval" toml:"prune_interval"`
}

// APIConfig holds HTTP API behaviour settings
type APIConfig struct {
	IdempotencyTTL     time.Duration `yaml:"-" toml:"-"`
	IdempotencyTTLRaw  string        `yaml:"idempotency_ttl" toml:"idempotency_ttl"`
	IdempotencyMaxKeys int           `yaml:"idempotency_max_keys" toml:"idempotency_max_keys"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{
		Store: StoreConfig{
			Dir:     DataDir(),
			File:    "db.json",
			Backend: BackendJSON,
		},
		Server: ServerConfig{
			HTTPAddr: "localhost:8787",
		},
		Changes: ChangesConfig{
			PruneIntervalRaw: "1h",
		},
		API: APIConfig{
			IdempotencyTTLRaw:  "10m",
			IdempotencyMaxKeys: 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
	// Defaults are known-good
	_ = parseDurations(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Keys absent from the file keep their Default() values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.Store.Dir = expandHome(cfg.Store.Dir)

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists and falls back to Default() otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Save writes the configuration to path as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	// 0600 because auth.jwt_secret may be inlined
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Store.Dir == "" {
		return fmt.Errorf("store.dir is required")
	}
	if c.Store.File == "" {
		return fmt.Errorf("store.file is required")
	}
	switch c.Store.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendJSON, BackendSQLite, c.Store.Backend)
	}

	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	if c.Changes.Retention < 0 {
		return fmt.Errorf("changes.retention must not be negative")
	}
	if c.Changes.Retention > 0 && c.Changes.PruneInterval <= 0 {
		return fmt.Errorf("changes.prune_interval must be positive when retention is set")
	}

	if c.API.IdempotencyTTL < 0 {
		return fmt.Errorf("api.idempotency_ttl must not be negative")
	}
	if c.API.IdempotencyMaxKeys < 0 {
		return fmt.Errorf("api.idempotency_max_keys must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Changes.RetentionRaw != "" {
		cfg.Changes.Retention, err = time.ParseDuration(cfg.Changes.RetentionRaw)
		if err != nil {
			return fmt.Errorf("parsing retention %q: %w", cfg.Changes.RetentionRaw, err)
		}
	}

	if cfg.Changes.PruneIntervalRaw != "" {
		cfg.Changes.PruneInterval, err = time.ParseDuration(cfg.Changes.PruneIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing prune_interval %q: %w", cfg.Changes.PruneIntervalRaw, err)
		}
	}

	if cfg.API.IdempotencyTTLRaw != "" {
		cfg.API.IdempotencyTTL, err = time.ParseDuration(cfg.API.IdempotencyTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing idempotency_ttl %q: %w", cfg.API.IdempotencyTTLRaw, err)
		}
	}

	return nil
}
