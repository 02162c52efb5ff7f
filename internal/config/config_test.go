// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, durations and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
store:
  dir: "/var/lib/till"
  file: "shop.db"
  backend: "sqlite"

server:
  http_addr: "127.0.0.1:9000"

changes:
  retention: "720h"
  prune_interval: "30m"

api:
  idempotency_ttl: "5m"
  idempotency_max_keys: 64

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.Store.Path(); got != "/var/lib/till/shop.db" {
		t.Errorf("Store.Path() = %q, want %q", got, "/var/lib/till/shop.db")
	}
	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, BackendSQLite)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:9000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:9000")
	}
	if cfg.Changes.Retention != 720*time.Hour {
		t.Errorf("Changes.Retention = %v, want %v", cfg.Changes.Retention, 720*time.Hour)
	}
	if cfg.Changes.PruneInterval != 30*time.Minute {
		t.Errorf("Changes.PruneInterval = %v, want %v", cfg.Changes.PruneInterval, 30*time.Minute)
	}
	if cfg.API.IdempotencyTTL != 5*time.Minute {
		t.Errorf("API.IdempotencyTTL = %v, want %v", cfg.API.IdempotencyTTL, 5*time.Minute)
	}
	if cfg.API.IdempotencyMaxKeys != 64 {
		t.Errorf("API.IdempotencyMaxKeys = %d, want 64", cfg.API.IdempotencyMaxKeys)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[store]
dir = "/srv/till"
backend = "json"

[server]
http_addr = "0.0.0.0:8080"

[changes]
retention = "48h"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Dir != "/srv/till" {
		t.Errorf("Store.Dir = %q, want %q", cfg.Store.Dir, "/srv/till")
	}
	if cfg.Store.File != "db.json" {
		t.Errorf("Store.File = %q, want default %q", cfg.Store.File, "db.json")
	}
	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Changes.Retention != 48*time.Hour {
		t.Errorf("Changes.Retention = %v, want 48h", cfg.Changes.Retention)
	}
	if cfg.Changes.PruneInterval != time.Hour {
		t.Errorf("Changes.PruneInterval = %v, want default 1h", cfg.Changes.PruneInterval)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	secret := strings.Repeat("s", 32)
	t.Setenv("TEST_TILL_SECRET", secret)
	t.Setenv("TEST_TILL_ADDR", "localhost:7000")

	path := writeConfig(t, "config.yaml", `
server:
  http_addr: "${TEST_TILL_ADDR}"
auth:
  jwt_secret: "${TEST_TILL_SECRET}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != secret {
		t.Errorf("Auth.JWTSecret = %q, want expanded value", cfg.Auth.JWTSecret)
	}
	if cfg.Server.HTTPAddr != "localhost:7000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "localhost:7000")
	}
}

func TestLoad_UnsetEnvVarExpandsEmpty(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
auth:
  jwt_secret: "${TEST_TILL_DEFINITELY_UNSET}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "" {
		t.Errorf("Auth.JWTSecret = %q, want empty", cfg.Auth.JWTSecret)
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	path := writeConfig(t, "config.yaml", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Store.Path(); got != "/data/till/db.json" {
		t.Errorf("Store.Path() = %q, want %q", got, "/data/till/db.json")
	}
	if cfg.Store.Backend != BackendJSON {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, BackendJSON)
	}
	if cfg.API.IdempotencyTTL != 10*time.Minute {
		t.Errorf("API.IdempotencyTTL = %v, want 10m", cfg.API.IdempotencyTTL)
	}
	if cfg.Changes.Retention != 0 {
		t.Errorf("Changes.Retention = %v, want 0 (keep forever)", cfg.Changes.Retention)
	}
}

func TestLoad_ExpandsHomeInStoreDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := writeConfig(t, "config.yaml", `
store:
  dir: "~/till-data"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := filepath.Join(home, "till-data"); cfg.Store.Dir != want {
		t.Errorf("Store.Dir = %q, want %q", cfg.Store.Dir, want)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
changes:
  retention: "a fortnight"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "retention") {
		t.Errorf("error = %v, want mention of retention", err)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", "store: [unclosed")

	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected parse error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Server.HTTPAddr != "localhost:8787" {
		t.Errorf("Server.HTTPAddr = %q, want default", cfg.Server.HTTPAddr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"missing dir", func(c *Config) { c.Store.Dir = "" }, "store.dir"},
		{"missing file", func(c *Config) { c.Store.File = "" }, "store.file"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "postgres" }, "store.backend"},
		{"missing http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "jwt_secret"},
		{"negative retention", func(c *Config) { c.Changes.Retention = -time.Hour }, "retention"},
		{"retention without interval", func(c *Config) {
			c.Changes.Retention = time.Hour
			c.Changes.PruneInterval = 0
		}, "prune_interval"},
		{"negative max keys", func(c *Config) { c.API.IdempotencyMaxKeys = -1 }, "idempotency_max_keys"},
		{"bad log level", func(c *Config) { c.Logging.Level = "chatty" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Store.Dir = "/opt/till"
	cfg.Store.Backend = BackendSQLite
	cfg.Changes.RetentionRaw = "24h"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat saved config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config mode = %o, want 600", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Store.Dir != "/opt/till" || loaded.Store.Backend != BackendSQLite {
		t.Errorf("Store = %+v, want saved values", loaded.Store)
	}
	if loaded.Changes.Retention != 24*time.Hour {
		t.Errorf("Changes.Retention = %v, want 24h", loaded.Changes.Retention)
	}
}

func TestConfigPath(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv("TILL_CONFIG", "/etc/till.yaml")
		if got := ConfigPath(); got != "/etc/till.yaml" {
			t.Errorf("ConfigPath() = %q, want %q", got, "/etc/till.yaml")
		}
	})

	t.Run("xdg config home", func(t *testing.T) {
		t.Setenv("TILL_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		if got := ConfigPath(); got != "/xdg/till/config.yaml" {
			t.Errorf("ConfigPath() = %q, want %q", got, "/xdg/till/config.yaml")
		}
	})

	t.Run("home fallback", func(t *testing.T) {
		t.Setenv("TILL_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", "/home/cashier")
		if got := ConfigPath(); got != "/home/cashier/.config/till/config.yaml" {
			t.Errorf("ConfigPath() = %q", got)
		}
	})
}

func TestDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/xdg-data")
	if got := DataDir(); got != "/xdg-data/till" {
		t.Errorf("DataDir() = %q, want %q", got, "/xdg-data/till")
	}

	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "/home/cashier")
	if got := DataDir(); got != "/home/cashier/.local/share/till" {
		t.Errorf("DataDir() = %q, want %q", got, "/home/cashier/.local/share/till")
	}
}
