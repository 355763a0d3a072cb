// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, env overrides, and duration parsing

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
server:
  http_addr: "0.0.0.0:8080"
  grpc_addr: "0.0.0.0:50051"

database:
  driver: "badger"
  path: "./data/chat"

auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"

logging:
  level: "debug"
  format: "json"

notifications:
  timeout: "2s"

dedupe:
  ttl: "1m"
  max_entries: 500
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Server.GRPCAddr != "0.0.0.0:50051" {
		t.Errorf("Server.GRPCAddr = %q, want %q", cfg.Server.GRPCAddr, "0.0.0.0:50051")
	}
	if cfg.Database.Driver != DriverBadger {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, DriverBadger)
	}
	if cfg.Database.Path != "./data/chat" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./data/chat")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
	if cfg.Notifications.Timeout != 2*time.Second {
		t.Errorf("Notifications.Timeout = %v, want %v", cfg.Notifications.Timeout, 2*time.Second)
	}
	if cfg.Dedupe.TTL != time.Minute {
		t.Errorf("Dedupe.TTL = %v, want %v", cfg.Dedupe.TTL, time.Minute)
	}
	if cfg.Dedupe.MaxEntries != 500 {
		t.Errorf("Dedupe.MaxEntries = %d, want %d", cfg.Dedupe.MaxEntries, 500)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[server]
http_addr = "127.0.0.1:9090"

[database]
path = "/tmp/chat.db"

[notifications]
timeout = "750ms"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9090" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:9090")
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("Database.Driver = %q, want default %q", cfg.Database.Driver, DriverSQLite)
	}
	if cfg.Notifications.Timeout != 750*time.Millisecond {
		t.Errorf("Notifications.Timeout = %v, want %v", cfg.Notifications.Timeout, 750*time.Millisecond)
	}
	// Untouched sections keep their defaults
	if cfg.Dedupe.TTL != 10*time.Minute {
		t.Errorf("Dedupe.TTL = %v, want default %v", cfg.Dedupe.TTL, 10*time.Minute)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, DriverSQLite)
	}
	if cfg.Notifications.Timeout != 5*time.Second {
		t.Errorf("Notifications.Timeout = %v, want %v", cfg.Notifications.Timeout, 5*time.Second)
	}
	if cfg.Auth.JWTSecret != "" {
		t.Error("default config should run without a JWT secret")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_CHAT_SECRET", "expanded-secret-that-is-32-bytes")
	t.Setenv("TEST_CHAT_DB", "/var/lib/chat.db")

	path := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "${TEST_CHAT_DB}"
auth:
  jwt_secret: "${TEST_CHAT_SECRET}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "expanded-secret-that-is-32-bytes" {
		t.Errorf("Auth.JWTSecret = %q, want expanded value", cfg.Auth.JWTSecret)
	}
	if cfg.Database.Path != "/var/lib/chat.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/var/lib/chat.db")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COVEN_CHAT_HTTP_ADDR", "0.0.0.0:7000")
	t.Setenv("COVEN_CHAT_DB_DRIVER", "badger")
	t.Setenv("COVEN_CHAT_DB_PATH", "/srv/chat")
	t.Setenv("COVEN_CHAT_LOG_LEVEL", "warn")

	path := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:8080"
database:
  driver: "sqlite"
  path: "./chat.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:7000" {
		t.Errorf("Server.HTTPAddr = %q, want env override", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Driver != DriverBadger {
		t.Errorf("Database.Driver = %q, want env override", cfg.Database.Driver)
	}
	if cfg.Database.Path != "/srv/chat" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want env override", cfg.Logging.Level)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			file:    "config.yaml",
			content: "server: [unclosed",
			wantErr: "parsing config file",
		},
		{
			name:    "invalid toml",
			file:    "config.toml",
			content: "[server\nhttp_addr = 1",
			wantErr: "parsing config file",
		},
		{
			name: "bad duration",
			file: "config.yaml",
			content: `
notifications:
  timeout: "soon"
`,
			wantErr: "notifications.timeout",
		},
		{
			name: "unknown driver",
			file: "config.yaml",
			content: `
database:
  driver: "postgres"
`,
			wantErr: "database.driver",
		},
		{
			name: "short secret",
			file: "config.yaml",
			content: `
auth:
  jwt_secret: "tiny"
`,
			wantErr: "auth.jwt_secret",
		},
		{
			name: "bad log format",
			file: "config.yaml",
			content: `
logging:
  format: "xml"
`,
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("Load() should have returned an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
}

func TestValidate_RequiresFields(t *testing.T) {
	cfg := Default()
	cfg.Server.HTTPAddr = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "server.http_addr") {
		t.Errorf("Validate() error = %v, want server.http_addr", err)
	}

	cfg = Default()
	cfg.Database.Path = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "database.path") {
		t.Errorf("Validate() error = %v, want database.path", err)
	}
}

func TestExpandEnvVars_UnsetBecomesEmpty(t *testing.T) {
	got := expandEnvVars("a=${COVEN_CHAT_DEFINITELY_UNSET_VAR};b")
	if got != "a=;b" {
		t.Errorf("expandEnvVars() = %q, want %q", got, "a=;b")
	}
}
