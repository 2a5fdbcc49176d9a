package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  host: "0.0.0.0"
  port: 8080
database:
  host: "localhost"
  port: 5432
  name: "fittrack"
  user: "fittrack"
  password: "secret"
  sslmode: "disable"
auth:
  api_key: "test-key-123"
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestLoadValid verifies that a well-formed YAML config loads with all fields populated.
func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeTemp(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server.host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Errorf("database.driver = %q, want postgres default", cfg.Database.Driver)
	}
	if cfg.Database.Name != "fittrack" {
		t.Errorf("database.name = %q, want %q", cfg.Database.Name, "fittrack")
	}
	if cfg.Auth.APIKey != "test-key-123" {
		t.Errorf("auth.api_key = %q, want %q", cfg.Auth.APIKey, "test-key-123")
	}
	if cfg.Tailscale.Hostname != "fittrack" {
		t.Errorf("tailscale.hostname = %q, want default fittrack", cfg.Tailscale.Hostname)
	}
}

// TestEnvOverride verifies that FITTRACK_ env vars take precedence over YAML values.
func TestEnvOverride(t *testing.T) {
	t.Setenv("FITTRACK_DB_HOST", "override-host")
	t.Setenv("FITTRACK_DB_PORT", "9999")
	t.Setenv("FITTRACK_AUTH_API_KEY", "env-key")
	t.Setenv("FITTRACK_LOG_LEVEL", "debug")

	cfg, err := Load(writeTemp(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "override-host" {
		t.Errorf("database.host = %q, want %q", cfg.Database.Host, "override-host")
	}
	if cfg.Database.Port != 9999 {
		t.Errorf("database.port = %d, want 9999", cfg.Database.Port)
	}
	if cfg.Auth.APIKey != "env-key" {
		t.Errorf("auth.api_key = %q, want %q", cfg.Auth.APIKey, "env-key")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080 (unchanged)", cfg.Server.Port)
	}
}

// TestValidationMissingAPIKey verifies that a config without an API key is rejected.
func TestValidationMissingAPIKey(t *testing.T) {
	yaml := `
server:
  port: 8080
database:
  host: "localhost"
  port: 5432
  name: "fittrack"
  user: "fittrack"
`
	_, err := Load(writeTemp(t, yaml))
	if err == nil || !strings.Contains(err.Error(), "auth.api_key") {
		t.Fatalf("err = %v, want auth.api_key error", err)
	}
}

// TestValidationMissingDBHost verifies that postgres requires a host.
func TestValidationMissingDBHost(t *testing.T) {
	yaml := `
server:
  port: 8080
database:
  port: 5432
  name: "fittrack"
  user: "fittrack"
auth:
  api_key: "key"
`
	_, err := Load(writeTemp(t, yaml))
	if err == nil || !strings.Contains(err.Error(), "database.host") {
		t.Fatalf("err = %v, want database.host error", err)
	}
}

// TestValidationMemoryDriver verifies the memory driver needs no database fields.
func TestValidationMemoryDriver(t *testing.T) {
	yaml := `
server:
  port: 8080
database:
  driver: memory
auth:
  api_key: "key"
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != DriverMemory {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
}

// TestValidationUnknownDriver verifies drivers outside postgres and memory are rejected.
func TestValidationUnknownDriver(t *testing.T) {
	yaml := `
server:
  port: 8080
database:
  driver: mysql
auth:
  api_key: "key"
`
	if _, err := Load(writeTemp(t, yaml)); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

// TestValidationTailscaleStateDir verifies tailscale needs a state directory.
func TestValidationTailscaleStateDir(t *testing.T) {
	yaml := validYAML + `
tailscale:
  enabled: true
`
	_, err := Load(writeTemp(t, yaml))
	if err == nil || !strings.Contains(err.Error(), "tailscale.state_dir") {
		t.Fatalf("err = %v, want tailscale.state_dir error", err)
	}
}

// TestValidationLogLevel verifies unknown log levels are rejected.
func TestValidationLogLevel(t *testing.T) {
	yaml := validYAML + `
log:
  level: chatty
`
	if _, err := Load(writeTemp(t, yaml)); err == nil {
		t.Fatal("expected error for log.level")
	}
}

// TestDSN verifies the DSN string is correctly assembled from config fields.
func TestDSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5432,
		Name:     "mydb",
		User:     "admin",
		Password: "p@ss",
		SSLMode:  "require",
	}
	want := "postgres://admin:p@ss@db.example.com:5432/mydb?sslmode=require"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

// TestDSNDefaultSSLMode verifies sslmode defaults to "disable" when not set.
func TestDSNDefaultSSLMode(t *testing.T) {
	d := DatabaseConfig{Host: "localhost", Port: 5432, Name: "db", User: "u", Password: "p"}
	want := "postgres://u:p@localhost:5432/db?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

// TestLoadMissingFile verifies that a nonexistent config path returns an error.
func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// TestLoadClientDefaults verifies the client runs with no config file.
func TestLoadClientDefaults(t *testing.T) {
	t.Setenv("FITTRACK_STORE_DIR", t.TempDir())

	cfg, err := LoadClient("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Remote.URL != "" {
		t.Errorf("remote.url = %q, want empty", cfg.Remote.URL)
	}
	if cfg.Sync.Schedule != "@every 5m" {
		t.Errorf("sync.schedule = %q", cfg.Sync.Schedule)
	}
	if cfg.Sync.ProbeInterval() != 15*time.Second {
		t.Errorf("probe interval = %v", cfg.Sync.ProbeInterval())
	}
	if cfg.Remote.Timeout() != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Remote.Timeout())
	}
}

// TestLoadClientFileAndEnv verifies YAML values load and env vars override them.
func TestLoadClientFileAndEnv(t *testing.T) {
	yaml := `
remote:
  url: "http://yaml:8080"
  api_key: "yaml-key"
store:
  dir: "/tmp/fittrack"
sync:
  schedule: "*/10 * * * *"
  latency_ms: 250
`
	t.Setenv("FITTRACK_REMOTE_URL", "http://env:9090")
	t.Setenv("FITTRACK_SYNC_OFFLINE", "true")

	cfg, err := LoadClient(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Remote.URL != "http://env:9090" {
		t.Errorf("remote.url = %q", cfg.Remote.URL)
	}
	if cfg.Remote.APIKey != "yaml-key" {
		t.Errorf("remote.api_key = %q", cfg.Remote.APIKey)
	}
	if cfg.Sync.Latency() != 250*time.Millisecond {
		t.Errorf("latency = %v", cfg.Sync.Latency())
	}
	if !cfg.Sync.Offline {
		t.Error("sync.offline not overridden")
	}
}

// TestLoadClientEmptyScheduleDisables verifies an explicitly empty schedule
// env var turns periodic sync off.
func TestLoadClientEmptyScheduleDisables(t *testing.T) {
	t.Setenv("FITTRACK_STORE_DIR", t.TempDir())
	t.Setenv("FITTRACK_SYNC_SCHEDULE", "")

	cfg, err := LoadClient("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sync.Schedule != "" {
		t.Errorf("schedule = %q, want empty", cfg.Sync.Schedule)
	}
}

// TestLoadClientBadSchedule verifies cron specs are checked at load time.
func TestLoadClientBadSchedule(t *testing.T) {
	t.Setenv("FITTRACK_STORE_DIR", t.TempDir())
	t.Setenv("FITTRACK_SYNC_SCHEDULE", "whenever")

	if _, err := LoadClient(""); err == nil {
		t.Fatal("expected schedule error")
	}
}

// TestLoadEnvFile verifies .env values reach the environment without
// clobbering variables already set, and a missing file is ignored.
func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "FITTRACK_TEST_ENVFILE_A=from-file\nFITTRACK_TEST_ENVFILE_B=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FITTRACK_TEST_ENVFILE_B", "preset")
	t.Setenv("FITTRACK_TEST_ENVFILE_A", "")
	os.Unsetenv("FITTRACK_TEST_ENVFILE_A")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("FITTRACK_TEST_ENVFILE_A"); got != "from-file" {
		t.Errorf("A = %q, want from-file", got)
	}
	if got := os.Getenv("FITTRACK_TEST_ENVFILE_B"); got != "preset" {
		t.Errorf("B = %q, want preset", got)
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file err = %v, want nil", err)
	}
}
