package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 1967 {
		t.Errorf("Server.Port = %d, want 1967", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Sink.DataDir != "./data" {
		t.Errorf("Sink.DataDir = %q, want %q", cfg.Sink.DataDir, "./data")
	}
	if cfg.Sink.ForwardBatch != 32 {
		t.Errorf("Sink.ForwardBatch = %d, want 32", cfg.Sink.ForwardBatch)
	}
	if cfg.Sink.ForwardRetries != 3 {
		t.Errorf("Sink.ForwardRetries = %d, want 3", cfg.Sink.ForwardRetries)
	}
	if cfg.Demo.Enabled {
		t.Error("Demo.Enabled = true, want false by default")
	}
	if cfg.Demo.IntervalMs != 2000 {
		t.Errorf("Demo.IntervalMs = %d, want 2000", cfg.Demo.IntervalMs)
	}
	if cfg.Tags.Service != "trace-bridge" {
		t.Errorf("Tags.Service = %q, want %q", cfg.Tags.Service, "trace-bridge")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 9090
  host: "127.0.0.1"
sink:
  data_dir: "/var/lib/bridge"
  forward_url: "http://collector:9000/api/events"
redact:
  fields:
    - "api_key"
    - "authorization"
  hash_session_ids: true
demo:
  enabled: true
  interval_ms: 500
tags:
  service: "checkout"
  environment: "staging"
log:
  level: "debug"
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Sink.DataDir != "/var/lib/bridge" {
		t.Errorf("Sink.DataDir = %q, want %q", cfg.Sink.DataDir, "/var/lib/bridge")
	}
	if cfg.Sink.ForwardURL != "http://collector:9000/api/events" {
		t.Errorf("Sink.ForwardURL = %q", cfg.Sink.ForwardURL)
	}
	if len(cfg.Redact.Fields) != 2 || cfg.Redact.Fields[0] != "api_key" {
		t.Errorf("Redact.Fields = %v, want [api_key authorization]", cfg.Redact.Fields)
	}
	if !cfg.Redact.HashSessionIDs {
		t.Error("Redact.HashSessionIDs = false, want true")
	}
	if !cfg.Demo.Enabled {
		t.Error("Demo.Enabled = false, want true")
	}
	if cfg.Demo.IntervalMs != 500 {
		t.Errorf("Demo.IntervalMs = %d, want 500", cfg.Demo.IntervalMs)
	}
	if cfg.Tags.Service != "checkout" {
		t.Errorf("Tags.Service = %q, want %q", cfg.Tags.Service, "checkout")
	}
	if cfg.Tags.Environment != "staging" {
		t.Errorf("Tags.Environment = %q, want %q", cfg.Tags.Environment, "staging")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Sink.ForwardBatch != 32 {
		t.Errorf("Sink.ForwardBatch = %d, want default 32", cfg.Sink.ForwardBatch)
	}
	if cfg.Sink.ForwardRetries != 3 {
		t.Errorf("Sink.ForwardRetries = %d, want default 3", cfg.Sink.ForwardRetries)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}

	if cfg.Server.Port != 1967 {
		t.Errorf("Server.Port = %d, want default 1967", cfg.Server.Port)
	}
}

func TestLoadOrDefaultExistingFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("server:\n  port: 4040\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if cfg.Server.Port != 4040 {
		t.Errorf("Server.Port = %d, want 4040", cfg.Server.Port)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgPath)
	if err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BRIDGE_PORT", "8100")
	t.Setenv("BRIDGE_DATA_DIR", "/tmp/traces")
	t.Setenv("BRIDGE_REDACT_FIELDS", "token,secret")
	t.Setenv("BRIDGE_DEMO", "true")
	t.Setenv("BRIDGE_DEMO_INTERVAL_MS", "750")
	t.Setenv("BRIDGE_SERVICE", "payments")
	t.Setenv("BRIDGE_LOG_FILE", "/var/log/bridge.log")

	cfg := defaultConfig()
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv() error: %v", err)
	}

	if cfg.Server.Port != 8100 {
		t.Errorf("Server.Port = %d, want 8100", cfg.Server.Port)
	}
	if cfg.Sink.DataDir != "/tmp/traces" {
		t.Errorf("Sink.DataDir = %q, want %q", cfg.Sink.DataDir, "/tmp/traces")
	}
	if len(cfg.Redact.Fields) != 2 || cfg.Redact.Fields[0] != "token" || cfg.Redact.Fields[1] != "secret" {
		t.Errorf("Redact.Fields = %v, want [token secret]", cfg.Redact.Fields)
	}
	if !cfg.Demo.Enabled {
		t.Error("Demo.Enabled = false, want true")
	}
	if cfg.Demo.IntervalMs != 750 {
		t.Errorf("Demo.IntervalMs = %d, want 750", cfg.Demo.IntervalMs)
	}
	if cfg.Tags.Service != "payments" {
		t.Errorf("Tags.Service = %q, want %q", cfg.Tags.Service, "payments")
	}
	if cfg.Log.File != "/var/log/bridge.log" {
		t.Errorf("Log.File = %q, want %q", cfg.Log.File, "/var/log/bridge.log")
	}

	// Variables that were not set leave the field alone.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want untouched default", cfg.Server.Host)
	}
	if cfg.Sink.ForwardBatch != 32 {
		t.Errorf("Sink.ForwardBatch = %d, want untouched default", cfg.Sink.ForwardBatch)
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("server:\n  port: 9090\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BRIDGE_PORT", "9191")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv() error: %v", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want env override 9191", cfg.Server.Port)
	}
}

func TestApplyEnvBadBool(t *testing.T) {
	t.Setenv("BRIDGE_DEMO", "sometimes")

	cfg := defaultConfig()
	if err := ApplyEnv(cfg); err == nil {
		t.Fatal("ApplyEnv() with bad BRIDGE_DEMO should return error")
	}
}

func TestApplyEnvBadInt(t *testing.T) {
	t.Setenv("BRIDGE_PORT", "not-a-port")

	cfg := defaultConfig()
	if err := ApplyEnv(cfg); err == nil {
		t.Fatal("ApplyEnv() with bad BRIDGE_PORT should return error")
	}
}

func TestDemoInterval(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.DemoInterval(); got != 2*time.Second {
		t.Errorf("DemoInterval() = %v, want 2s", got)
	}
}
