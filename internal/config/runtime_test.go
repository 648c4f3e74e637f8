package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRuntime_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.yml")
	raw := []byte(`schema_version: v1
sevenbridges:
  endpoint: https://api.sb.example/v2
  poll_interval: 2s
temporal:
  host_port: temporal:7233
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write runtime: %v", err)
	}
	t.Setenv("MANIFESTFLOW__TEMPORAL__TASK_QUEUE", "imports")
	t.Setenv("MANIFESTFLOW__SYNAPSE__HTTP__MAX_RETRIES", "7")

	cfg, err := LoadRuntime(path)
	if err != nil {
		t.Fatalf("LoadRuntime: %v", err)
	}
	if cfg.SevenBridges.Endpoint != "https://api.sb.example/v2" || cfg.SevenBridges.PollInterval != 2*time.Second {
		t.Fatalf("file values lost: %+v", cfg.SevenBridges)
	}
	if cfg.Temporal.HostPort != "temporal:7233" || cfg.Temporal.TaskQueue != "imports" {
		t.Fatalf("unexpected temporal section %+v", cfg.Temporal)
	}
	if cfg.Synapse.HTTP.MaxRetries != 7 {
		t.Fatalf("env override ignored: %+v", cfg.Synapse.HTTP)
	}
	if cfg.Synapse.TokenEnv != "SYNAPSE_AUTH_TOKEN" || cfg.Viz.Filename != "flow" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadRuntime_ExplicitZeroRetries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.yml")
	raw := []byte(`sevenbridges:
  http:
    max_retries: 0
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write runtime: %v", err)
	}

	cfg, err := LoadRuntime(path)
	if err != nil {
		t.Fatalf("LoadRuntime: %v", err)
	}
	if cfg.SevenBridges.HTTP.MaxRetries != 0 {
		t.Fatalf("explicit max_retries 0 replaced by %d", cfg.SevenBridges.HTTP.MaxRetries)
	}
	if cfg.Synapse.HTTP.MaxRetries != 3 {
		t.Fatalf("unset max_retries = %d, want default 3", cfg.Synapse.HTTP.MaxRetries)
	}
}

func TestLoadRuntime_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadRuntime(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("LoadRuntime: %v", err)
	}
	if cfg != DefaultRuntime() {
		t.Fatalf("want defaults, got %+v", cfg)
	}
}

func TestLoadRuntime_InvalidSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.yml")
	if err := os.WriteFile(path, []byte("schema_version: v2\n"), 0o644); err != nil {
		t.Fatalf("write runtime: %v", err)
	}
	if _, err := LoadRuntime(path); err == nil {
		t.Fatal("expected error for invalid schema_version")
	}
}
