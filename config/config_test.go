package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Detector.PollIntervalSec != 30 {
		t.Errorf("Detector.PollIntervalSec = %d, want 30", cfg.Detector.PollIntervalSec)
	}
	if cfg.Policy.QuantityDecimals != 4 {
		t.Errorf("Policy.QuantityDecimals = %d, want 4", cfg.Policy.QuantityDecimals)
	}
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9090
engine:
  max_workers: 16
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Engine.MaxWorkers != 16 {
		t.Errorf("Engine.MaxWorkers = %d, want 16", cfg.Engine.MaxWorkers)
	}
	// Unset fields fall back to defaults.
	if cfg.Engine.ProcessIntervalSec != 30 {
		t.Errorf("Engine.ProcessIntervalSec = %d, want 30", cfg.Engine.ProcessIntervalSec)
	}
	if cfg.Monitor.ScanIntervalSec != 30 {
		t.Errorf("Monitor.ScanIntervalSec = %d, want 30", cfg.Monitor.ScanIntervalSec)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected error for malformed yaml")
	}
}
