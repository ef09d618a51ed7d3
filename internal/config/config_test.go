package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr: %q", cfg.Server.Addr)
	}
	if cfg.Store.ContextWindow != 72*time.Hour {
		t.Errorf("context window: %v", cfg.Store.ContextWindow)
	}
	if cfg.Store.Retention != 7*24*time.Hour {
		t.Errorf("retention: %v", cfg.Store.Retention)
	}
	if cfg.Scoring.Weights.RuleHit != 0.35 || cfg.Scoring.Thresholds.AutoAccept != 0.90 {
		t.Errorf("scoring defaults: %+v", cfg.Scoring)
	}
	if cfg.Guards.RenalCreatinineMax != 2.0 {
		t.Errorf("renal threshold: %v", cfg.Guards.RenalCreatinineMax)
	}
	if cfg.Extractor.Provider != "rules" {
		t.Errorf("extractor provider: %q", cfg.Extractor.Provider)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  addr: ":9999"
store:
  db_path: /tmp/custom.db
scoring:
  thresholds:
    auto_accept: 0.95
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("addr: %q", cfg.Server.Addr)
	}
	if cfg.Store.DBPath != "/tmp/custom.db" {
		t.Errorf("db path: %q", cfg.Store.DBPath)
	}
	if cfg.Scoring.Thresholds.AutoAccept != 0.95 {
		t.Errorf("override not applied: %v", cfg.Scoring.Thresholds.AutoAccept)
	}
	// Untouched keys keep their defaults.
	if cfg.Scoring.Thresholds.SoftConfirm != 0.70 {
		t.Errorf("default lost: %v", cfg.Scoring.Thresholds.SoftConfirm)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level: %q", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
