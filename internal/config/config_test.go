package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Reshape.NumDataRows != nil || len(cfg.Datasets) != 0 {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestLoadConfigValues(t *testing.T) {
	path := writeConfig(t, `
[reshape]
rows = 24
keep-going = true

[[dataset]]
name = "attempt_times"
aggregations = ["mean"]

[[dataset]]
name = "errors"
aggregations = ["sum", "count"]
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Reshape.NumDataRows == nil || *cfg.Reshape.NumDataRows != 24 {
		t.Fatalf("unexpected rows: %v", cfg.Reshape.NumDataRows)
	}
	if cfg.Reshape.KeepGoing == nil || !*cfg.Reshape.KeepGoing {
		t.Fatalf("expected keep-going")
	}
	if cfg.Reshape.DataStartRow != nil {
		t.Fatalf("expected unset start-row")
	}
	if len(cfg.Datasets) != 2 || cfg.Datasets[1].Aggregations[1] != "count" {
		t.Fatalf("unexpected datasets: %+v", cfg.Datasets)
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "[reshape]\nrowz = 3\n")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "rowz") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadConfigRejectsUnnamedDataset(t *testing.T) {
	path := writeConfig(t, "[[dataset]]\naggregations = [\"mean\"]\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for unnamed dataset")
	}
}

func TestDefaultPathsUseXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := DefaultConfigPath(); got != filepath.Join("/cfg", "trialshape", "config.toml") {
		t.Fatalf("unexpected config path: %s", got)
	}
	if got := DefaultDBPath(); got != filepath.Join("/data", "trialshape", "history.db") {
		t.Fatalf("unexpected db path: %s", got)
	}
}
