package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsUsableStandalone(t *testing.T) {
	d := Default()
	if d.Listen == "" || d.BufferPool.Capacity <= 0 {
		t.Fatalf("default config has zero values: %+v", d)
	}
}

func TestLoadFillsMissingFieldsFromDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crusty.yaml")
	yamlDoc := "listen: \"0.0.0.0:9000\"\nbuffer_pool:\n  capacity: 512\n"
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Fatalf("expected overridden listen address, got %q", cfg.Listen)
	}
	if cfg.BufferPool.Capacity != 512 {
		t.Fatalf("expected overridden buffer pool capacity, got %d", cfg.BufferPool.Capacity)
	}
	if cfg.Maintenance.StatsFile == "" {
		t.Fatal("expected stats file to be filled from defaults")
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/crusty.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
