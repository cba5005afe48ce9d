package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWritesAndReadsDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg, gotPath, err := Load(nil, path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if gotPath != path {
		t.Fatalf("got path %q, want %q", gotPath, path)
	}
	if cfg.Server.Port != Default().Server.Port {
		t.Fatalf("got port %d, want default %d", cfg.Server.Port, Default().Server.Port)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
}

func TestLoadHonorsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9001\n  name: custom\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, _, err := Load(nil, path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9001 || cfg.Server.Name != "custom" {
		t.Fatalf("got %+v, want port=9001 name=custom", cfg.Server)
	}
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("RORELAY_SERVER_OWNER", "envowner")

	cfg, _, err := Load(nil, path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Owner != "envowner" {
		t.Fatalf("got owner %q, want envowner", cfg.Server.Owner)
	}
}
