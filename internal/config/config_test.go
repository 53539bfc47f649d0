package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefault_MissingFile(t *testing.T) {
	cfg, err := LoadDefault(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultStack != "default" || cfg.BuildMode != "auto" || cfg.Menubar.Mode != "off" {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	content := `default_stack: dev
build_mode: never
component_dirs:
  happy-cli: /work/happy-cli
menubar:
  mode: swiftbar
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultStack != "dev" || cfg.BuildMode != "never" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ComponentDirs["happy-cli"] != "/work/happy-cli" {
		t.Errorf("component dirs = %v", cfg.ComponentDirs)
	}
	if cfg.Menubar.Mode != "swiftbar" {
		t.Errorf("menubar = %+v", cfg.Menubar)
	}
}

func TestLoad_InvalidBuildMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("build_mode: sometimes\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("invalid build_mode should be rejected")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{DefaultStack: "dev", BuildMode: "always", Menubar: MenubarConfig{Mode: "off"}}
	if err := Save(dir, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadDefault(dir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.DefaultStack != "dev" || loaded.BuildMode != "always" {
		t.Errorf("loaded = %+v", loaded)
	}
}
