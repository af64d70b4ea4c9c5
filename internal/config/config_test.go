package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"glint/internal/config"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAndResolve(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "glint.toml"), `
syntax_dirs = ["syntaxes", "/abs/syntaxes"]
theme_dirs = ["themes"]
theme = "dark"
ignore_errors = true
match_timeout_ms = 250
`)
	cfg, err := config.Load(filepath.Join(dir, "glint.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Theme != "dark" || !cfg.IgnoreErrors {
		t.Errorf("fields lost: %+v", cfg)
	}
	if cfg.MatchTimeout() != 250*time.Millisecond {
		t.Errorf("MatchTimeout = %v", cfg.MatchTimeout())
	}
	if cfg.SyntaxDirs[0] != filepath.Join(dir, "syntaxes") {
		t.Errorf("relative dir not resolved: %q", cfg.SyntaxDirs[0])
	}
	if cfg.SyntaxDirs[1] != "/abs/syntaxes" {
		t.Errorf("absolute dir rewritten: %q", cfg.SyntaxDirs[1])
	}
}

func TestUnknownKeyRejected(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "glint.toml"), "them = \"oops\"\n")
	if _, err := config.Load(filepath.Join(dir, "glint.toml")); err == nil {
		t.Fatalf("unknown key should fail")
	}
}

func TestDiscoverWalksUp(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "glint.toml"), "theme = \"found\"\n")
	nested := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg, ok, err := config.Discover(nested)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || cfg.Theme != "found" {
		t.Errorf("Discover = %+v, ok=%v", cfg, ok)
	}
}

func TestDiscoverWithoutManifest(t *testing.T) {
	cfg, ok, err := config.Discover(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if ok || cfg == nil {
		t.Errorf("expected empty config, got ok=%v", ok)
	}
}
