// Package config loads glint.toml, the CLI's manifest for syntax and
// theme locations and session defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the decoded glint.toml.
type Config struct {
	// SyntaxDirs are folders scanned for .sublime-syntax files.
	SyntaxDirs []string `toml:"syntax_dirs"`
	// ThemeDirs are folders scanned for .tmTheme files.
	ThemeDirs []string `toml:"theme_dirs"`
	// Theme is the default theme name (file stem).
	Theme string `toml:"theme"`
	// IgnoreErrors disables failing patterns instead of failing lines.
	IgnoreErrors bool `toml:"ignore_errors"`
	// MatchTimeoutMS bounds regex backtracking per search; 0 is off.
	MatchTimeoutMS int `toml:"match_timeout_ms"`
	// NoNewlines is set when input lines are fed without trailing
	// newlines, switching the grammar loader's regex rewriting on.
	NoNewlines bool `toml:"no_newlines"`
}

// MatchTimeout returns the configured timeout as a duration.
func (c *Config) MatchTimeout() time.Duration {
	return time.Duration(c.MatchTimeoutMS) * time.Millisecond
}

// FindGlintToml walks up from startDir to locate glint.toml.
func FindGlintToml(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, "glint.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load decodes one manifest file. Unknown keys are an error so typos do
// not silently disable settings.
func Load(path string) (*Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	// relative dirs are relative to the manifest
	base := filepath.Dir(path)
	for i, d := range cfg.SyntaxDirs {
		if !filepath.IsAbs(d) {
			cfg.SyntaxDirs[i] = filepath.Join(base, d)
		}
	}
	for i, d := range cfg.ThemeDirs {
		if !filepath.IsAbs(d) {
			cfg.ThemeDirs[i] = filepath.Join(base, d)
		}
	}
	return &cfg, nil
}

// Discover finds and loads the nearest manifest above startDir; when
// there is none, it returns an empty config and ok=false.
func Discover(startDir string) (*Config, bool, error) {
	path, ok, err := FindGlintToml(startDir)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return &Config{}, false, nil
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}
