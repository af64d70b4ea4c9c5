package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"glint/internal/config"
	"glint/internal/diag"
	"glint/internal/dump"
	"glint/internal/observ"
	"glint/internal/syntax"
	"glint/internal/theme"
)

// session is everything the commands need: the manifest, the loaded
// grammar and theme sets, and a shared timer.
type session struct {
	cfg    *config.Config
	set    *syntax.Set
	themes *theme.Set
	timer  *observ.Timer
}

// loadSession builds the working sets from flags and glint.toml.
func loadSession(cmd *cobra.Command) (*session, error) {
	s := &session{timer: observ.NewTimer()}

	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	var err error
	if cfgPath != "" {
		s.cfg, err = config.Load(cfgPath)
	} else {
		s.cfg, _, err = config.Discover(".")
	}
	if err != nil {
		return nil, err
	}
	if t := s.cfg.MatchTimeout(); t > 0 {
		syntax.MatchTimeout = t
	}

	loading := s.timer.Start("load syntaxes")
	builder := syntax.NewBuilder()
	if err := builder.AddPlainTextSyntax(); err != nil {
		return nil, err
	}
	for _, dir := range s.cfg.SyntaxDirs {
		if df, err := os.Stat(dir); err == nil && df.IsDir() {
			if err := builder.AddFromFolder(dir, !s.cfg.NoNewlines); err != nil {
				return nil, err
			}
			continue
		}
		// a .packdump path loads pre-linked sets directly
		var packed syntax.Set
		if err := dump.ReadFile(dir, &packed); err != nil {
			return nil, fmt.Errorf("syntax dir %q: %w", dir, err)
		}
		s.set = &packed
	}
	loading.Done(len(builder.Definitions()), "files")

	if s.set == nil {
		linking := s.timer.Start("link")
		s.set, err = builder.Build()
		if err != nil {
			return nil, err
		}
		linking.Done(len(s.set.Syntaxes()), "syntaxes")
	}

	themes := s.timer.Start("load themes")
	s.themes = &theme.Set{Themes: map[string]*theme.Theme{}}
	for _, dir := range s.cfg.ThemeDirs {
		ts, err := theme.LoadSetFromFolder(dir)
		if err != nil {
			return nil, err
		}
		for name, t := range ts.Themes {
			s.themes.Themes[name] = t
		}
	}
	themes.Done(len(s.themes.Themes), "themes")
	return s, nil
}

// theme picks the requested theme, the configured default, or a builtin
// fallback scheme.
func (s *session) theme(name string) (*theme.Theme, error) {
	if name == "" {
		name = s.cfg.Theme
	}
	if name == "" {
		if len(s.themes.Themes) == 0 {
			return fallbackTheme(), nil
		}
		name = s.themes.Names()[0]
	}
	t, ok := s.themes.Themes[name]
	if !ok {
		return nil, fmt.Errorf("unknown theme %q (have %v)", name, s.themes.Names())
	}
	return t, nil
}

// fallbackTheme is used when no theme folders are configured: default
// foreground/background only, everything styled alike.
func fallbackTheme() *theme.Theme {
	fg := theme.Color{R: 0xc5, G: 0xc8, B: 0xc6, A: 0xFF}
	bg := theme.Color{R: 0x1d, G: 0x1f, B: 0x21, A: 0xFF}
	return &theme.Theme{
		Name:     "fallback",
		Settings: theme.Settings{Foreground: &fg, Background: &bg},
	}
}

// printDiagnostics renders a bag to stderr, colored when appropriate.
func printDiagnostics(cmd *cobra.Command, bag *diag.Bag) {
	if bag.Len() == 0 {
		return
	}
	quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")
	if quiet {
		return
	}
	bag.Sort()
	bag.Dedup()
	warn := color.New(color.FgYellow)
	fail := color.New(color.FgRed, color.Bold)
	if !useColor(cmd, os.Stderr) {
		warn.DisableColor()
		fail.DisableColor()
	}
	for _, d := range bag.Items() {
		c := warn
		if d.Severity >= diag.SevError {
			c = fail
		}
		_, _ = c.Fprintln(os.Stderr, d.String())
	}
}

// maybePrintTimings prints the timer summary behind --timings.
func maybePrintTimings(cmd *cobra.Command, s *session) {
	if show, _ := cmd.Root().PersistentFlags().GetBool("timings"); show {
		fmt.Fprint(os.Stderr, s.timer.Summary())
	}
}
