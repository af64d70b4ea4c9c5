package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"glint/internal/diag"
	"glint/internal/highlight"
	"glint/internal/render"
	"glint/internal/scope"
)

var highlightCmd = &cobra.Command{
	Use:   "highlight [flags] file",
	Short: "Highlight a file to the terminal or HTML",
	Args:  cobra.ExactArgs(1),
	RunE:  runHighlight,
}

func init() {
	highlightCmd.Flags().String("format", "ansi", "output format (ansi|html|classed)")
	highlightCmd.Flags().String("theme", "", "theme name (default from glint.toml)")
	highlightCmd.Flags().String("syntax", "", "force a syntax by name or extension")
}

func runHighlight(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	themeName, _ := cmd.Flags().GetString("theme")
	forced, _ := cmd.Flags().GetString("syntax")

	t, err := s.theme(themeName)
	if err != nil {
		return err
	}

	path := args[0]
	syn := s.set.PlainText()
	if forced != "" {
		if found := s.set.FindSyntaxByToken(forced); found != nil {
			syn = found
		} else {
			return fmt.Errorf("unknown syntax %q", forced)
		}
	} else if found, err := s.set.FindSyntaxForFile(path); err == nil && found != nil {
		syn = found
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	maxDiag, _ := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	bag := diag.NewBag(maxDiag)

	lh, err := highlight.NewLineHighlighter(syn, t)
	if err != nil {
		return err
	}
	lh.SetIgnoreErrors(s.cfg.IgnoreErrors)
	lh.ParseState().Reporter = bag

	highlighting := s.timer.Start("highlight")
	out := bufio.NewWriter(os.Stdout)
	classStack := scope.NewStack()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<22)
	lines := 0
	for scanner.Scan() {
		line := scanner.Text()
		if !s.cfg.NoNewlines {
			line += "\n"
		}
		lines++
		switch format {
		case "ansi":
			spans, err := lh.HighlightLine(line, s.set)
			if err != nil {
				return err
			}
			fmt.Fprint(out, render.ANSI(spans, true))
		case "html":
			spans, err := lh.HighlightLine(line, s.set)
			if err != nil {
				return err
			}
			fmt.Fprint(out, render.HTML(spans))
		case "classed":
			ops, err := lh.ParseState().ParseLine(line, s.set)
			if err != nil {
				return err
			}
			html, err := render.ClassedHTML(ops, line, classStack)
			if err != nil {
				return err
			}
			fmt.Fprint(out, html)
		default:
			return fmt.Errorf("unknown format: %s", format)
		}
		if s.cfg.NoNewlines {
			fmt.Fprintln(out)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if format == "ansi" {
		fmt.Fprint(out, render.Reset)
	}
	if err := out.Flush(); err != nil {
		return err
	}
	highlighting.Done(lines, "lines")

	printDiagnostics(cmd, bag)
	maybePrintTimings(cmd, s)
	return nil
}
