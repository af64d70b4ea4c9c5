package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"glint/internal/diag"
	"glint/internal/highlight"
	"glint/internal/parse"
	"glint/internal/scope"
)

var scopesCmd = &cobra.Command{
	Use:   "scopes [flags] file",
	Short: "Dump the scope stack for every token of a file",
	Long:  `Scopes parses a file and prints each token with the scope stack active over it`,
	Args:  cobra.ExactArgs(1),
	RunE:  runScopes,
}

func init() {
	scopesCmd.Flags().String("format", "pretty", "output format (pretty|json)")
	scopesCmd.Flags().String("syntax", "", "force a syntax by name or extension")
}

type scopeToken struct {
	Line  int    `json:"line"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
	Stack string `json:"scopes"`
}

func runScopes(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	forced, _ := cmd.Flags().GetString("syntax")

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

	state, err := parse.NewState(syn)
	if err != nil {
		return err
	}
	state.IgnoreErrors = s.cfg.IgnoreErrors
	state.Reporter = bag

	var tokens []scopeToken
	stack := scope.NewStack()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<22)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if !s.cfg.NoNewlines {
			line += "\n"
		}
		ops, err := state.ParseLine(line, s.set)
		if err != nil {
			return err
		}
		it := highlight.NewScopeRangeIterator(ops, line)
		for {
			r, ok := it.Next()
			if !ok {
				break
			}
			if err := stack.Apply(r.Op); err != nil {
				return err
			}
			if r.Start == r.End {
				continue
			}
			tokens = append(tokens, scopeToken{
				Line:  lineno,
				Start: r.Start,
				End:   r.End,
				Text:  it.Text(r),
				Stack: stack.String(),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	printDiagnostics(cmd, bag)
	defer maybePrintTimings(cmd, s)

	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tokens)
	case "pretty":
		return printScopesPretty(tokens)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// printScopesPretty aligns the token column so the scope stacks line up.
func printScopesPretty(tokens []scopeToken) error {
	width := 0
	for _, tok := range tokens {
		if w := runewidth.StringWidth(fmt.Sprintf("%q", tok.Text)); w > width && w <= 32 {
			width = w
		}
	}
	out := bufio.NewWriter(os.Stdout)
	for _, tok := range tokens {
		quoted := fmt.Sprintf("%q", tok.Text)
		pad := width - runewidth.StringWidth(quoted)
		if pad < 0 {
			pad = 0
		}
		fmt.Fprintf(out, "%4d:%-4d %s%*s  %s\n", tok.Line, tok.Start, quoted, pad, "", tok.Stack)
	}
	return out.Flush()
}
