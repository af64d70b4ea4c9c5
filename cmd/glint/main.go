package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"glint/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "glint",
	Short: "Sublime-syntax highlighting engine",
	Long:  `glint parses .sublime-syntax grammars and .tmTheme themes to highlight text`,
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(highlightCmd)
	rootCmd.AddCommand(scopesCmd)
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")
	rootCmd.PersistentFlags().String("config", "", "path to glint.toml (default: nearest ancestor)")
	rootCmd.PersistentFlags().Int("max-diagnostics", 100, "maximum number of diagnostics to show")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func useColor(cmd *cobra.Command, out *os.File) bool {
	flag, _ := cmd.Root().PersistentFlags().GetString("color")
	return flag == "on" || (flag == "auto" && isTerminal(out))
}
