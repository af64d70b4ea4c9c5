package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"glint/internal/dump"
	"glint/internal/syntax"
)

var packCmd = &cobra.Command{
	Use:   "pack [flags] syntax-dir out.packdump",
	Short: "Compile a folder of syntaxes into a binary dump",
	Long:  `Pack loads and links .sublime-syntax files, then writes the linked set as a versioned binary dump for fast loading`,
	Args:  cobra.ExactArgs(2),
	RunE:  runPack,
}

func init() {
	packCmd.Flags().Bool("no-newlines", false, "prepare regexes for lines without trailing newlines")
	packCmd.Flags().Bool("info", false, "print the contents of an existing dump instead of writing one")
}

func runPack(cmd *cobra.Command, args []string) error {
	if info, _ := cmd.Flags().GetBool("info"); info {
		var set syntax.Set
		if err := dump.ReadFile(args[0], &set); err != nil {
			return err
		}
		for _, syn := range set.Syntaxes() {
			fmt.Printf("%-30s %-20s %v\n", syn.Name, syn.Scope.String(), syn.FileExtensions)
		}
		return nil
	}

	noNewlines, _ := cmd.Flags().GetBool("no-newlines")

	builder := syntax.NewBuilder()
	if err := builder.AddPlainTextSyntax(); err != nil {
		return err
	}
	if err := builder.AddFromFolder(args[0], !noNewlines); err != nil {
		return err
	}
	set, err := builder.Build()
	if err != nil {
		return err
	}
	if err := dump.WriteFile(args[1], set); err != nil {
		return err
	}
	if quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet"); !quiet {
		fmt.Fprintf(os.Stderr, "packed %d syntaxes into %s\n", len(set.Syntaxes()), args[1])
	}
	return nil
}
