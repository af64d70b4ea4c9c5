package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known syntaxes and themes",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func runList(cmd *cobra.Command, _ []string) error {
	s, err := loadSession(cmd)
	if err != nil {
		return err
	}
	fmt.Println("syntaxes:")
	for _, syn := range s.set.Syntaxes() {
		if syn.Hidden {
			continue
		}
		exts := strings.Join(syn.FileExtensions, ", ")
		fmt.Printf("  %-30s %-24s %s\n", syn.Name, syn.Scope.String(), exts)
	}
	fmt.Println("themes:")
	for _, name := range s.themes.Names() {
		fmt.Printf("  %s\n", name)
	}
	maybePrintTimings(cmd, s)
	return nil
}
