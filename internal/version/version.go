// Package version identifies glint builds for the CLI.
package version

import (
	"strings"

	"github.com/fatih/color"
)

// Build metadata; overridden at build time via -ldflags.
var (
	// Version is the semantic version of the engine and CLI.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

// segmentColors styles the dotted version segments in turn.
var segmentColors = []*color.Color{
	color.New(color.FgYellow, color.Bold),
	color.New(color.FgGreen, color.Bold),
	color.New(color.FgBlue, color.Bold),
}

// Pretty renders the version with each dotted segment colored. Any
// pre-release suffix stays attached to its segment. When color is
// disabled (no terminal, --color off) the output is just Version.
func Pretty() string {
	parts := strings.SplitN(Version, ".", len(segmentColors))
	for i, part := range parts {
		parts[i] = segmentColors[i%len(segmentColors)].Sprint(part)
	}
	return strings.Join(parts, ".")
}
