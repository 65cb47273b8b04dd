// Package cli provides the command-line interface for agentforge.
package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// versionInfo is the JSON shape of the version command output.
type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// AddVersionCommand adds the version command to the root command.
func AddVersionCommand(root *cobra.Command, info BuildInfo) {
	root.AddCommand(newVersionCmd(info))
}

// newVersionCmd creates the version command.
func newVersionCmd(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the agentforge version, git commit, build date, and platform.

Examples:
  agentforge version
  agentforge version --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVersion(cmd, os.Stdout, info)
		},
	}
}

// runVersion executes the version command.
func runVersion(cmd *cobra.Command, w io.Writer, info BuildInfo) error {
	output := cmd.Flag("output").Value.String()

	vi := versionInfo{
		Version:   info.Version,
		Commit:    info.Commit,
		Date:      info.Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if vi.Version == "" {
		vi.Version = "dev"
	}
	if vi.Commit == "" {
		vi.Commit = "none"
	}
	if vi.Date == "" {
		vi.Date = "unknown"
	}

	if output == OutputJSON {
		return encodeJSONIndented(w, vi)
	}

	_, _ = fmt.Fprintf(w, "agentforge %s\n", vi.Version)
	_, _ = fmt.Fprintf(w, "  commit:  %s\n", vi.Commit)
	_, _ = fmt.Fprintf(w, "  built:   %s\n", vi.Date)
	_, _ = fmt.Fprintf(w, "  go:      %s\n", vi.GoVersion)
	_, _ = fmt.Fprintf(w, "  platform: %s\n", vi.Platform)
	return nil
}
