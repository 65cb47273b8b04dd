// Package main provides the entry point for the agentforge CLI.
package main

import (
	"context"
	"os"

	"github.com/maxxentropy/agentforge-sub001/internal/cli"
)

// Build information set via ldflags at release time:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=$(git rev-parse --short HEAD) -X main.date=$(date -u +%Y-%m-%d)"
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	ctx := context.Background()

	err := cli.Execute(ctx, cli.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	})

	cli.CloseLogFile()

	if err != nil {
		os.Exit(cli.ExitCodeForError(err))
	}
}
