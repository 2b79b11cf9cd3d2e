// Package cli implements the nim-memory command line.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

// Run executes the command line argv, writing results to stdout.
func Run(ctx context.Context, argv []string) *Error {
	if err := New(os.Stdout).Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}
	return nil
}

// New builds the root command. Command output goes to w.
func New(w io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "nim-memory",
		Usage:  "Conversation memory and retrieval service",
		Writer: w,
		Commands: []*cli.Command{
			serveCommand(),
			bridgeCommand(),
			storeCommand(),
			searchCommand(),
			contextCommand(),
			recentCommand(),
			chatCommand(),
		},
	}
}
