package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ctxdump/internal/config"
	"ctxdump/internal/reportfile"
)

// Exit codes.
const (
	exitOK       = 0
	exitError    = 1
	exitConfig   = 3
	exitNotFound = 4
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Environ(), ".", os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code. It is separated
// from main to enable testing.
func run(ctx context.Context, args, environ []string, dir string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(environ, dir)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitConfig
	}

	root := newRootCmd(cfg)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		if errors.Is(err, reportfile.ErrNotFound) {
			return exitNotFound
		}
		return exitError
	}
	return exitOK
}

func newRootCmd(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "ctxdump",
		Short:         "Inspect context dump reports written by failing tests",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newListCmd(cfg),
		newShowCmd(cfg),
		newRerunCmd(cfg),
		newTailCmd(cfg),
		newPruneCmd(cfg),
	)
	return root
}
