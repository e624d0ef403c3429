// Package main provides the qwopgym CLI entrypoint.
//
// Usage:
//
//	qwopgym <command> [subcommand] [options]
//
// Exit codes:
//   - 0: success
//   - 1: error
//   - 2: transport failure
//   - 3: configuration error
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/smanolloff/qwop-gym/cli/cmd"
	"github.com/smanolloff/qwop-gym/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "qwopgym",
		Usage:          "QWOP simulation protocol client, relay and tooling",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.ClientCommand(),
			cmd.RelayCommand(),
			cmd.BenchCommand(),
			cmd.RecordCommand(),
			cmd.ReplayCommand(),
			cmd.EpisodesCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

// exitErrHandler preserves exit codes from cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(exitCode(err))
}

// exitCode prints err to stderr and returns the process exit code.
func exitCode(err error) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		// cli.Exit("", N).Error() is "exit status N".
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		return code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}
