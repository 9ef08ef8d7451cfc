package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rflorenc/profilemig/internal/liveness"
	"github.com/rflorenc/profilemig/internal/migration"
	"github.com/rflorenc/profilemig/internal/ui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath    string
	debug         bool
	noInteraction bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorMsg("%v", err))
	}
	return exitCode(err)
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "profilemig",
		Short:         "Migrate Windows user profiles between machines through Configuration Manager",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.ConfigureInteraction(g.noInteraction)
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "profilemig.yaml", "Path to the YAML or TOML config file")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&g.noInteraction, "no-interaction", false, "Never prompt; fail when input is missing")

	root.AddCommand(migrateCmd(g))
	root.AddCommand(historyCmd(g))
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "profilemig %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// exitError carries an explicit process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func precondition(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: 1, err: err}
}

func jobFailure(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: 2, err: err}
}

// exitCode maps an error to the process exit status: 0 on success, 1 for a
// failed pre-condition, 2 when a job could not be completed.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, migration.ErrHostNotFound) {
		return 1
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	switch {
	case errors.Is(err, migration.ErrRetriesExhausted),
		errors.Is(err, migration.ErrStatusMissing),
		errors.Is(err, liveness.ErrUnreachable),
		errors.Is(err, context.DeadlineExceeded):
		return 2
	}
	return 1
}
