// Package cobra provides the Cobra-based CLI command tree for archtest.
package cobra

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/archtest/internal/commands"
	"github.com/NielsdaWheelz/archtest/internal/config"
	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/exec"
	"github.com/NielsdaWheelz/archtest/internal/fs"
	"github.com/NielsdaWheelz/archtest/internal/tty"
	"github.com/NielsdaWheelz/archtest/internal/version"
)

// GlobalOpts holds global options parsed before subcommand dispatch.
type GlobalOpts struct {
	Verbose   bool
	LogFormat string
	Progress  bool
}

// globalOpts stores the parsed global options for access by subcommands.
var globalOpts GlobalOpts

// GetGlobalOpts returns the parsed global options.
func GetGlobalOpts() GlobalOpts {
	return globalOpts
}

// NewRootCmd creates the root cobra command for archtest.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "archtest",
		Short: "Architecture-compliance test orchestrator for RISC-V DUTs",
		Long: `archtest - architecture-compliance test orchestrator for RISC-V DUTs

archtest compiles every test of an architecture test suite for the DUT's
ISA, locates each test's signature region, runs the test on the DUT to
capture its signature, and reports per-test results. Tests run in parallel;
one failing test never stops the others.`,
		Version:       version.FullVersion(),
		SilenceErrors: true, // We handle error printing in main.go
		SilenceUsage:  true, // We handle usage printing manually
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch globalOpts.LogFormat {
			case "text", "json":
				return nil
			}
			return errors.New(errors.EUsage, "--log-format must be text or json")
		},
	}

	rootCmd.PersistentFlags().BoolVar(&globalOpts.Verbose, "verbose", false, "show detailed error context and debug logs")
	rootCmd.PersistentFlags().StringVar(&globalOpts.LogFormat, "log-format", "text", "log format on stderr: text or json")
	rootCmd.PersistentFlags().BoolVar(&globalOpts.Progress, "progress", false, "print one line per finished job (default: only on a terminal)")

	// Disable Cobra's default completion command (we register our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		newRunCmd(),
		newBuildCmd(),
		newExecCmd(),
		newDoctorCmd(),
		newCompletionCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the root command with the given output writers.
// This is the main entry point from main.go.
func Execute(stdout, stderr io.Writer) error {
	rootCmd := NewRootCmd()
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.Execute()
}

// newLogger builds the stderr logger for the global flags.
func newLogger(w io.Writer, opts GlobalOpts) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if opts.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// newDeps wires the production dependencies for a command.
func newDeps(cmd *cobra.Command) commands.Deps {
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	deps := commands.Deps{
		CR:     exec.NewRealRunner(),
		FS:     fs.NewRealFS(),
		Env:    config.OSEnv{},
		Logger: newLogger(stderr, globalOpts),
		Stdout: stdout,
		Stderr: stderr,
	}
	if globalOpts.Progress || tty.IsTerminalWriter(stderr) {
		deps.Progress = stderr
	}
	return deps
}

// signalContext returns a context cancelled on the first SIGINT. Running
// jobs are then terminated as process groups.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}
