package cobra

import (
	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/archtest/internal/commands"
	"github.com/NielsdaWheelz/archtest/internal/config"
)

// addBuildFlags registers the flags shared by run and build.
func addBuildFlags(cmd *cobra.Command, opts *commands.BuildOpts) {
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultFileName, "plugin config file")
	cmd.Flags().StringVarP(&opts.TestListPath, "testlist", "t", "", "test list produced by suite discovery (required)")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 0, "maximum parallel jobs (default: config jobs)")
	cmd.Flags().BoolVar(&opts.BuildOnly, "build-only", false, "compile and resolve signatures without running the DUT")
	cmd.Flags().DurationVar(&opts.StepTimeout, "step-timeout", 0, "bound each toolchain/DUT invocation (e.g. '10m')")
}

func newRunCmd() *cobra.Command {
	var opts commands.RunOpts

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build every test job and run it on the DUT",
		Long: `Build every test job and run it on the DUT.

For each test in the list: compile for the DUT's ISA, resolve the signature
window from the compiled symbols, then run the DUT to write
<work_dir>/<identity>.signature. Jobs run in parallel (--jobs) and one
failing test never stops the others.

Writes:
  <work_dir>/Jobs.<identity>.yaml   build descriptor (re-run with 'archtest exec')
  <work_dir>/report.json            per-test results
  <work_dir>/events.jsonl           run and job events
  <test work_dir>/<identity>.log    per-test toolchain and DUT output

Exit status is 1 if any test failed. With target_run: 0 or --build-only the
DUT is not run and "build-only: no validation performed" is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return commands.Run(ctx, newDeps(cmd), opts)
		},
	}

	addBuildFlags(cmd, &opts.BuildOpts)
	return cmd
}
