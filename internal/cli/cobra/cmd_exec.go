package cobra

import (
	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/archtest/internal/commands"
)

func newExecCmd() *cobra.Command {
	var opts commands.ExecOpts

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run the jobs of an existing build descriptor",
		Long: `Run the jobs of an existing build descriptor.
Report and events are written next to the descriptor.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return commands.Exec(ctx, newDeps(cmd), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.DescriptorPath, "descriptor", "d", "", "build descriptor (Jobs.<identity>.yaml) (required)")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 0, "maximum parallel jobs (default: descriptor parallelism)")
	cmd.Flags().DurationVar(&opts.StepTimeout, "step-timeout", 0, "bound each toolchain/DUT invocation (e.g. '10m')")
	return cmd
}
