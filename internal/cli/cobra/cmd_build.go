package cobra

import (
	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/archtest/internal/commands"
)

func newBuildCmd() *cobra.Command {
	var opts commands.BuildOpts

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Write the build descriptor without running any job",
		Long: `Write the build descriptor without running any job.
Resolves the ISA, renders the compile, symbol and DUT steps of every test and
writes them to <work_dir>/Jobs.<identity>.yaml, replacing a stale one.
Run the descriptor later with 'archtest exec'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			_, err := commands.Build(ctx, newDeps(cmd), opts)
			return err
		},
	}

	addBuildFlags(cmd, &opts)
	return cmd
}
