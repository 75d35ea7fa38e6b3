package cobra

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/archtest/internal/commands"
	"github.com/NielsdaWheelz/archtest/internal/config"
)

func newDoctorCmd() *cobra.Command {
	var opts commands.DoctorOpts

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites and show resolved configuration",
		Long: `Check prerequisites and show resolved configuration.
Validates config.yaml and the ISA spec, and verifies the toolchain
(riscv<xlen>-unknown-elf-gcc and -nm) and the DUT executable are resolvable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.Doctor(context.Background(), newDeps(cmd), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultFileName, "plugin config file")
	return cmd
}
