package cli

import (
	"fmt"

	"github.com/fmueller/voxrelay/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var detailed bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if detailed {
				fmt.Fprintln(cmd.OutOrStdout(), version.Describe())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "voxrelay v%s\n", version.Resolve())
			return nil
		},
	}

	cmd.Flags().BoolVar(&detailed, "long", false, "Include commit and build date")
	return cmd
}
