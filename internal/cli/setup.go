package cli

import (
	"fmt"

	"github.com/fmueller/voxrelay/internal/relay"
	"github.com/fmueller/voxrelay/internal/whisper"
	"github.com/spf13/cobra"
)

func newSetupCmd(app *appState) *cobra.Command {
	model := whisper.DefaultModel

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Download and verify speech model assets",
		Long:  "Load a named model once so it is cached and checksum-verified before the relay serves its first command.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bar := newPercentBar(app.progressEnabled(), "Downloading model")
			r, err := app.localRelay(bar, nil)
			if err != nil {
				return err
			}

			if err := r.Handle(cmd.Context(), relay.Load(model)); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Model %s ready\n", model)
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", model, "Model name to download (tiny, base, small, medium, large-v3)")
	return cmd
}
