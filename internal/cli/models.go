package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/fmueller/voxrelay/internal/whisper"
	"github.com/spf13/cobra"
)

func newModelsCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List known models and whether they are cached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			modelDir, err := app.modelStorageDir()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tSTATUS\tPATH")
			for _, name := range whisper.ModelNames() {
				resolved, err := whisper.ResolveModel(name, modelDir)
				if err != nil {
					return err
				}
				status := "cached"
				if resolved.NeedsDownload {
					status = "missing"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", resolved.Name, status, resolved.Path)
			}
			return w.Flush()
		},
	}
}
