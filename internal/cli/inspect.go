package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrlokans/shelfsync/internal/audit"
)

func newInspectCmd() *cobra.Command {
	var saveDir string

	cmd := &cobra.Command{
		Use:   "inspect <item-id>",
		Short: "Print the raw Audiobookshelf payload of a library item",
		Long: `Fetches a library item from Audiobookshelf and prints it. Useful to see
which ISBN, ASIN, title and author the matcher will work with.`,
		Example: `  shelfsync inspect li_8f2c
  shelfsync inspect li_8f2c --save-dir ./snapshots`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if app.Source == nil {
				return errors.New("Audiobookshelf is not configured, set ABS_URL and ABS_TOKEN")
			}

			raw, err := app.Source.GetItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if raw == nil {
				return fmt.Errorf("item %s not found", args[0])
			}

			var out bytes.Buffer
			if err := json.Indent(&out, raw, "", "  "); err != nil {
				return fmt.Errorf("invalid item payload: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.String())

			if saveDir != "" {
				filename, err := audit.NewAuditor(saveDir).SaveItem(args[0], raw)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "saved %s\n", filename)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&saveDir, "save-dir", "", "Also write the payload to this directory")

	return cmd
}
