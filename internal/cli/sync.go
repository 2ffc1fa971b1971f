package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrlokans/shelfsync/internal/entities"
)

func newSyncCmd() *cobra.Command {
	var rematch bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a single sync cycle and exit",
		Example: `  # Sync once using cached matches
  shelfsync sync

  # Ignore cached matches and look every book up again
  shelfsync sync --rematch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			var run *entities.SyncRun
			if rematch {
				run, err = app.Engine.Rematch(cmd.Context())
			} else {
				run, err = app.Engine.RunCycle(cmd.Context())
			}
			if err != nil {
				return err
			}

			printRun(cmd.OutOrStdout(), run)
			if run.Status == entities.SyncStatusFailed {
				return fmt.Errorf("sync failed: %s", run.ErrorMessage)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&rematch, "rematch", false, "Bypass the match cache")

	return cmd
}

func printRun(w io.Writer, run *entities.SyncRun) {
	fmt.Fprintf(w, "Run %s: %s\n", run.RunID, run.Status)
	fmt.Fprintf(w, "  processed: %d\n", run.BooksProcessed)
	fmt.Fprintf(w, "  synced:    %d\n", run.BooksSynced)
	fmt.Fprintf(w, "  skipped:   %d\n", run.BooksSkipped)
	fmt.Fprintf(w, "  failed:    %d\n", run.BooksFailed)
	if d := run.Duration(); d > 0 {
		fmt.Fprintf(w, "  duration:  %s\n", d.Round(time.Millisecond))
	}
	if run.ErrorMessage != "" {
		fmt.Fprintf(w, "  error:     %s\n", run.ErrorMessage)
	}
}
