package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrlokans/shelfsync/internal/entrypoint"
)

func newServeCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the sync scheduler",
		Long: `Starts the reporting API, runs a sync on startup and then on the
SYNC_SCHEDULE cron schedule until interrupted.`,
		Example: `  # Serve with hourly syncs
  shelfsync serve

  # Sync every 15 minutes
  SYNC_SCHEDULE="*/15 * * * *" shelfsync serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, version)
		},
	}
}

func runServe(cmd *cobra.Command, version string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := entrypoint.ValidateConfig(app.Config); err != nil {
		return err
	}
	if !app.Config.IsConfigured() {
		app.Logger.Warn("shelfsync is not fully configured, cycles will fail until a source and a destination are set")
	}

	return entrypoint.Serve(cmd.Context(), app, version)
}
