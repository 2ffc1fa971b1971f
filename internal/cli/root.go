// Package cli defines the shelfsync command line.
package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mrlokans/shelfsync/internal/config"
	"github.com/mrlokans/shelfsync/internal/entrypoint"
	"github.com/mrlokans/shelfsync/internal/logging"
)

// NewRootCmd builds the root command. Running it without a subcommand serves.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shelfsync",
		Short: "Sync audiobook listening progress to book tracking services",
		Long: `Shelfsync reads listening progress from Audiobookshelf and pushes it to
Hardcover and StoryGraph on a schedule.

Configuration is read from the environment and from a .env file if present.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, version)
		},
	}

	cmd.AddCommand(newServeCmd(version))
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newTestConnectionsCmd())
	cmd.AddCommand(newInspectCmd())

	return cmd
}

// loadApp reads the configuration and wires the application.
func loadApp() (*entrypoint.App, error) {
	cfg := config.NewConfig()

	logger := logging.New(os.Stderr, cfg.Logging.Level)
	logging.SetDefault(logger)

	return entrypoint.NewApp(cfg, logger)
}
