package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

func newTestConnectionsCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "test-connections",
		Short: "Check that Audiobookshelf and every destination are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			failed := printConnections(cmd.OutOrStdout(), app.Engine.TestConnections(ctx))
			if failed > 0 {
				return fmt.Errorf("%d connection(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout for all checks")

	return cmd
}

// printConnections writes one line per connection and returns the number that failed.
func printConnections(w io.Writer, results map[string]error) int {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := 0
	for _, name := range names {
		if err := results[name]; err != nil {
			failed++
			fmt.Fprintf(w, "✗ %-12s %v\n", name, err)
			continue
		}
		fmt.Fprintf(w, "✓ %-12s ok\n", name)
	}
	return failed
}
