package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show synchronization state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if reconciler == nil {
		return errors.New("reconciler not configured")
	}

	status, err := reconciler.SyncStatus(cmd.Context())
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}

	if status.LastReconcileAt.IsZero() {
		cmd.Println("No full reconciliation has completed yet.")
	} else {
		cmd.Printf("Last full reconciliation: %s\n", status.LastReconcileAt.Format("2006-01-02 15:04:05 MST"))
	}

	if len(status.Cursors) > 0 {
		cmd.Println()
		cmd.Println("Cursors:")
		services := make([]string, 0, len(status.Cursors))
		for id := range status.Cursors {
			services = append(services, id)
		}
		sort.Strings(services)
		for _, id := range services {
			cursor := status.Cursors[id]
			position := cursor.Cursor
			if position == "" {
				position = "(beginning)"
			}
			cmd.Printf("  %-10s %s (advanced %s)\n", id, position, cursor.LastSync.Format("2006-01-02 15:04:05"))
		}
	}

	if len(status.PendingErrors) > 0 {
		cmd.Println()
		cmd.Println("Pending errors:")
		for _, msg := range status.PendingErrors {
			cmd.Printf("  %s\n", msg)
		}
	}
	return nil
}
