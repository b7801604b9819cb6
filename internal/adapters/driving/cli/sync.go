package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/deskhub-io/deskhub/internal/core/domain"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one full reconciliation cycle",
	Long: `Polls every configured service for changes, applies them to the
local cache, and diffs the live record sets to detect deletions.
A service whose fetch fails is skipped; its cursor does not advance
and the next cycle retries from the same position.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	if reconciler == nil {
		return errors.New("reconciler not configured")
	}

	cmd.Println("Reconciling...")
	summary, err := reconciler.ReconcileFull(cmd.Context())
	if errors.Is(err, domain.ErrReconcileInProgress) {
		cmd.Println("A reconciliation cycle is already running.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	cmd.Printf("Applied %d, discarded %d, deleted %d, pending deletion %d (took %s)\n",
		summary.Applied, summary.Discarded, summary.Deleted, summary.Missing,
		summary.FinishedAt.Sub(summary.StartedAt).Round(10*time.Millisecond))
	if len(summary.Skipped) > 0 {
		cmd.Printf("Skipped services: %s\n", strings.Join(summary.Skipped, ", "))
	}
	return nil
}
