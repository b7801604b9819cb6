// Package cli implements the deskhub command-line interface.
package cli

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/core/ports/driving"
	"github.com/deskhub-io/deskhub/internal/logger"
)

// version is overridable at build time via ldflags.
var version = "0.1.0-dev"

// Services injected by the composition root before Execute.
var (
	orchestrator driving.Orchestrator
	reconciler   driving.Reconciler
	queryService driving.Query
)

// Services bundles the driving ports the commands depend on.
type Services struct {
	Orchestrator driving.Orchestrator
	Reconciler   driving.Reconciler
	Query        driving.Query
}

// SetServices injects the service implementations used by the commands.
func SetServices(s Services) {
	orchestrator = s.Orchestrator
	reconciler = s.Reconciler
	queryService = s.Query
}

var verboseFlag bool

var rootCmd = &cobra.Command{
	Use:   "deskhub",
	Short: "Cross-service workflow orchestrator and cache reconciler",
	Long: `Deskhub coordinates composite operations across a document store,
a calendar and a chat platform, and keeps a local cache of external
records converged through polling and push notifications.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if verboseFlag {
			logger.SetVerbose(true)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// printRunSummary renders a workflow outcome, including the partial
// state a failed run left behind.
func printRunSummary(cmd *cobra.Command, s *domain.RunSummary) {
	cmd.Printf("Run %s: %s\n", s.RunID, s.Status)

	steps := make([]string, 0, len(s.CreatedIDs))
	for step := range s.CreatedIDs {
		steps = append(steps, step)
	}
	sort.Strings(steps)
	for _, step := range steps {
		cmd.Printf("  %s: %s\n", step, s.CreatedIDs[step])
	}

	if s.PageURL != "" {
		cmd.Printf("Page: %s\n", s.PageURL)
	}
	for _, msg := range s.Errors {
		cmd.Printf("  error: %s\n", msg)
	}
}
