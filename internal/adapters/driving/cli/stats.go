package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/deskhub-io/deskhub/internal/core/domain"
)

var (
	statsBucket string
	statsKind   string
	statsOwner  string
	statsDays   int
	statsJSON   bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate cached pages over time",
	Long: `Folds the local cache into time buckets and kind/owner counts.
Weeks start on Monday; the look-back window is capped at 90 days.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsBucket, "bucket", "week", "grouping granularity (day, week, month)")
	statsCmd.Flags().StringVar(&statsKind, "kind", "", "restrict to one kind (task, meeting, document)")
	statsCmd.Flags().StringVar(&statsOwner, "owner", "", "restrict to one owner")
	statsCmd.Flags().IntVar(&statsDays, "days", 0, "look-back window in days (default and cap 90)")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	result, err := queryService.Aggregate(cmd.Context(), domain.AggregateQuery{
		Bucket:    domain.TimeBucket(statsBucket),
		Kind:      domain.RecordKind(statsKind),
		Owner:     statsOwner,
		SinceDays: statsDays,
	})
	if err != nil {
		return fmt.Errorf("aggregation failed: %w", err)
	}

	if statsJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Total: %d pages per %s\n", result.Total, result.Bucket)
	cmd.Println()

	keys := make([]string, 0, len(result.Buckets))
	for key := range result.Buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		cmd.Printf("  %s  %d\n", key, result.Buckets[key])
	}

	if len(result.ByKind) > 0 {
		cmd.Println()
		cmd.Println("By kind:")
		kinds := make([]string, 0, len(result.ByKind))
		for kind := range result.ByKind {
			kinds = append(kinds, string(kind))
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			cmd.Printf("  %-10s %d\n", kind, result.ByKind[domain.RecordKind(kind)])
		}
	}

	if len(result.ByOwner) > 0 {
		cmd.Println()
		cmd.Println("By owner:")
		owners := make([]string, 0, len(result.ByOwner))
		for owner := range result.ByOwner {
			owners = append(owners, owner)
		}
		sort.Strings(owners)
		for _, owner := range owners {
			cmd.Printf("  %-10s %d\n", owner, result.ByOwner[owner])
		}
	}
	return nil
}
