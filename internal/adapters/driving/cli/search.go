package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskhub-io/deskhub/internal/core/domain"
)

var (
	searchKind  string
	searchOwner string
	searchDays  int
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search cached pages",
	Long: `Searches the local cache of synchronized records. Matching is
case-insensitive over titles and field values; results never consume
external rate budget. The look-back window is capped at 90 days.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchKind, "kind", "", "restrict to one kind (task, meeting, document)")
	searchCmd.Flags().StringVar(&searchOwner, "owner", "", "restrict to one owner")
	searchCmd.Flags().IntVar(&searchDays, "days", 0, "look-back window in days (default and cap 90)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	q := domain.SearchQuery{
		Kind:      domain.RecordKind(searchKind),
		Owner:     searchOwner,
		SinceDays: searchDays,
		Limit:     searchLimit,
	}
	if len(args) > 0 {
		q.Text = args[0]
	}

	pages, err := queryService.Search(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(pages, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(pages) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range pages {
		title := pages[i].Title
		if title == "" {
			title = pages[i].PageID
		}
		cmd.Printf("  [%d] %s (%s)\n", i+1, title, pages[i].Kind)
		if pages[i].Owner != "" {
			cmd.Printf("      Owner: %s\n", pages[i].Owner)
		}
		cmd.Printf("      Created: %s\n", pages[i].CreatedAt.Format("2006-01-02 15:04"))
		cmd.Println()
	}
	return nil
}
