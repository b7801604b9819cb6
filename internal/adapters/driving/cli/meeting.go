package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskhub-io/deskhub/internal/core/domain"
)

var (
	meetingType         string
	meetingParticipants []string
	meetingStart        string
	meetingDuration     int
	meetingChannel      string
)

var meetingCmd = &cobra.Command{
	Use:   "meeting",
	Short: "Manage meetings",
}

var meetingCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a meeting across all services",
	Long: `Creates a meeting as one workflow: a document-store page, a calendar
event with resolved invites, a chat scheduled event, and a notification
in the page's discussion thread. If any step fails, the completed steps
are rolled back and the remaining external objects are reported.`,
	Args: cobra.ExactArgs(1),
	RunE: runMeetingCreate,
}

func init() {
	meetingCreateCmd.Flags().StringVar(&meetingType, "type", "regular", "meeting classification")
	meetingCreateCmd.Flags().StringSliceVarP(&meetingParticipants, "participants", "p", nil,
		"participant display names (repeatable or comma-separated)")
	meetingCreateCmd.Flags().StringVar(&meetingStart, "start", "", "start time (RFC 3339, or YYYY-MM-DD for a 14:00 meeting)")
	meetingCreateCmd.Flags().IntVar(&meetingDuration, "duration", 0, "duration in minutes (default 60)")
	meetingCreateCmd.Flags().StringVar(&meetingChannel, "channel", "", "chat channel override for the thread")

	meetingCmd.AddCommand(meetingCreateCmd)
	rootCmd.AddCommand(meetingCmd)
}

func runMeetingCreate(cmd *cobra.Command, args []string) error {
	if orchestrator == nil {
		return errors.New("orchestrator not configured")
	}

	params := map[string]any{
		"title":        args[0],
		"meeting_type": meetingType,
		"participants": meetingParticipants,
		"channel_id":   meetingChannel,
	}
	if meetingStart != "" {
		params["start"] = meetingStart
	}
	if meetingDuration > 0 {
		params["duration_minutes"] = meetingDuration
	}

	summary, err := orchestrator.Orchestrate(cmd.Context(), domain.OpCreateMeeting, params)
	if summary != nil {
		printRunSummary(cmd, summary)
	}
	if err != nil {
		return fmt.Errorf("create meeting: %w", err)
	}
	return nil
}
