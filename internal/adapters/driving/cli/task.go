package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskhub-io/deskhub/internal/core/domain"
)

var (
	taskPriority  string
	taskAssignee  string
	taskDueDate   string
	taskDueInDays int
	taskChannel   string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a task with a due date",
	Long: `Creates a task page in the document store and posts a notification
in the task's discussion thread. A due date is mandatory: pass either
--due (YYYY-MM-DD) or --due-in-days.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskCreate,
}

func init() {
	taskCreateCmd.Flags().StringVar(&taskPriority, "priority", "", "task priority (default Medium)")
	taskCreateCmd.Flags().StringVar(&taskAssignee, "assignee", "", "task owner display name")
	taskCreateCmd.Flags().StringVar(&taskDueDate, "due", "", "due date (YYYY-MM-DD)")
	taskCreateCmd.Flags().IntVar(&taskDueInDays, "due-in-days", 0, "due date as days from now")
	taskCreateCmd.Flags().StringVar(&taskChannel, "channel", "", "chat channel override for the notification")

	taskCmd.AddCommand(taskCreateCmd)
	rootCmd.AddCommand(taskCmd)
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	if orchestrator == nil {
		return errors.New("orchestrator not configured")
	}

	params := map[string]any{
		"title":      args[0],
		"priority":   taskPriority,
		"assignee":   taskAssignee,
		"channel_id": taskChannel,
	}
	if taskDueDate != "" {
		params["due_date"] = taskDueDate
	}
	if taskDueInDays > 0 {
		params["due_in_days"] = taskDueInDays
	}

	summary, err := orchestrator.Orchestrate(cmd.Context(), domain.OpCreateTask, params)
	if summary != nil {
		printRunSummary(cmd, summary)
	}
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}
