package domain

import "time"

// Composite operation names accepted by the orchestrator.
const (
	OpCreateMeeting = "create-meeting"
	OpCreateTask    = "create-task"
)

// StepStatus is the lifecycle state of one workflow step.
type StepStatus string

const (
	// StepPending means the step has not executed yet.
	StepPending StepStatus = "PENDING"
	// StepDone means the step executed successfully.
	StepDone StepStatus = "DONE"
	// StepFailed means the step's forward action failed.
	StepFailed StepStatus = "FAILED"
	// StepCompensated means the step's compensating action ran (or the
	// step had nothing to compensate).
	StepCompensated StepStatus = "COMPENSATED"
)

// RunStatus is the overall lifecycle state of a workflow run.
type RunStatus string

const (
	// RunRunning means steps are executing in order.
	RunRunning RunStatus = "RUNNING"
	// RunCommitted means all steps are DONE. Terminal and successful.
	RunCommitted RunStatus = "COMMITTED"
	// RunCompensating means a step failed and DONE steps are being
	// rolled back in reverse order.
	RunCompensating RunStatus = "COMPENSATING"
	// RunFailed means compensation finished (or itself failed).
	// Terminal and unsuccessful.
	RunFailed RunStatus = "FAILED"
)

// WorkflowStep is one step of a saga: a forward action against a single
// external service, with an optional compensating action.
type WorkflowStep struct {
	// Name identifies the step within its operation.
	Name string `json:"name"`

	// ServiceID is the external service the step targets.
	ServiceID string `json:"service_id"`

	// Status is the step lifecycle state.
	Status StepStatus `json:"status"`

	// ExternalID is the identifier returned by the forward action,
	// recorded so the compensating action can find the object.
	ExternalID string `json:"external_id,omitempty"`

	// Err holds the forward-action failure message, if any.
	Err string `json:"err,omitempty"`

	// CompensationErr holds the compensation failure message, if any.
	// Compensation failures are reported, never retried automatically.
	CompensationErr string `json:"compensation_err,omitempty"`
}

// WorkflowRun is one saga instance. It is owned exclusively by the
// workflow orchestrator; the reconciler never mutates it.
type WorkflowRun struct {
	// RunID is a unique identifier for the run.
	RunID string `json:"run_id"`

	// Operation is the composite operation name.
	Operation string `json:"operation"`

	// Steps execute strictly in declared order.
	Steps []WorkflowStep `json:"steps"`

	// Status is the overall run state.
	Status RunStatus `json:"status"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Terminal reports whether the run reached a terminal state.
func (r *WorkflowRun) Terminal() bool {
	return r.Status == RunCommitted || r.Status == RunFailed
}

// RunSummary is the caller-facing outcome of a composite operation.
type RunSummary struct {
	// RunID identifies the archived run.
	RunID string

	// Operation is the composite operation name.
	Operation string

	// Status is the terminal run status.
	Status RunStatus

	// CreatedIDs maps step name to the external identifier it created.
	// Populated for DONE steps even when the run later failed, so the
	// caller knows what user-visible state exists.
	CreatedIDs map[string]string

	// PageURL is the document-store page URL when one was created.
	PageURL string

	// Errors lists step and compensation failures in occurrence order.
	Errors []string
}

// MeetingRequest is the caller input for the create-meeting operation.
type MeetingRequest struct {
	// Title is the meeting title. Required.
	Title string

	// MeetingType is a free-form classification (e.g. "regular").
	MeetingType string

	// Participants are display names resolved to calendar addresses
	// through the address book. Required, non-empty.
	Participants []string

	// Start is the meeting start time. Required.
	Start time.Time

	// Duration defaults to one hour when zero.
	Duration time.Duration

	// ChannelID overrides the default chat channel for the thread
	// notification.
	ChannelID string
}

// TaskRequest is the caller input for the create-task operation.
type TaskRequest struct {
	// Title is the task title. Required.
	Title string

	// Priority defaults to "Medium".
	Priority string

	// Assignee is the task owner display name.
	Assignee string

	// DueDate is the explicit due date. Either DueDate or DueInDays
	// must be supplied; the operation is rejected otherwise.
	DueDate time.Time

	// DueInDays computes the due date as now + N days (end of day)
	// when DueDate is zero. Zero means "not supplied".
	DueInDays int

	// ChannelID overrides the default chat channel for the
	// notification.
	ChannelID string
}
