package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/core/ports/driven"
	"github.com/deskhub-io/deskhub/internal/core/ports/driving"
	"github.com/deskhub-io/deskhub/internal/logger"
	"github.com/deskhub-io/deskhub/internal/ratelimit"
)

const (
	defaultMeetingDuration = time.Hour
	defaultMeetingHour     = 14
	defaultTaskPriority    = "Medium"
)

// Ensure Orchestrator implements the interface.
var _ driving.Orchestrator = (*Orchestrator)(nil)

// sagaStep is one step of a composite operation: a forward action
// against a single service plus the compensating action that undoes it.
// A nil compensate means the step leaves nothing to clean up.
type sagaStep struct {
	name       string
	serviceID  string
	execute    func(ctx context.Context) (string, error)
	compensate func(ctx context.Context, externalID string) error
}

// Orchestrator runs composite create operations as sagas. Steps execute
// in declared order; on failure the completed steps are compensated in
// reverse order and the partial outcome is reported in full.
type Orchestrator struct {
	docs       driven.RecordSource
	cal        driven.CalendarService
	chat       driven.ChatService
	book       driven.AddressBook
	runs       driven.WorkflowStore
	reconciler driving.Reconciler
	client     *ratelimit.Client

	defaultChannelID string

	now   func() time.Time
	newID func() string
}

// NewOrchestrator creates an orchestrator over the given adapters.
func NewOrchestrator(
	docs driven.RecordSource,
	cal driven.CalendarService,
	chat driven.ChatService,
	book driven.AddressBook,
	runs driven.WorkflowStore,
	reconciler driving.Reconciler,
	client *ratelimit.Client,
	defaultChannelID string,
) *Orchestrator {
	return &Orchestrator{
		docs:             docs,
		cal:              cal,
		chat:             chat,
		book:             book,
		runs:             runs,
		reconciler:       reconciler,
		client:           client,
		defaultChannelID: defaultChannelID,
		now:              func() time.Time { return time.Now().UTC() },
		newID:            uuid.NewString,
	}
}

// Orchestrate dispatches a named composite operation with loosely typed
// parameters, the shape chat command layers and HTTP handlers produce.
func (o *Orchestrator) Orchestrate(ctx context.Context, operation string, params map[string]any) (*domain.RunSummary, error) {
	switch operation {
	case domain.OpCreateMeeting:
		req, err := parseMeetingParams(params)
		if err != nil {
			return nil, err
		}
		return o.CreateMeeting(ctx, req)
	case domain.OpCreateTask:
		req, err := parseTaskParams(params)
		if err != nil {
			return nil, err
		}
		return o.CreateTask(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownOperation, operation)
	}
}

// CreateMeeting runs the create-meeting saga: document-store page,
// calendar event, chat scheduled event, then a thread notification.
func (o *Orchestrator) CreateMeeting(ctx context.Context, req domain.MeetingRequest) (*domain.RunSummary, error) {
	if req.Title == "" {
		return nil, &domain.ValidationError{Param: "title", Reason: "required"}
	}
	if len(req.Participants) == 0 {
		return nil, &domain.ValidationError{Param: "participants", Reason: "at least one participant required"}
	}
	if req.Start.IsZero() {
		return nil, &domain.ValidationError{Param: "start", Reason: "required"}
	}
	addresses := make([]string, 0, len(req.Participants))
	for _, name := range req.Participants {
		addr, ok := o.book.Resolve(name)
		if !ok {
			return nil, &domain.ValidationError{Param: "participants", Reason: fmt.Sprintf("unknown participant %q", name)}
		}
		addresses = append(addresses, addr)
	}
	if req.Duration <= 0 {
		req.Duration = defaultMeetingDuration
	}
	channelID := req.ChannelID
	if channelID == "" {
		channelID = o.defaultChannelID
	}

	// The date suffix keeps recurring meeting titles unique per day.
	uniqueTitle := fmt.Sprintf("%s (%s)", req.Title, req.Start.Format("2006-01-02"))
	end := req.Start.Add(req.Duration)
	bucketKey := req.Start.Format("2006-01-02")

	var pageID string
	steps := []sagaStep{
		{
			name:      "create-page",
			serviceID: o.docs.ServiceID(),
			execute: func(ctx context.Context) (string, error) {
				fields := domain.Fields{
					{Name: domain.FieldTitle, Value: uniqueTitle},
					{Name: "meeting_type", Value: req.MeetingType},
					{Name: "date", Value: req.Start},
					{Name: "participants", Value: req.Participants},
				}
				id, err := o.execID(ctx, o.docs.ServiceID(), func(ctx context.Context) (string, error) {
					return o.docs.CreateRecord(ctx, domain.KindMeeting, fields)
				})
				pageID = id
				return id, err
			},
			compensate: func(ctx context.Context, externalID string) error {
				return o.client.Execute(ctx, o.docs.ServiceID(), func(ctx context.Context) error {
					return o.docs.ArchiveRecord(ctx, externalID)
				})
			},
		},
		{
			name:      "create-calendar-event",
			serviceID: o.cal.ServiceID(),
			execute: func(ctx context.Context) (string, error) {
				return o.execID(ctx, o.cal.ServiceID(), func(ctx context.Context) (string, error) {
					return o.cal.CreateEvent(ctx, uniqueTitle, req.Start, end, addresses)
				})
			},
			compensate: func(ctx context.Context, externalID string) error {
				return o.client.Execute(ctx, o.cal.ServiceID(), func(ctx context.Context) error {
					return o.cal.DeleteEvent(ctx, externalID)
				})
			},
		},
		{
			name:      "create-chat-event",
			serviceID: o.chat.ServiceID(),
			execute: func(ctx context.Context) (string, error) {
				description := fmt.Sprintf("%s with %s", req.MeetingType, strings.Join(req.Participants, ", "))
				return o.execID(ctx, o.chat.ServiceID(), func(ctx context.Context) (string, error) {
					return o.chat.CreateScheduledEvent(ctx, uniqueTitle, description, req.Start, req.Duration)
				})
			},
			compensate: func(ctx context.Context, externalID string) error {
				return o.client.Execute(ctx, o.chat.ServiceID(), func(ctx context.Context) error {
					return o.chat.DeleteScheduledEvent(ctx, externalID)
				})
			},
		},
		{
			name:      "notify",
			serviceID: o.chat.ServiceID(),
			execute: func(ctx context.Context) (string, error) {
				content := fmt.Sprintf("Meeting scheduled: %s at %s\n%s",
					uniqueTitle, req.Start.Format(time.RFC3339), o.docs.RecordURL(pageID))
				return o.notify(ctx, pageID, bucketKey, content)
			},
		},
	}

	return o.run(ctx, domain.OpCreateMeeting, steps)
}

// CreateTask runs the create-task saga: document-store task page, then a
// thread notification. A task without a due date is rejected up front.
func (o *Orchestrator) CreateTask(ctx context.Context, req domain.TaskRequest) (*domain.RunSummary, error) {
	if req.Title == "" {
		return nil, &domain.ValidationError{Param: "title", Reason: "required"}
	}
	if req.DueDate.IsZero() && req.DueInDays <= 0 {
		return nil, &domain.ValidationError{Param: "due_date", Reason: "either due_date or due_in_days is required"}
	}
	if req.Priority == "" {
		req.Priority = defaultTaskPriority
	}

	due := req.DueDate
	if due.IsZero() {
		due = endOfDay(o.now().AddDate(0, 0, req.DueInDays))
	}
	bucketKey := due.Format("2006-01-02")

	var pageID string
	steps := []sagaStep{
		{
			name:      "create-page",
			serviceID: o.docs.ServiceID(),
			execute: func(ctx context.Context) (string, error) {
				fields := domain.Fields{
					{Name: domain.FieldTitle, Value: req.Title},
					{Name: "priority", Value: req.Priority},
					{Name: domain.FieldOwner, Value: req.Assignee},
					{Name: "due", Value: due},
				}
				id, err := o.execID(ctx, o.docs.ServiceID(), func(ctx context.Context) (string, error) {
					return o.docs.CreateRecord(ctx, domain.KindTask, fields)
				})
				pageID = id
				return id, err
			},
			compensate: func(ctx context.Context, externalID string) error {
				return o.client.Execute(ctx, o.docs.ServiceID(), func(ctx context.Context) error {
					return o.docs.ArchiveRecord(ctx, externalID)
				})
			},
		},
		{
			name:      "notify",
			serviceID: o.chat.ServiceID(),
			execute: func(ctx context.Context) (string, error) {
				content := fmt.Sprintf("Task created: %s (priority %s, due %s)\n%s",
					req.Title, req.Priority, due.Format("2006-01-02"), o.docs.RecordURL(pageID))
				return o.notify(ctx, pageID, bucketKey, content)
			},
		},
	}

	return o.run(ctx, domain.OpCreateTask, steps)
}

// notify ensures the page's discussion thread exists and posts into it.
// Returns the thread ID as the step's external identifier.
func (o *Orchestrator) notify(ctx context.Context, pageID, bucketKey, content string) (string, error) {
	mapping, err := o.reconciler.EnsureThreadMapping(ctx, pageID, bucketKey)
	if err != nil {
		return "", fmt.Errorf("ensure thread: %w", err)
	}
	err = o.client.Execute(ctx, o.chat.ServiceID(), func(ctx context.Context) error {
		return o.chat.PostMessage(ctx, mapping.ThreadID, content)
	})
	if err != nil {
		return "", fmt.Errorf("post message: %w", err)
	}
	return mapping.ThreadID, nil
}

// execID issues an ID-returning call through the rate-limited client.
func (o *Orchestrator) execID(ctx context.Context, serviceID string, fn func(ctx context.Context) (string, error)) (string, error) {
	var id string
	err := o.client.Execute(ctx, serviceID, func(ctx context.Context) error {
		var ferr error
		id, ferr = fn(ctx)
		return ferr
	})
	return id, err
}

// run executes the steps in order. On a step failure it compensates the
// completed steps in reverse order, archives the run, and returns a
// PartialFailureError describing what external state remains.
func (o *Orchestrator) run(ctx context.Context, operation string, steps []sagaStep) (*domain.RunSummary, error) {
	run := &domain.WorkflowRun{
		RunID:     o.newID(),
		Operation: operation,
		Status:    domain.RunRunning,
		StartedAt: o.now(),
		Steps:     make([]domain.WorkflowStep, len(steps)),
	}
	for i, s := range steps {
		run.Steps[i] = domain.WorkflowStep{Name: s.name, ServiceID: s.serviceID, Status: domain.StepPending}
	}
	logger.Section(fmt.Sprintf("%s run %s", operation, run.RunID))

	failedAt := -1
	var stepErr error
	for i, s := range steps {
		id, err := s.execute(ctx)
		if err != nil {
			run.Steps[i].Status = domain.StepFailed
			run.Steps[i].Err = err.Error()
			failedAt = i
			stepErr = err
			logger.Warn("step %s failed: %v", s.name, err)
			break
		}
		run.Steps[i].Status = domain.StepDone
		run.Steps[i].ExternalID = id
		logger.Debug("step %s done (id %s)", s.name, id)
	}

	if failedAt == -1 {
		run.Status = domain.RunCommitted
		run.FinishedAt = o.now()
		o.archive(ctx, run)
		return o.summary(run), nil
	}

	run.Status = domain.RunCompensating
	compensated := o.compensate(ctx, run, steps, failedAt)
	run.Status = domain.RunFailed
	run.FinishedAt = o.now()
	o.archive(ctx, run)

	remaining := make(map[string]string)
	for i := 0; i < failedAt; i++ {
		if run.Steps[i].CompensationErr != "" && run.Steps[i].ExternalID != "" {
			remaining[run.Steps[i].Name] = run.Steps[i].ExternalID
		}
	}

	return o.summary(run), &domain.PartialFailureError{
		Operation:   operation,
		RunID:       run.RunID,
		FailedStep:  steps[failedAt].name,
		StepErr:     stepErr,
		Compensated: compensated,
		Remaining:   remaining,
	}
}

// compensate rolls back the DONE steps in reverse order. It runs on a
// context detached from the caller's cancellation: a caller that gives
// up must not leave half-created external state behind.
func (o *Orchestrator) compensate(ctx context.Context, run *domain.WorkflowRun, steps []sagaStep, failedAt int) []domain.CompensationResult {
	compCtx := context.WithoutCancel(ctx)

	var results []domain.CompensationResult
	for i := failedAt - 1; i >= 0; i-- {
		step := &run.Steps[i]
		res := domain.CompensationResult{Step: step.Name, ExternalID: step.ExternalID}

		if steps[i].compensate == nil || step.ExternalID == "" {
			step.Status = domain.StepCompensated
			results = append(results, res)
			continue
		}

		if err := steps[i].compensate(compCtx, step.ExternalID); err != nil {
			// Report and keep rolling back; manual cleanup is on the caller.
			step.CompensationErr = err.Error()
			res.Err = err.Error()
			logger.Warn("compensation for step %s failed: %v", step.Name, err)
		} else {
			step.Status = domain.StepCompensated
			logger.Debug("compensated step %s (id %s)", step.Name, step.ExternalID)
		}
		results = append(results, res)
	}
	return results
}

// archive persists the terminal run. Archival failures are logged, not
// surfaced: the operation's outcome already happened externally.
func (o *Orchestrator) archive(ctx context.Context, run *domain.WorkflowRun) {
	if err := o.runs.Save(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("archive run %s: %v", run.RunID, err)
	}
}

// summary builds the caller-facing outcome from a terminal run.
func (o *Orchestrator) summary(run *domain.WorkflowRun) *domain.RunSummary {
	s := &domain.RunSummary{
		RunID:      run.RunID,
		Operation:  run.Operation,
		Status:     run.Status,
		CreatedIDs: make(map[string]string),
	}
	for _, step := range run.Steps {
		if step.ExternalID != "" {
			s.CreatedIDs[step.Name] = step.ExternalID
		}
		if step.Err != "" {
			s.Errors = append(s.Errors, fmt.Sprintf("%s: %s", step.Name, step.Err))
		}
		if step.CompensationErr != "" {
			s.Errors = append(s.Errors, fmt.Sprintf("%s (compensation): %s", step.Name, step.CompensationErr))
		}
		if step.Name == "create-page" && step.Status == domain.StepDone {
			s.PageURL = o.docs.RecordURL(step.ExternalID)
		}
	}
	return s
}

// endOfDay returns 23:59:59 on t's calendar day.
func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// --- loose parameter parsing for Orchestrate ---

func parseMeetingParams(params map[string]any) (domain.MeetingRequest, error) {
	var req domain.MeetingRequest
	req.Title, _ = params["title"].(string)
	req.MeetingType, _ = params["meeting_type"].(string)
	req.ChannelID, _ = params["channel_id"].(string)

	switch v := params["participants"].(type) {
	case []string:
		req.Participants = v
	case []any:
		for _, p := range v {
			s, ok := p.(string)
			if !ok {
				return req, &domain.ValidationError{Param: "participants", Reason: "must be a list of names"}
			}
			req.Participants = append(req.Participants, s)
		}
	case nil:
	default:
		return req, &domain.ValidationError{Param: "participants", Reason: "must be a list of names"}
	}

	switch v := params["start"].(type) {
	case time.Time:
		req.Start = v
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			// A bare date schedules the meeting at the default hour.
			day, derr := time.Parse("2006-01-02", v)
			if derr != nil {
				return req, &domain.ValidationError{Param: "start", Reason: "must be RFC 3339 or YYYY-MM-DD"}
			}
			t = day.Add(defaultMeetingHour * time.Hour)
		}
		req.Start = t
	case nil:
	default:
		return req, &domain.ValidationError{Param: "start", Reason: "must be RFC 3339 or YYYY-MM-DD"}
	}

	if mins, ok := toInt(params["duration_minutes"]); ok {
		req.Duration = time.Duration(mins) * time.Minute
	}
	return req, nil
}

func parseTaskParams(params map[string]any) (domain.TaskRequest, error) {
	var req domain.TaskRequest
	req.Title, _ = params["title"].(string)
	req.Priority, _ = params["priority"].(string)
	req.Assignee, _ = params["assignee"].(string)
	req.ChannelID, _ = params["channel_id"].(string)

	switch v := params["due_date"].(type) {
	case time.Time:
		req.DueDate = v
	case string:
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return req, &domain.ValidationError{Param: "due_date", Reason: "must be YYYY-MM-DD"}
		}
		req.DueDate = endOfDay(t)
	case nil:
	default:
		return req, &domain.ValidationError{Param: "due_date", Reason: "must be YYYY-MM-DD"}
	}

	if days, ok := toInt(params["due_in_days"]); ok {
		req.DueInDays = days
	}
	return req, nil
}

// toInt accepts the numeric types JSON decoding and callers produce.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
