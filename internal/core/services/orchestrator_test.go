package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/core/ports/driven"
)

// --- test fakes ---

type fakeDocs struct {
	mu         sync.Mutex
	nextID     int
	created    map[string]domain.Fields
	kinds      map[string]domain.RecordKind
	archived   []string
	createErr  error
	archiveErr error
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{
		created: make(map[string]domain.Fields),
		kinds:   make(map[string]domain.RecordKind),
	}
}

func (d *fakeDocs) ServiceID() string { return driven.ServiceNotion }

func (d *fakeDocs) Kinds() []domain.RecordKind {
	return []domain.RecordKind{domain.KindTask, domain.KindMeeting, domain.KindDocument}
}

func (d *fakeDocs) RecordURL(recordID string) string {
	return "https://docs.example.test/" + recordID
}

func (d *fakeDocs) CreateRecord(_ context.Context, kind domain.RecordKind, fields domain.Fields) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.createErr != nil {
		return "", d.createErr
	}
	d.nextID++
	id := fmt.Sprintf("page-%d", d.nextID)
	d.created[id] = fields
	d.kinds[id] = kind
	return id, nil
}

func (d *fakeDocs) UpdateRecord(context.Context, string, domain.Fields) error {
	return errors.New("not implemented")
}

func (d *fakeDocs) ArchiveRecord(_ context.Context, recordID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.archiveErr != nil {
		return d.archiveErr
	}
	d.archived = append(d.archived, recordID)
	return nil
}

func (d *fakeDocs) FetchRecord(context.Context, string) (*domain.ExternalRecord, error) {
	return nil, errors.New("not implemented")
}

func (d *fakeDocs) FetchSince(context.Context, string, string) ([]domain.ExternalRecord, string, string, error) {
	return nil, "", "", errors.New("not implemented")
}

func (d *fakeDocs) ListIDs(context.Context, domain.RecordKind, string) ([]string, string, error) {
	return nil, "", errors.New("not implemented")
}

type calEvent struct {
	title     string
	start     time.Time
	end       time.Time
	attendees []string
}

type fakeCalendar struct {
	mu        sync.Mutex
	nextID    int
	events    map[string]calEvent
	deleted   []string
	createErr error
	deleteErr error

	// onCreate runs inside CreateEvent before anything else.
	onCreate func()
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{events: make(map[string]calEvent)}
}

func (c *fakeCalendar) ServiceID() string { return driven.ServiceCalendar }

func (c *fakeCalendar) CreateEvent(_ context.Context, title string, start, end time.Time, attendees []string) (string, error) {
	if c.onCreate != nil {
		c.onCreate()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return "", c.createErr
	}
	c.nextID++
	id := fmt.Sprintf("cal-%d", c.nextID)
	c.events[id] = calEvent{title: title, start: start, end: end, attendees: attendees}
	return id, nil
}

func (c *fakeCalendar) DeleteEvent(_ context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deleted = append(c.deleted, eventID)
	delete(c.events, eventID)
	return nil
}

func (c *fakeCalendar) FindAvailability(context.Context, []string, driven.TimeWindow) ([]driven.TimeSlot, error) {
	return nil, errors.New("not implemented")
}

type fakeBook map[string]string

func (b fakeBook) Resolve(name string) (string, bool) {
	addr, ok := b[name]
	return addr, ok
}

type fakeRunStore struct {
	mu   sync.Mutex
	runs map[string]domain.WorkflowRun
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: make(map[string]domain.WorkflowRun)}
}

func (s *fakeRunStore) Save(_ context.Context, run *domain.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = *run
	return nil
}

func (s *fakeRunStore) Get(_ context.Context, runID string) (*domain.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cr := r
	return &cr, nil
}

func (s *fakeRunStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.runs {
		if r.Terminal() && r.FinishedAt.Before(before) {
			delete(s.runs, id)
			n++
		}
	}
	return n, nil
}

type orchFixture struct {
	orch  *Orchestrator
	docs  *fakeDocs
	cal   *fakeCalendar
	chat  *fakeChat
	runs  *fakeRunStore
	pages *fakePageStore
}

func newOrchFixture(t *testing.T) *orchFixture {
	t.Helper()
	docs := newFakeDocs()
	cal := newFakeCalendar()
	chat := newFakeChat()
	runs := newFakeRunStore()
	pages := newFakePageStore()
	client := testClient()
	rec := NewReconciler(pages, newFakeThreadStore(), newFakeCursorStore(), nil, chat, client, "chan-default")
	book := fakeBook{"alice": "alice@example.test", "bob": "bob@example.test"}
	orch := NewOrchestrator(docs, cal, chat, book, runs, rec, client, "chan-default")
	orch.now = func() time.Time { return time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC) }
	return &orchFixture{orch: orch, docs: docs, cal: cal, chat: chat, runs: runs, pages: pages}
}

func meetingRequest() domain.MeetingRequest {
	return domain.MeetingRequest{
		Title:        "Weekly sync",
		MeetingType:  "regular",
		Participants: []string{"alice", "bob"},
		Start:        time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC),
	}
}

// --- CreateMeeting ---

func TestCreateMeeting_CommitsAllSteps(t *testing.T) {
	f := newOrchFixture(t)

	summary, err := f.orch.CreateMeeting(context.Background(), meetingRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.RunCommitted, summary.Status)
	assert.Len(t, summary.CreatedIDs, 4)
	assert.Equal(t, "page-1", summary.CreatedIDs["create-page"])
	assert.Equal(t, "cal-1", summary.CreatedIDs["create-calendar-event"])
	assert.Equal(t, "event-1", summary.CreatedIDs["create-chat-event"])
	assert.Equal(t, "thread-1", summary.CreatedIDs["notify"])
	assert.Equal(t, "https://docs.example.test/page-1", summary.PageURL)
	assert.Empty(t, summary.Errors)

	// The archived run is terminal with all steps DONE.
	run, err := f.runs.Get(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCommitted, run.Status)
	for _, step := range run.Steps {
		assert.Equal(t, domain.StepDone, step.Status)
	}

	// Attendees are resolved addresses, not display names.
	ev := f.cal.events["cal-1"]
	assert.Equal(t, []string{"alice@example.test", "bob@example.test"}, ev.attendees)

	// Title carries the date suffix; duration defaulted to one hour.
	assert.Equal(t, "Weekly sync (2026-08-24)", ev.title)
	assert.Equal(t, time.Hour, ev.end.Sub(ev.start))

	// The notification landed in the page's thread and links the page.
	require.Len(t, f.chat.posts, 1)
	assert.Contains(t, f.chat.posts[0], "thread-1")
	assert.Contains(t, f.chat.posts[0], "https://docs.example.test/page-1")
}

func TestCreateMeeting_ValidationRejectsBeforeAnySideEffect(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.MeetingRequest)
	}{
		{"missing title", func(r *domain.MeetingRequest) { r.Title = "" }},
		{"no participants", func(r *domain.MeetingRequest) { r.Participants = nil }},
		{"unknown participant", func(r *domain.MeetingRequest) { r.Participants = []string{"mallory"} }},
		{"zero start", func(r *domain.MeetingRequest) { r.Start = time.Time{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newOrchFixture(t)
			req := meetingRequest()
			tc.mutate(&req)

			_, err := f.orch.CreateMeeting(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Empty(t, f.docs.created)
			assert.Empty(t, f.cal.events)
			assert.Empty(t, f.runs.runs)
		})
	}
}

func TestCreateMeeting_CalendarFailureArchivesPage(t *testing.T) {
	f := newOrchFixture(t)
	f.cal.createErr = errors.New("calendar unavailable")

	summary, err := f.orch.CreateMeeting(context.Background(), meetingRequest())

	var pfe *domain.PartialFailureError
	require.ErrorAs(t, err, &pfe)
	assert.Equal(t, "create-calendar-event", pfe.FailedStep)
	assert.Empty(t, pfe.Remaining)

	// The page was created, then rolled back.
	assert.Equal(t, []string{"page-1"}, f.docs.archived)

	require.NotNil(t, summary)
	assert.Equal(t, domain.RunFailed, summary.Status)
	assert.Equal(t, "page-1", summary.CreatedIDs["create-page"])

	run, rerr := f.runs.Get(context.Background(), summary.RunID)
	require.NoError(t, rerr)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, domain.StepCompensated, run.Steps[0].Status)
	assert.Equal(t, domain.StepFailed, run.Steps[1].Status)
	assert.Equal(t, domain.StepPending, run.Steps[2].Status)
}

func TestCreateMeeting_ChatEventFailureRollsBackInReverseOrder(t *testing.T) {
	f := newOrchFixture(t)
	f.chat.eventErr = errors.New("chat unavailable")

	_, err := f.orch.CreateMeeting(context.Background(), meetingRequest())

	var pfe *domain.PartialFailureError
	require.ErrorAs(t, err, &pfe)
	assert.Equal(t, "create-chat-event", pfe.FailedStep)

	// Calendar event deleted, then page archived.
	assert.Equal(t, []string{"cal-1"}, f.cal.deleted)
	assert.Equal(t, []string{"page-1"}, f.docs.archived)
	require.Len(t, pfe.Compensated, 2)
	assert.Equal(t, "create-calendar-event", pfe.Compensated[0].Step)
	assert.Equal(t, "create-page", pfe.Compensated[1].Step)
}

func TestCreateMeeting_CompensationFailureReportsRemaining(t *testing.T) {
	f := newOrchFixture(t)
	f.chat.eventErr = errors.New("chat unavailable")
	f.docs.archiveErr = errors.New("archive rejected")

	summary, err := f.orch.CreateMeeting(context.Background(), meetingRequest())

	var pfe *domain.PartialFailureError
	require.ErrorAs(t, err, &pfe)
	// The page could not be cleaned up and needs manual intervention.
	assert.Equal(t, map[string]string{"create-page": "page-1"}, pfe.Remaining)
	// The calendar rollback still ran.
	assert.Equal(t, []string{"cal-1"}, f.cal.deleted)

	require.NotNil(t, summary)
	found := false
	for _, e := range summary.Errors {
		if e == "create-page (compensation): archive rejected" {
			found = true
		}
	}
	assert.True(t, found, "summary must report the compensation failure: %v", summary.Errors)
}

func TestCreateMeeting_CompensationSurvivesCallerCancellation(t *testing.T) {
	f := newOrchFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.cal.onCreate = func() { cancel() }
	f.cal.createErr = errors.New("calendar unavailable")

	_, err := f.orch.CreateMeeting(ctx, meetingRequest())

	var pfe *domain.PartialFailureError
	require.ErrorAs(t, err, &pfe)
	// The caller gave up mid-run; the page rollback must still happen.
	assert.Equal(t, []string{"page-1"}, f.docs.archived)
}

// --- CreateTask ---

func TestCreateTask_CommitsWithExplicitDueDate(t *testing.T) {
	f := newOrchFixture(t)

	due := time.Date(2026, 8, 28, 23, 59, 59, 0, time.UTC)
	summary, err := f.orch.CreateTask(context.Background(), domain.TaskRequest{
		Title:    "Write release notes",
		Assignee: "alice",
		DueDate:  due,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RunCommitted, summary.Status)
	assert.Equal(t, "page-1", summary.CreatedIDs["create-page"])

	fields := f.docs.created["page-1"]
	assert.Equal(t, "Write release notes", fields.GetString(domain.FieldTitle))
	assert.Equal(t, "Medium", fields.GetString("priority"))
	assert.Equal(t, "alice", fields.GetString(domain.FieldOwner))
	gotDue, _ := fields.Get("due")
	assert.Equal(t, due, gotDue)
	assert.Equal(t, domain.KindTask, f.docs.kinds["page-1"])

	require.Len(t, f.chat.posts, 1)
	assert.Contains(t, f.chat.posts[0], "Write release notes")
}

func TestCreateTask_DueInDaysIsEndOfDay(t *testing.T) {
	f := newOrchFixture(t)

	// now is fixed at 2026-08-20 10:00 UTC in the fixture.
	_, err := f.orch.CreateTask(context.Background(), domain.TaskRequest{
		Title:     "Follow up",
		DueInDays: 3,
	})
	require.NoError(t, err)

	gotDue, _ := f.docs.created["page-1"].Get("due")
	assert.Equal(t, time.Date(2026, 8, 23, 23, 59, 59, 0, time.UTC), gotDue)
}

func TestCreateTask_RejectsMissingDueDate(t *testing.T) {
	f := newOrchFixture(t)

	_, err := f.orch.CreateTask(context.Background(), domain.TaskRequest{Title: "No deadline"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, f.docs.created)
}

func TestCreateTask_PageFailureLeavesNothingBehind(t *testing.T) {
	f := newOrchFixture(t)
	f.docs.createErr = errors.New("store rejected")

	summary, err := f.orch.CreateTask(context.Background(), domain.TaskRequest{
		Title:   "Doomed",
		DueDate: time.Date(2026, 9, 1, 23, 59, 59, 0, time.UTC),
	})

	var pfe *domain.PartialFailureError
	require.ErrorAs(t, err, &pfe)
	assert.Equal(t, "create-page", pfe.FailedStep)
	assert.Empty(t, pfe.Remaining)
	assert.Empty(t, f.chat.posts)
	assert.Empty(t, summary.CreatedIDs)
}

// --- Orchestrate dispatch ---

func TestOrchestrate_UnknownOperation(t *testing.T) {
	f := newOrchFixture(t)

	_, err := f.orch.Orchestrate(context.Background(), "create-invoice", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownOperation)
}

func TestOrchestrate_CreateMeetingFromLooseParams(t *testing.T) {
	f := newOrchFixture(t)

	summary, err := f.orch.Orchestrate(context.Background(), domain.OpCreateMeeting, map[string]any{
		"title":            "Planning",
		"meeting_type":     "regular",
		"participants":     []any{"alice", "bob"},
		"start":            "2026-08-24T14:00:00Z",
		"duration_minutes": float64(30),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RunCommitted, summary.Status)

	ev := f.cal.events["cal-1"]
	assert.Equal(t, 30*time.Minute, ev.end.Sub(ev.start))
}

func TestOrchestrate_CreateTaskFromLooseParams(t *testing.T) {
	f := newOrchFixture(t)

	summary, err := f.orch.Orchestrate(context.Background(), domain.OpCreateTask, map[string]any{
		"title":       "Triage inbox",
		"priority":    "High",
		"assignee":    "bob",
		"due_in_days": float64(1),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RunCommitted, summary.Status)
	assert.Equal(t, "High", f.docs.created["page-1"].GetString("priority"))
}

func TestOrchestrate_DateOnlyStartDefaultsToAfternoon(t *testing.T) {
	f := newOrchFixture(t)

	summary, err := f.orch.Orchestrate(context.Background(), domain.OpCreateMeeting, map[string]any{
		"title":        "Planning",
		"participants": []any{"alice"},
		"start":        "2026-08-24",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RunCommitted, summary.Status)

	// A bare date lands at 14:00 with the one-hour default duration.
	ev := f.cal.events["cal-1"]
	assert.Equal(t, time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC), ev.start)
	assert.Equal(t, time.Hour, ev.end.Sub(ev.start))
}

func TestOrchestrate_BadStartRejected(t *testing.T) {
	f := newOrchFixture(t)

	_, err := f.orch.Orchestrate(context.Background(), domain.OpCreateMeeting, map[string]any{
		"title":        "Planning",
		"participants": []any{"alice"},
		"start":        "tomorrow",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
