package driven

import (
	"context"
	"time"

	"github.com/deskhub-io/deskhub/internal/core/domain"
)

// Service IDs used for rate budgets and workflow steps.
const (
	ServiceNotion   = "notion"
	ServiceCalendar = "calendar"
	ServiceDiscord  = "discord"
)

// RecordSource is a service adapter over one external system that holds
// records: it normalizes the system's native schema into
// domain.ExternalRecord and exposes create/update/archive plus the two
// read paths the reconciler needs (cursor fetch and live key listing).
//
// Implementations translate wire formats only; they never rate-limit or
// retry themselves. Callers issue every method through the rate-limited
// client, so each invocation performs at most one outbound call: reads
// that span multiple wire pages return continuation tokens instead of
// looping internally.
type RecordSource interface {
	// ServiceID returns the budget/service identifier.
	ServiceID() string

	// Kinds returns the record kinds this source holds.
	Kinds() []domain.RecordKind

	// CreateRecord creates a record and returns its external ID.
	CreateRecord(ctx context.Context, kind domain.RecordKind, fields domain.Fields) (string, error)

	// UpdateRecord overwrites the given properties on an existing record.
	UpdateRecord(ctx context.Context, recordID string, fields domain.Fields) error

	// ArchiveRecord soft-deletes a record. Used as the document-store
	// compensation action.
	ArchiveRecord(ctx context.Context, recordID string) error

	// FetchRecord returns the current value of one record, or
	// domain.ErrNotFound if it no longer exists.
	FetchRecord(ctx context.Context, recordID string) (*domain.ExternalRecord, error)

	// FetchSince returns one batch of records changed since the opaque
	// cursor (empty cursor means beginning of time). An empty scanToken
	// starts a scan; a non-empty returned scan token means more batches
	// remain and must be passed back to continue. nextCursor is the
	// cursor to persist once the whole scan has been applied; it is
	// only meaningful on the final batch (empty returned scan token).
	FetchSince(ctx context.Context, cursor, scanToken string) (records []domain.ExternalRecord, nextScan, nextCursor string, err error)

	// ListIDs returns one batch of live record IDs for a kind, with a
	// token for the next batch (empty when the listing is complete).
	// Used by full reconciliation to detect deletions.
	ListIDs(ctx context.Context, kind domain.RecordKind, pageToken string) (ids []string, nextPage string, err error)

	// RecordURL returns the user-facing URL for a record. Pure string
	// construction, no network call.
	RecordURL(recordID string) string
}

// TimeWindow bounds an availability search.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// TimeSlot is one free interval returned by availability lookup.
type TimeSlot struct {
	Start time.Time
	End   time.Time
}

// CalendarService is the calendar adapter consumed by workflow steps.
type CalendarService interface {
	// ServiceID returns the budget/service identifier.
	ServiceID() string

	// CreateEvent creates an event and returns its external ID.
	// Attendees are resolved addresses, not display names.
	CreateEvent(ctx context.Context, title string, start, end time.Time, attendees []string) (string, error)

	// DeleteEvent removes an event. Used as the compensation action.
	DeleteEvent(ctx context.Context, eventID string) error

	// FindAvailability returns free slots common to all attendees
	// within the window.
	FindAvailability(ctx context.Context, attendees []string, window TimeWindow) ([]TimeSlot, error)
}

// ChatService is the chat-platform adapter consumed by workflow steps
// and thread-mapping creation.
type ChatService interface {
	// ServiceID returns the budget/service identifier.
	ServiceID() string

	// CreateScheduledEvent creates a platform event and returns its ID.
	CreateScheduledEvent(ctx context.Context, title, description string, start time.Time, duration time.Duration) (string, error)

	// DeleteScheduledEvent removes a platform event. Used as the
	// compensation action.
	DeleteScheduledEvent(ctx context.Context, eventID string) error

	// CreateThread opens a discussion thread in a channel and returns
	// the thread ID.
	CreateThread(ctx context.Context, channelID, title string) (string, error)

	// PostMessage posts to a thread (or channel).
	PostMessage(ctx context.Context, threadID, content string) error
}

// AddressBook resolves participant display names to calendar-invite
// addresses. Resolution data is an external capability (a configured
// mapping table); the core never guesses addresses.
type AddressBook interface {
	// Resolve returns the address for a display name.
	Resolve(name string) (string, bool)
}
