// Package calendar adapts Google Calendar to the calendar service port:
// event creation and deletion for workflow steps, plus free/busy lookup
// for availability queries.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/deskhub-io/deskhub/internal/connectors/google"
	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/core/ports/driven"
)

// Ensure Connector implements the interface.
var _ driven.CalendarService = (*Connector)(nil)

// Connector is the Google Calendar adapter.
type Connector struct {
	srv        *calendar.Service
	calendarID string
}

// New creates a connector over one calendar. An empty calendarID means
// the account's primary calendar.
func New(srv *calendar.Service, calendarID string) *Connector {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Connector{srv: srv, calendarID: calendarID}
}

// ServiceID returns the budget/service identifier.
func (c *Connector) ServiceID() string {
	return driven.ServiceCalendar
}

// CreateEvent creates an event and returns its ID. Attendees are
// resolved invite addresses.
func (c *Connector) CreateEvent(ctx context.Context, title string, start, end time.Time, attendees []string) (string, error) {
	event := &calendar.Event{
		Summary: title,
		Start:   &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:     &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
	}
	for _, addr := range attendees {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: addr})
	}

	created, err := c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", google.WrapError(driven.ServiceCalendar, err)
	}
	return created.Id, nil
}

// DeleteEvent removes an event. An already-removed event is treated as
// deleted, keeping the compensation path replay-safe.
func (c *Connector) DeleteEvent(ctx context.Context, eventID string) error {
	err := google.WrapError(driven.ServiceCalendar, c.srv.Events.Delete(c.calendarID, eventID).Context(ctx).Do())
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// FindAvailability returns the free intervals common to all attendees
// within the window, computed from a free/busy query.
func (c *Connector) FindAvailability(ctx context.Context, attendees []string, window driven.TimeWindow) ([]driven.TimeSlot, error) {
	if len(attendees) == 0 {
		return nil, fmt.Errorf("attendees: %w", domain.ErrInvalidInput)
	}
	if !window.End.After(window.Start) {
		return nil, fmt.Errorf("window: %w", domain.ErrInvalidInput)
	}

	req := &calendar.FreeBusyRequest{
		TimeMin: window.Start.Format(time.RFC3339),
		TimeMax: window.End.Format(time.RFC3339),
	}
	for _, addr := range attendees {
		req.Items = append(req.Items, &calendar.FreeBusyRequestItem{Id: addr})
	}

	resp, err := c.srv.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, google.WrapError(driven.ServiceCalendar, err)
	}

	var busy []driven.TimeSlot
	for _, cal := range resp.Calendars {
		for _, period := range cal.Busy {
			start, err := time.Parse(time.RFC3339, period.Start)
			if err != nil {
				return nil, fmt.Errorf("parsing busy period start: %w", err)
			}
			end, err := time.Parse(time.RFC3339, period.End)
			if err != nil {
				return nil, fmt.Errorf("parsing busy period end: %w", err)
			}
			busy = append(busy, driven.TimeSlot{Start: start, End: end})
		}
	}
	return freeSlots(window, busy), nil
}

// freeSlots subtracts the union of busy intervals from the window.
func freeSlots(window driven.TimeWindow, busy []driven.TimeSlot) []driven.TimeSlot {
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	var free []driven.TimeSlot
	cursor := window.Start
	for _, b := range busy {
		if !b.End.After(cursor) || !b.Start.Before(window.End) {
			continue
		}
		if b.Start.After(cursor) {
			free = append(free, driven.TimeSlot{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
		if !cursor.Before(window.End) {
			return free
		}
	}
	if cursor.Before(window.End) {
		free = append(free, driven.TimeSlot{Start: cursor, End: window.End})
	}
	return free
}
