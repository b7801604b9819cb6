// Package google wires the Google API client used by the calendar
// connector and maps its errors into domain errors.
package google

import (
	"context"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// NewCalendarService creates a Calendar API service using the provided
// token source.
func NewCalendarService(ctx context.Context, ts oauth2.TokenSource) (*calendar.Service, error) {
	return calendar.NewService(ctx, option.WithTokenSource(ts))
}

// NewCalendarServiceFromToken creates a Calendar API service from a
// static OAuth2 access token.
func NewCalendarServiceFromToken(ctx context.Context, accessToken string) (*calendar.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	return NewCalendarService(ctx, ts)
}

// NewCalendarServiceFromCredentials creates a Calendar API service from
// a service account credentials file.
func NewCalendarServiceFromCredentials(ctx context.Context, credentialsFile string) (*calendar.Service, error) {
	return calendar.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(calendar.CalendarScope))
}
