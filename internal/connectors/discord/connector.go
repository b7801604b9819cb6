// Package discord adapts the Discord REST API to the chat service port:
// guild scheduled events for meeting announcements, threads and messages
// for record discussions.
//
// The connector translates wire formats only. Rate limiting and retries
// belong to the rate-limited client that issues every call.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/core/ports/driven"
)

const defaultBaseURL = "https://discord.com/api/v10"

// Discord API constants for guild scheduled events.
const (
	privacyLevelGuildOnly = 2
	entityTypeExternal    = 3

	// publicThreadType creates a thread visible to the whole channel.
	publicThreadType = 11

	// threadAutoArchiveMinutes keeps discussion threads open for a week.
	threadAutoArchiveMinutes = 10080
)

// Ensure Connector implements the interface.
var _ driven.ChatService = (*Connector)(nil)

// Options configures the connector. BotToken and GuildID are required;
// BaseURL and HTTPClient default to the public API and a 20s client.
type Options struct {
	BotToken   string
	GuildID    string
	BaseURL    string
	HTTPClient *http.Client
}

// Connector is the Discord chat adapter.
type Connector struct {
	baseURL    string
	token      string
	guildID    string
	httpClient *http.Client
}

// New creates a Discord connector.
func New(opts Options) *Connector {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Connector{
		baseURL:    baseURL,
		token:      opts.BotToken,
		guildID:    opts.GuildID,
		httpClient: httpClient,
	}
}

// ServiceID returns the budget/service identifier.
func (c *Connector) ServiceID() string {
	return driven.ServiceDiscord
}

type scheduledEventRequest struct {
	Name               string         `json:"name"`
	Description        string         `json:"description,omitempty"`
	ScheduledStartTime string         `json:"scheduled_start_time"`
	ScheduledEndTime   string         `json:"scheduled_end_time"`
	PrivacyLevel       int            `json:"privacy_level"`
	EntityType         int            `json:"entity_type"`
	EntityMetadata     entityMetadata `json:"entity_metadata"`
}

type entityMetadata struct {
	Location string `json:"location"`
}

// CreateScheduledEvent creates an external guild event and returns its ID.
func (c *Connector) CreateScheduledEvent(ctx context.Context, title, description string, start time.Time, duration time.Duration) (string, error) {
	req := scheduledEventRequest{
		Name:               title,
		Description:        description,
		ScheduledStartTime: start.UTC().Format(time.RFC3339),
		ScheduledEndTime:   start.Add(duration).UTC().Format(time.RFC3339),
		PrivacyLevel:       privacyLevelGuildOnly,
		EntityType:         entityTypeExternal,
		EntityMetadata:     entityMetadata{Location: "see event details"},
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/guilds/"+c.guildID+"/scheduled-events", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// DeleteScheduledEvent removes a guild event. An already-removed event
// is treated as deleted, keeping the compensation path replay-safe.
func (c *Connector) DeleteScheduledEvent(ctx context.Context, eventID string) error {
	err := c.do(ctx, http.MethodDelete, "/guilds/"+c.guildID+"/scheduled-events/"+eventID, nil, nil)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// CreateThread opens a public thread in a channel and returns its ID.
func (c *Connector) CreateThread(ctx context.Context, channelID, title string) (string, error) {
	req := map[string]any{
		"name":                  title,
		"type":                  publicThreadType,
		"auto_archive_duration": threadAutoArchiveMinutes,
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/channels/"+channelID+"/threads", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// PostMessage posts to a thread or channel.
func (c *Connector) PostMessage(ctx context.Context, threadID, content string) error {
	req := map[string]any{"content": content}
	return c.do(ctx, http.MethodPost, "/channels/"+threadID+"/messages", req, nil)
}

// do issues one API call and maps the response into domain errors.
func (c *Connector) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", "DiscordBot (https://github.com/deskhub-io/deskhub, 0.1)")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return domain.Transient(err)
	}
	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return domain.Transient(readErr)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil {
			return nil
		}
		return json.Unmarshal(respBody, out)
	}
	return c.mapStatus(resp.StatusCode, respBody)
}

// mapStatus converts an error response into a domain error. Discord
// reports the rate-limit pause as a retry_after body field in seconds.
func (c *Connector) mapStatus(status int, body []byte) error {
	var parsed struct {
		Code       int     `json:"code"`
		Message    string  `json:"message"`
		RetryAfter float64 `json:"retry_after"`
	}
	_ = json.Unmarshal(body, &parsed)
	message := parsed.Message
	if message == "" {
		message = strings.TrimSpace(string(body))
	}

	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("discord: %s: %w", message, domain.ErrNotFound)
	case status == http.StatusTooManyRequests:
		retryAfter := time.Duration(parsed.RetryAfter * float64(time.Second))
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		return &domain.RateLimitError{ServiceID: driven.ServiceDiscord, RetryAfter: retryAfter}
	case status >= 500:
		return domain.Transient(fmt.Errorf("discord: status=%d message=%s", status, message))
	default:
		return fmt.Errorf("discord: status=%d code=%d message=%s", status, parsed.Code, message)
	}
}
