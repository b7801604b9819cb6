// Package notion adapts Notion databases to the record source port.
// Each record kind maps to one configured database. Page properties are
// normalized into domain fields on the way in and reconstructed as
// Notion properties on the way out.
//
// The connector translates wire formats only. Rate limiting and retries
// belong to the rate-limited client that issues every call.
package notion

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/core/ports/driven"
)

// queryPageSize is the batch size for database queries.
const queryPageSize = 100

// Ensure Connector implements the interface.
var _ driven.RecordSource = (*Connector)(nil)

// Databases maps record kinds to Notion database IDs. Kinds with an
// empty ID are not served by this connector.
type Databases struct {
	TaskDatabaseID     string
	MeetingDatabaseID  string
	DocumentDatabaseID string
}

// Connector is the Notion record source.
type Connector struct {
	client    *notionapi.Client
	databases map[domain.RecordKind]notionapi.DatabaseID
	kinds     []domain.RecordKind
}

// New creates a Notion connector for the configured databases. Options
// are passed through to the underlying API client.
func New(token string, dbs Databases, opts ...notionapi.ClientOption) *Connector {
	c := &Connector{
		client:    notionapi.NewClient(notionapi.Token(token), opts...),
		databases: make(map[domain.RecordKind]notionapi.DatabaseID),
	}
	for _, entry := range []struct {
		kind domain.RecordKind
		id   string
	}{
		{domain.KindTask, dbs.TaskDatabaseID},
		{domain.KindMeeting, dbs.MeetingDatabaseID},
		{domain.KindDocument, dbs.DocumentDatabaseID},
	} {
		if entry.id == "" {
			continue
		}
		c.databases[entry.kind] = notionapi.DatabaseID(entry.id)
		c.kinds = append(c.kinds, entry.kind)
	}
	return c
}

// ServiceID returns the budget/service identifier.
func (c *Connector) ServiceID() string {
	return driven.ServiceNotion
}

// Kinds returns the record kinds with a configured database.
func (c *Connector) Kinds() []domain.RecordKind {
	out := make([]domain.RecordKind, len(c.kinds))
	copy(out, c.kinds)
	return out
}

// CreateRecord creates a page in the kind's database and returns its ID.
func (c *Connector) CreateRecord(ctx context.Context, kind domain.RecordKind, fields domain.Fields) (string, error) {
	dbID, err := c.databaseFor(kind)
	if err != nil {
		return "", err
	}
	page, err := c.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{Type: notionapi.ParentTypeDatabaseID, DatabaseID: dbID},
		Properties: toProperties(fields),
	})
	if err != nil {
		return "", mapError(err)
	}
	return string(page.ID), nil
}

// UpdateRecord overwrites the given properties on an existing page.
func (c *Connector) UpdateRecord(ctx context.Context, recordID string, fields domain.Fields) error {
	_, err := c.client.Page.Update(ctx, notionapi.PageID(recordID), &notionapi.PageUpdateRequest{
		Properties: toProperties(fields),
	})
	return mapError(err)
}

// ArchiveRecord archives a page. Notion has no hard delete over the API.
func (c *Connector) ArchiveRecord(ctx context.Context, recordID string) error {
	_, err := c.client.Page.Update(ctx, notionapi.PageID(recordID), &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{},
		Archived:   true,
	})
	return mapError(err)
}

// FetchRecord returns the current value of one page.
func (c *Connector) FetchRecord(ctx context.Context, recordID string) (*domain.ExternalRecord, error) {
	page, err := c.client.Page.Get(ctx, notionapi.PageID(recordID))
	if err != nil {
		return nil, mapError(err)
	}
	kind, ok := c.kindFor(page.Parent.DatabaseID)
	if !ok {
		return nil, fmt.Errorf("page %s is not in a configured database: %w", recordID, domain.ErrInvalidInput)
	}
	rec := recordFromPage(page, kind)
	return &rec, nil
}

// scanState is the position of an in-progress FetchSince scan: which
// database is being walked, the query cursor within it, and the newest
// edit seen so far. It round-trips through the opaque scan token so a
// scan survives across invocations.
type scanState struct {
	kindIdx int
	latest  time.Time
	page    notionapi.Cursor
}

func (s scanState) encode() string {
	latest := ""
	if !s.latest.IsZero() {
		latest = s.latest.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%d|%s|%s", s.kindIdx, latest, s.page)
}

func decodeScanToken(token string) (scanState, error) {
	parts := strings.SplitN(token, "|", 3)
	if len(parts) != 3 {
		return scanState{}, fmt.Errorf("malformed scan token %q: %w", token, domain.ErrInvalidInput)
	}
	idx, err := strconv.Atoi(parts[0])
	if err != nil {
		return scanState{}, fmt.Errorf("malformed scan token %q: %w", token, domain.ErrInvalidInput)
	}
	s := scanState{kindIdx: idx, page: notionapi.Cursor(parts[2])}
	if parts[1] != "" {
		t, err := time.Parse(time.RFC3339Nano, parts[1])
		if err != nil {
			return scanState{}, fmt.Errorf("malformed scan token %q: %w", token, domain.ErrInvalidInput)
		}
		s.latest = t
	}
	return s, nil
}

// FetchSince returns one batch of pages edited since the cursor. The
// cursor is the RFC 3339 timestamp of the newest edit applied so far;
// Notion exposes no change feed, so each database is queried
// newest-first and the scan stops at the first page at or below the
// cutoff. One invocation issues exactly one query, so every batch
// passes through the caller's rate budget.
func (c *Connector) FetchSince(ctx context.Context, cursor, scanToken string) ([]domain.ExternalRecord, string, string, error) {
	var cutoff time.Time
	if cursor != "" {
		t, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return nil, "", "", fmt.Errorf("malformed cursor %q: %w", cursor, domain.ErrInvalidInput)
		}
		cutoff = t
	}

	state := scanState{latest: cutoff}
	if scanToken != "" {
		s, err := decodeScanToken(scanToken)
		if err != nil {
			return nil, "", "", err
		}
		state = s
	}
	if state.kindIdx >= len(c.kinds) {
		return nil, "", nextCursor(cursor, cutoff, state.latest), nil
	}

	kind := c.kinds[state.kindIdx]
	resp, err := c.client.Database.Query(ctx, c.databases[kind], &notionapi.DatabaseQueryRequest{
		Sorts: []notionapi.SortObject{
			{Timestamp: notionapi.TimestampLastEdited, Direction: notionapi.SortOrderDESC},
		},
		PageSize:    queryPageSize,
		StartCursor: state.page,
	})
	if err != nil {
		return nil, "", "", mapError(err)
	}

	var records []domain.ExternalRecord
	reachedCutoff := false
	for i := range resp.Results {
		page := &resp.Results[i]
		if !cutoff.IsZero() && !page.LastEditedTime.After(cutoff) {
			reachedCutoff = true
			break
		}
		if page.LastEditedTime.After(state.latest) {
			state.latest = page.LastEditedTime
		}
		records = append(records, recordFromPage(page, kind))
	}

	if reachedCutoff || !resp.HasMore {
		state.kindIdx++
		state.page = ""
	} else {
		state.page = resp.NextCursor
	}

	if state.kindIdx >= len(c.kinds) {
		return records, "", nextCursor(cursor, cutoff, state.latest), nil
	}
	return records, state.encode(), "", nil
}

// nextCursor keeps the stored cursor when the scan saw nothing newer.
func nextCursor(cursor string, cutoff, latest time.Time) string {
	if latest.After(cutoff) {
		return latest.UTC().Format(time.RFC3339Nano)
	}
	return cursor
}

// ListIDs returns one batch of live page IDs for a kind. Archived pages
// are not returned by database queries, so the union of batches is the
// live set.
func (c *Connector) ListIDs(ctx context.Context, kind domain.RecordKind, pageToken string) ([]string, string, error) {
	dbID, err := c.databaseFor(kind)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.client.Database.Query(ctx, dbID, &notionapi.DatabaseQueryRequest{
		PageSize:    queryPageSize,
		StartCursor: notionapi.Cursor(pageToken),
	})
	if err != nil {
		return nil, "", mapError(err)
	}
	ids := make([]string, 0, len(resp.Results))
	for _, page := range resp.Results {
		ids = append(ids, string(page.ID))
	}
	if resp.HasMore {
		return ids, string(resp.NextCursor), nil
	}
	return ids, "", nil
}

// RecordURL returns the canonical page URL.
func (c *Connector) RecordURL(recordID string) string {
	return "https://www.notion.so/" + strings.ReplaceAll(recordID, "-", "")
}

func (c *Connector) databaseFor(kind domain.RecordKind) (notionapi.DatabaseID, error) {
	dbID, ok := c.databases[kind]
	if !ok {
		return "", fmt.Errorf("no database configured for kind %q: %w", kind, domain.ErrInvalidInput)
	}
	return dbID, nil
}

func (c *Connector) kindFor(dbID notionapi.DatabaseID) (domain.RecordKind, bool) {
	for kind, id := range c.databases {
		if id == dbID {
			return kind, true
		}
	}
	return "", false
}
