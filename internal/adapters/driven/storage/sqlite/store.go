package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/deskhub-io/deskhub/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides access to all
// cache and workflow store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.deskhub/data/deskhub.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".deskhub", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "deskhub.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// PageStore returns a PageStore interface backed by this store.
func (s *Store) PageStore() driven.PageStore {
	return &pageStore{store: s}
}

// ThreadStore returns a ThreadStore interface backed by this store.
func (s *Store) ThreadStore() driven.ThreadStore {
	return &threadStore{store: s}
}

// CursorStore returns a CursorStore interface backed by this store.
func (s *Store) CursorStore() driven.CursorStore {
	return &cursorStore{store: s}
}

// WorkflowStore returns a WorkflowStore interface backed by this store.
func (s *Store) WorkflowStore() driven.WorkflowStore {
	return &workflowStore{store: s}
}

// SchedulerStore returns a SchedulerStore interface backed by this store.
func (s *Store) SchedulerStore() driven.SchedulerStore {
	return &schedulerStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Page Store ====================

// pageStore implements driven.PageStore.
type pageStore struct {
	store *Store
}

var _ driven.PageStore = (*pageStore)(nil)

// Save inserts or replaces a page.
func (s *pageStore) Save(ctx context.Context, page *domain.CachedPage) error {
	if page == nil || page.PageID == "" {
		return domain.ErrInvalidInput
	}

	fieldsJSON, err := json.Marshal(page.Fields)
	if err != nil {
		return fmt.Errorf("marshalling fields: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO pages (page_id, kind, title, owner, fields, created_at, last_synced_at, version, deleted, missed_cycles)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(page_id) DO UPDATE SET
			kind = excluded.kind,
			title = excluded.title,
			owner = excluded.owner,
			fields = excluded.fields,
			created_at = excluded.created_at,
			last_synced_at = excluded.last_synced_at,
			version = excluded.version,
			deleted = excluded.deleted,
			missed_cycles = excluded.missed_cycles
	`, page.PageID, string(page.Kind), page.Title, page.Owner, string(fieldsJSON),
		formatNullableTime(page.CreatedAt), formatNullableTime(page.LastSyncedAt),
		page.Version, boolToInt(page.Deleted), page.MissedCycles)

	if err != nil {
		return fmt.Errorf("saving page: %w", err)
	}
	return nil
}

// Get retrieves a page by ID.
func (s *pageStore) Get(ctx context.Context, pageID string) (*domain.CachedPage, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT page_id, kind, title, owner, fields, created_at, last_synced_at, version, deleted, missed_cycles
		FROM pages WHERE page_id = ?
	`, pageID)

	page, err := scanPage(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return page, nil
}

// List returns all pages of a kind, including deleted ones.
func (s *pageStore) List(ctx context.Context, kind domain.RecordKind) ([]domain.CachedPage, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT page_id, kind, title, owner, fields, created_at, last_synced_at, version, deleted, missed_cycles
		FROM pages WHERE kind = ?
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("querying pages: %w", err)
	}
	defer rows.Close()

	return collectPages(rows)
}

// ListAll returns every cached page.
func (s *pageStore) ListAll(ctx context.Context) ([]domain.CachedPage, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT page_id, kind, title, owner, fields, created_at, last_synced_at, version, deleted, missed_cycles
		FROM pages
	`)
	if err != nil {
		return nil, fmt.Errorf("querying pages: %w", err)
	}
	defer rows.Close()

	return collectPages(rows)
}

// scanPage scans one page row via the given scan function.
func scanPage(scan func(dest ...any) error) (*domain.CachedPage, error) {
	var page domain.CachedPage
	var kind, fieldsJSON string
	var createdAt, lastSyncedAt sql.NullString
	var deleted int

	if err := scan(&page.PageID, &kind, &page.Title, &page.Owner, &fieldsJSON,
		&createdAt, &lastSyncedAt, &page.Version, &deleted, &page.MissedCycles); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scanning page: %w", err)
	}

	page.Kind = domain.RecordKind(kind)
	if err := json.Unmarshal([]byte(fieldsJSON), &page.Fields); err != nil {
		return nil, fmt.Errorf("unmarshalling fields: %w", err)
	}
	page.CreatedAt = parseNullableTime(createdAt)
	page.LastSyncedAt = parseNullableTime(lastSyncedAt)
	page.Deleted = deleted == 1

	return &page, nil
}

// collectPages scans all remaining page rows.
func collectPages(rows *sql.Rows) ([]domain.CachedPage, error) {
	var pages []domain.CachedPage //nolint:prealloc // size unknown from query
	for rows.Next() {
		page, err := scanPage(rows.Scan)
		if err != nil {
			return nil, err
		}
		pages = append(pages, *page)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pages: %w", err)
	}

	return pages, nil
}

// ==================== Thread Store ====================

// threadStore implements driven.ThreadStore.
type threadStore struct {
	store *Store
}

var _ driven.ThreadStore = (*threadStore)(nil)

// Create inserts a mapping. Returns domain.ErrAlreadyExists if the page
// already has one.
func (s *threadStore) Create(ctx context.Context, mapping *domain.ThreadMapping) error {
	if mapping == nil || mapping.PageID == "" {
		return domain.ErrInvalidInput
	}

	res, err := s.store.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO thread_mappings (page_id, thread_id, bucket_key, created_at)
		VALUES (?, ?, ?, ?)
	`, mapping.PageID, mapping.ThreadID, mapping.BucketKey, formatNullableTime(mapping.CreatedAt))
	if err != nil {
		return fmt.Errorf("creating thread mapping: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking insert result: %w", err)
	}
	if affected == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// Get retrieves the mapping for a page.
func (s *threadStore) Get(ctx context.Context, pageID string) (*domain.ThreadMapping, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT page_id, thread_id, bucket_key, created_at
		FROM thread_mappings WHERE page_id = ?
	`, pageID)

	var mapping domain.ThreadMapping
	var createdAt sql.NullString
	if err := row.Scan(&mapping.PageID, &mapping.ThreadID, &mapping.BucketKey, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning thread mapping: %w", err)
	}
	mapping.CreatedAt = parseNullableTime(createdAt)

	return &mapping, nil
}

// ==================== Cursor Store ====================

// cursorStore implements driven.CursorStore.
type cursorStore struct {
	store *Store
}

var _ driven.CursorStore = (*cursorStore)(nil)

// Save stores or updates a cursor.
func (s *cursorStore) Save(ctx context.Context, cursor domain.SyncCursor) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (service_id, cursor, last_sync)
		VALUES (?, ?, ?)
		ON CONFLICT(service_id) DO UPDATE SET
			cursor = excluded.cursor,
			last_sync = excluded.last_sync
	`, cursor.ServiceID, cursor.Cursor, formatNullableTime(cursor.LastSync))

	if err != nil {
		return fmt.Errorf("saving sync cursor: %w", err)
	}
	return nil
}

// Get retrieves the cursor for a service.
func (s *cursorStore) Get(ctx context.Context, serviceID string) (*domain.SyncCursor, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT service_id, cursor, last_sync
		FROM sync_cursors WHERE service_id = ?
	`, serviceID)

	var cursor domain.SyncCursor
	var lastSync sql.NullString
	if err := row.Scan(&cursor.ServiceID, &cursor.Cursor, &lastSync); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning sync cursor: %w", err)
	}
	cursor.LastSync = parseNullableTime(lastSync)

	return &cursor, nil
}

// List returns all known cursors.
func (s *cursorStore) List(ctx context.Context) ([]domain.SyncCursor, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT service_id, cursor, last_sync
		FROM sync_cursors
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sync cursors: %w", err)
	}
	defer rows.Close()

	var cursors []domain.SyncCursor //nolint:prealloc // size unknown from query
	for rows.Next() {
		var cursor domain.SyncCursor
		var lastSync sql.NullString
		if err := rows.Scan(&cursor.ServiceID, &cursor.Cursor, &lastSync); err != nil {
			return nil, fmt.Errorf("scanning sync cursor: %w", err)
		}
		cursor.LastSync = parseNullableTime(lastSync)
		cursors = append(cursors, cursor)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync cursors: %w", err)
	}

	return cursors, nil
}

// ==================== Workflow Store ====================

// workflowStore implements driven.WorkflowStore.
type workflowStore struct {
	store *Store
}

var _ driven.WorkflowStore = (*workflowStore)(nil)

// Save archives a run (insert or replace by run ID).
func (s *workflowStore) Save(ctx context.Context, run *domain.WorkflowRun) error {
	if run == nil || run.RunID == "" {
		return domain.ErrInvalidInput
	}

	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("marshalling steps: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (run_id, operation, status, steps, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			operation = excluded.operation,
			status = excluded.status,
			steps = excluded.steps,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`, run.RunID, run.Operation, string(run.Status), string(stepsJSON),
		formatNullableTime(run.StartedAt), formatNullableTime(run.FinishedAt))

	if err != nil {
		return fmt.Errorf("saving workflow run: %w", err)
	}
	return nil
}

// Get retrieves an archived run.
func (s *workflowStore) Get(ctx context.Context, runID string) (*domain.WorkflowRun, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT run_id, operation, status, steps, started_at, finished_at
		FROM workflow_runs WHERE run_id = ?
	`, runID)

	var run domain.WorkflowRun
	var status, stepsJSON string
	var startedAt, finishedAt sql.NullString
	if err := row.Scan(&run.RunID, &run.Operation, &status, &stepsJSON, &startedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning workflow run: %w", err)
	}

	run.Status = domain.RunStatus(status)
	if err := json.Unmarshal([]byte(stepsJSON), &run.Steps); err != nil {
		return nil, fmt.Errorf("unmarshalling steps: %w", err)
	}
	run.StartedAt = parseNullableTime(startedAt)
	run.FinishedAt = parseNullableTime(finishedAt)

	return &run, nil
}

// Prune removes runs that finished before the given time.
func (s *workflowStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.store.db.ExecContext(ctx, `
		DELETE FROM workflow_runs
		WHERE finished_at IS NOT NULL AND finished_at < ?
	`, before.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("pruning workflow runs: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned runs: %w", err)
	}
	return int(affected), nil
}
