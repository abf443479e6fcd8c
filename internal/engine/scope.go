// Package engine hosts the scan-scoped in-memory analytical store that
// aggregation queries run against.
package engine

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sgerhart/alertflux/internal/model"
)

const eventsTableDDL = `CREATE TABLE events (
    event_id TEXT,
    external_id TEXT,
    action TEXT,
    received_at TEXT,
    level INTEGER,
    title TEXT,
    description TEXT,
    resource_name TEXT,
    resource_id TEXT,
    resource_type TEXT,
    item TEXT,
    source_id TEXT,
    service TEXT,
    location TEXT,
    event_type TEXT,
    labels TEXT,
    tags TEXT
)`

const insertEventSQL = `INSERT INTO events (
    event_id, external_id, action, received_at, level, title, description,
    resource_name, resource_id, resource_type, item, source_id, service,
    location, event_type, labels, tags
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Result carries query output with the projection's column order preserved.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// Scope is one worker's private analytical engine session. A scope must not
// be shared across goroutines: an in-memory database exists per connection,
// so the pool is capped at a single connection to keep every statement of a
// scan on the same session and table.
type Scope struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewScope opens a fresh in-memory engine session.
func NewScope(logger *slog.Logger) (*Scope, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open analytical engine: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &Scope{db: db, logger: logger}, nil
}

// LoadEvents replaces the scope's events table with the given batch. Each
// scan has a different window, so the table is dropped and rebuilt rather
// than updated in place. The batch is expected to be non-empty: callers
// filter upstream, and an empty batch signals a broken filter, so it is
// logged and skipped instead of loaded.
func (s *Scope) LoadEvents(events []model.Event) error {
	if len(events) == 0 {
		s.logger.Warn("analytical scope received empty event batch, skipping load")
		return nil
	}

	if _, err := s.db.Exec("DROP TABLE IF EXISTS events"); err != nil {
		return fmt.Errorf("failed to drop events table: %w", err)
	}
	if _, err := s.db.Exec(eventsTableDDL); err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin event load: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(insertEventSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for i := range events {
		ev := &events[i]
		labels, err := marshalMap(ev.Labels)
		if err != nil {
			return fmt.Errorf("failed to serialize labels for event %s: %w", ev.EventID, err)
		}
		tags, err := marshalMap(ev.Tags)
		if err != nil {
			return fmt.Errorf("failed to serialize tags for event %s: %w", ev.EventID, err)
		}

		_, err = stmt.Exec(
			ev.EventID,
			ev.ExternalID,
			string(ev.Action),
			ev.ReceivedAt.UTC().Format(time.RFC3339),
			ev.Level,
			ev.Title,
			ev.Description,
			ev.ResourceName,
			ev.ResourceID,
			ev.ResourceType,
			ev.Item,
			ev.SourceID,
			ev.Service,
			ev.Location,
			ev.EventType,
			labels,
			tags,
		)
		if err != nil {
			return fmt.Errorf("failed to load event %s: %w", ev.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event load: %w", err)
	}
	return nil
}

// Execute runs an aggregation query and returns every row as a column→value
// map. Engine errors propagate to the caller: a malformed generated query is
// a programming defect, not a condition to recover from here.
func (s *Scope) Execute(query string) (*Result, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute aggregation query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	result := &Result{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		refs := make([]any, len(columns))
		for i := range values {
			refs[i] = &values[i]
		}
		if err := rows.Scan(refs...); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating result rows: %w", err)
	}
	return result, nil
}

// Close releases the engine session.
func (s *Scope) Close() error {
	return s.db.Close()
}

func marshalMap(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
