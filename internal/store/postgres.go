package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/sgerhart/alertflux/internal/model"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS events (
		event_id      TEXT PRIMARY KEY,
		external_id   TEXT NOT NULL DEFAULT '',
		action        TEXT NOT NULL,
		received_at   TIMESTAMPTZ NOT NULL,
		level         INTEGER NOT NULL DEFAULT 0,
		title         TEXT NOT NULL DEFAULT '',
		description   TEXT NOT NULL DEFAULT '',
		resource_name TEXT NOT NULL DEFAULT '',
		resource_id   TEXT NOT NULL DEFAULT '',
		resource_type TEXT NOT NULL DEFAULT '',
		item          TEXT NOT NULL DEFAULT '',
		source_id     TEXT NOT NULL DEFAULT '',
		service       TEXT NOT NULL DEFAULT '',
		location      TEXT NOT NULL DEFAULT '',
		event_type    TEXT NOT NULL DEFAULT '',
		labels        JSONB,
		tags          JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_received_at ON events (received_at)`,
	`CREATE INDEX IF NOT EXISTS idx_events_external_id ON events (external_id)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		alert_id         TEXT PRIMARY KEY,
		fingerprint      TEXT NOT NULL,
		rule_id          BIGINT NOT NULL,
		status           TEXT NOT NULL,
		level            INTEGER NOT NULL DEFAULT 0,
		title            TEXT NOT NULL DEFAULT '',
		content          TEXT NOT NULL DEFAULT '',
		is_session_alert BOOLEAN NOT NULL DEFAULT FALSE,
		session_status   TEXT NOT NULL DEFAULT '',
		session_end_time TIMESTAMPTZ,
		first_event_time TIMESTAMPTZ NOT NULL,
		last_event_time  TIMESTAMPTZ NOT NULL,
		version          BIGINT NOT NULL DEFAULT 1,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_fingerprint ON alerts (fingerprint)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_rule_id ON alerts (rule_id)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts (status)`,
	`CREATE TABLE IF NOT EXISTS alert_events (
		alert_id TEXT NOT NULL REFERENCES alerts(alert_id),
		event_id TEXT NOT NULL,
		PRIMARY KEY (alert_id, event_id)
	)`,
}

const eventColumns = `event_id, external_id, action, received_at, level, title, description,
	resource_name, resource_id, resource_type, item, source_id, service, location,
	event_type, labels, tags`

const alertColumns = `alert_id, fingerprint, rule_id, status, level, title, content,
	is_session_alert, session_status, session_end_time, first_event_time,
	last_event_time, version, created_at, updated_at`

const insertEventStmt = `INSERT INTO events (` + eventColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (event_id) DO NOTHING`

// PostgresStore persists events and alerts in PostgreSQL.
type PostgresStore struct {
	db        *sql.DB
	batchSize int
	logger    *slog.Logger
}

// NewPostgresStore opens a connection pool, verifies connectivity, and
// applies the schema.
func NewPostgresStore(dsn string, batchSize int, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if batchSize <= 0 {
		batchSize = DefaultWriteBatchSize
	}

	s := &PostgresStore{db: db, batchSize: batchSize, logger: logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Health checks database connectivity.
func (s *PostgresStore) Health() error {
	return s.db.Ping()
}

// InsertEvents writes the batch in chunks, one transaction per chunk, and
// skips event ids already present.
func (s *PostgresStore) InsertEvents(events []model.Event) error {
	for start := 0; start < len(events); start += s.batchSize {
		end := start + s.batchSize
		if end > len(events) {
			end = len(events)
		}
		if err := s.insertEventChunk(events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) insertEventChunk(events []model.Event) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin event insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(insertEventStmt)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for i := range events {
		ev := &events[i]
		labels, err := marshalJSONMap(ev.Labels)
		if err != nil {
			return fmt.Errorf("failed to serialize labels for event %s: %w", ev.EventID, err)
		}
		tags, err := marshalJSONMap(ev.Tags)
		if err != nil {
			return fmt.Errorf("failed to serialize tags for event %s: %w", ev.EventID, err)
		}

		_, err = stmt.Exec(
			ev.EventID, ev.ExternalID, string(ev.Action), ev.ReceivedAt.UTC(), ev.Level,
			ev.Title, ev.Description, ev.ResourceName, ev.ResourceID, ev.ResourceType,
			ev.Item, ev.SourceID, ev.Service, ev.Location, ev.EventType, labels, tags,
		)
		if err != nil {
			return fmt.Errorf("failed to insert event %s: %w", ev.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event insert: %w", err)
	}
	return nil
}

// ListCreatedEventsSince returns CREATED events with received_at at or after
// since, ordered by received_at.
func (s *PostgresStore) ListCreatedEventsSince(since time.Time) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE received_at >= $1 AND action = 'created'
		ORDER BY received_at, event_id`

	rows, err := s.db.Query(query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEventsByIDs returns the events for the given ids, ordered by
// received_at.
func (s *PostgresStore) ListEventsByIDs(ids []string) ([]model.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + eventColumns + ` FROM events
		WHERE event_id = ANY($1)
		ORDER BY received_at, event_id`

	rows, err := s.db.Query(query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query events by ids: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// CreateAlert inserts a new alert row.
func (s *PostgresStore) CreateAlert(alert *model.Alert) error {
	if alert.AlertID == "" {
		return fmt.Errorf("alert without alert_id")
	}

	now := time.Now().UTC()
	if alert.Version <= 0 {
		alert.Version = 1
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	if alert.UpdatedAt.IsZero() {
		alert.UpdatedAt = now
	}

	query := `INSERT INTO alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := s.db.Exec(query,
		alert.AlertID, alert.Fingerprint, alert.RuleID, string(alert.Status), alert.Level,
		alert.Title, alert.Content, alert.IsSessionAlert, string(alert.SessionStatus),
		nullableTime(alert.SessionEndTime), alert.FirstEventTime.UTC(),
		alert.LastEventTime.UTC(), alert.Version, alert.CreatedAt, alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", alert.AlertID, err)
	}
	return nil
}

// GetAlert returns the alert or ErrNotFound.
func (s *PostgresStore) GetAlert(alertID string) (*model.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE alert_id = $1`

	alert, err := scanAlert(s.db.QueryRow(query, alertID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert %s: %w", alertID, err)
	}
	return alert, nil
}

// ListAlerts returns alerts matching the filter ordered by creation time.
func (s *PostgresStore) ListAlerts(filter AlertFilter) ([]model.Alert, error) {
	var conditions []string
	var args []any
	next := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.RuleID != 0 {
		next("rule_id = $%d", filter.RuleID)
	}
	if filter.Fingerprint != "" {
		next("fingerprint = $%d", filter.Fingerprint)
	}
	if len(filter.Statuses) > 0 {
		next("status = ANY($%d)", pq.Array(statusStrings(filter.Statuses)))
	}
	if filter.ActiveOnly {
		next("status = ANY($%d)", pq.Array(statusStrings(model.ActivateStatuses)))
	}
	if filter.SessionOnly {
		conditions = append(conditions, "is_session_alert = TRUE")
	}
	if filter.SessionStatus != model.SessionNone {
		next("session_status = $%d", string(filter.SessionStatus))
	}
	if filter.SessionEndBefore != nil {
		next("(session_end_time IS NOT NULL AND session_end_time <= $%d)", filter.SessionEndBefore.UTC())
	}
	if filter.LastEventBefore != nil {
		next("last_event_time <= $%d", filter.LastEventBefore.UTC())
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, alert_id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// UpdateAlert writes the named fields guarded by the alert's version. On a
// lost race it returns ErrVersionConflict without writing anything.
func (s *PostgresStore) UpdateAlert(alert *model.Alert, fields ...string) error {
	if len(fields) == 0 {
		return fmt.Errorf("update of alert %s names no fields", alert.AlertID)
	}

	var set []string
	var args []any
	for _, f := range fields {
		if !UpdatableAlertFields[f] {
			return fmt.Errorf("unknown alert field %q", f)
		}
		args = append(args, alertFieldValue(alert, f))
		set = append(set, fmt.Sprintf("%s = $%d", f, len(args)))
	}
	set = append(set, "version = version + 1", "updated_at = NOW()")

	args = append(args, alert.AlertID)
	alertIDPos := len(args)
	args = append(args, alert.Version)
	versionPos := len(args)

	query := fmt.Sprintf(
		`UPDATE alerts SET %s WHERE alert_id = $%d AND version = $%d RETURNING version, updated_at`,
		strings.Join(set, ", "), alertIDPos, versionPos,
	)

	err := s.db.QueryRow(query, args...).Scan(&alert.Version, &alert.UpdatedAt)
	if err == sql.ErrNoRows {
		var exists bool
		if checkErr := s.db.QueryRow(
			"SELECT EXISTS(SELECT 1 FROM alerts WHERE alert_id = $1)", alert.AlertID,
		).Scan(&exists); checkErr != nil {
			return fmt.Errorf("failed to check alert %s: %w", alert.AlertID, checkErr)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("failed to update alert %s: %w", alert.AlertID, err)
	}
	return nil
}

// LinkEvents associates the event ids to the alert, skipping existing links.
func (s *PostgresStore) LinkEvents(alertID string, eventIDs []string) error {
	if exists, err := s.alertExists(alertID); err != nil {
		return err
	} else if !exists {
		return ErrNotFound
	}
	if len(eventIDs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin event link: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(
		`INSERT INTO alert_events (alert_id, event_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare event link: %w", err)
	}
	defer stmt.Close()

	for _, id := range eventIDs {
		if _, err := stmt.Exec(alertID, id); err != nil {
			return fmt.Errorf("failed to link event %s to alert %s: %w", id, alertID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event link: %w", err)
	}
	return nil
}

// ListAlertEventIDs returns the alert's linked event ids, sorted.
func (s *PostgresStore) ListAlertEventIDs(alertID string) ([]string, error) {
	if exists, err := s.alertExists(alertID); err != nil {
		return nil, err
	} else if !exists {
		return nil, ErrNotFound
	}

	rows, err := s.db.Query(
		"SELECT event_id FROM alert_events WHERE alert_id = $1 ORDER BY event_id", alertID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert event ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event ids: %w", err)
	}
	return ids, nil
}

// ListEventsByAlert returns the alert's linked events ordered by received_at.
func (s *PostgresStore) ListEventsByAlert(alertID string) ([]model.Event, error) {
	if exists, err := s.alertExists(alertID); err != nil {
		return nil, err
	} else if !exists {
		return nil, ErrNotFound
	}

	query := `SELECT ` + prefixColumns("e", eventColumns) + `
		FROM alert_events ae
		JOIN events e ON e.event_id = ae.event_id
		WHERE ae.alert_id = $1
		ORDER BY e.received_at, e.event_id`

	rows, err := s.db.Query(query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListActiveAlertsByEventExternalIDs finds active alerts owning at least one
// event with a matching external_id.
func (s *PostgresStore) ListActiveAlertsByEventExternalIDs(externalIDs []string) ([]model.Alert, error) {
	ids := nonEmpty(externalIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT DISTINCT ` + prefixColumns("a", alertColumns) + `
		FROM alerts a
		JOIN alert_events ae ON ae.alert_id = a.alert_id
		JOIN events e ON e.event_id = ae.event_id
		WHERE a.status = ANY($1) AND e.external_id = ANY($2)
		ORDER BY a.created_at, a.alert_id`

	rows, err := s.db.Query(query, pq.Array(statusStrings(model.ActivateStatuses)), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts by external ids: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// FindActiveAlertsWithEventsByExternalIDs finds active alerts owning at
// least one CREATED event with a matching external_id and returns each with
// its full event set. Three bulk queries regardless of batch size.
func (s *PostgresStore) FindActiveAlertsWithEventsByExternalIDs(externalIDs []string) ([]AlertEvents, error) {
	ids := nonEmpty(externalIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	idQuery := `SELECT DISTINCT a.alert_id
		FROM alerts a
		JOIN alert_events ae ON ae.alert_id = a.alert_id
		JOIN events e ON e.event_id = ae.event_id
		WHERE a.status = ANY($1) AND e.action = 'created' AND e.external_id = ANY($2)`

	rows, err := s.db.Query(idQuery, pq.Array(statusStrings(model.ActivateStatuses)), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate alerts: %w", err)
	}
	var alertIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan alert id: %w", err)
		}
		alertIDs = append(alertIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating candidate alerts: %w", err)
	}
	rows.Close()

	if len(alertIDs) == 0 {
		return nil, nil
	}

	alertRows, err := s.db.Query(
		`SELECT `+alertColumns+` FROM alerts WHERE alert_id = ANY($1) ORDER BY created_at, alert_id`,
		pq.Array(alertIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer alertRows.Close()
	alerts, err := scanAlerts(alertRows)
	if err != nil {
		return nil, err
	}

	eventQuery := `SELECT ae.alert_id, ` + prefixColumns("e", eventColumns) + `
		FROM alert_events ae
		JOIN events e ON e.event_id = ae.event_id
		WHERE ae.alert_id = ANY($1)
		ORDER BY e.received_at, e.event_id`

	eventRows, err := s.db.Query(eventQuery, pq.Array(alertIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer eventRows.Close()

	eventsByAlert := make(map[string][]model.Event, len(alertIDs))
	for eventRows.Next() {
		var alertID string
		ev, err := scanEventWith(eventRows, &alertID)
		if err != nil {
			return nil, err
		}
		eventsByAlert[alertID] = append(eventsByAlert[alertID], ev)
	}
	if err := eventRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert events: %w", err)
	}

	out := make([]AlertEvents, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, AlertEvents{Alert: a, Events: eventsByAlert[a.AlertID]})
	}
	return out, nil
}

// Stats reports store counts for health endpoints.
func (s *PostgresStore) Stats() map[string]any {
	stats := make(map[string]any)

	collect := func(key, query string, args ...any) {
		var n int64
		if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
			s.logger.Warn("failed to collect store stat", "stat", key, "error", err)
			return
		}
		stats[key] = n
	}

	collect("events", "SELECT COUNT(*) FROM events")
	collect("alerts", "SELECT COUNT(*) FROM alerts")
	collect("active_alerts", "SELECT COUNT(*) FROM alerts WHERE status = ANY($1)",
		pq.Array(statusStrings(model.ActivateStatuses)))
	return stats
}

func (s *PostgresStore) alertExists(alertID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM alerts WHERE alert_id = $1)", alertID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check alert %s: %w", alertID, err)
	}
	return exists, nil
}

func alertFieldValue(alert *model.Alert, field string) any {
	switch field {
	case "status":
		return string(alert.Status)
	case "level":
		return alert.Level
	case "title":
		return alert.Title
	case "content":
		return alert.Content
	case "session_status":
		return string(alert.SessionStatus)
	case "session_end_time":
		return nullableTime(alert.SessionEndTime)
	case "first_event_time":
		return alert.FirstEventTime.UTC()
	case "last_event_time":
		return alert.LastEventTime.UTC()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*model.Alert, error) {
	var a model.Alert
	var status, sessionStatus string
	var sessionEnd sql.NullTime

	err := row.Scan(
		&a.AlertID, &a.Fingerprint, &a.RuleID, &status, &a.Level, &a.Title, &a.Content,
		&a.IsSessionAlert, &sessionStatus, &sessionEnd, &a.FirstEventTime,
		&a.LastEventTime, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = model.AlertStatus(status)
	a.SessionStatus = model.SessionStatus(sessionStatus)
	if sessionEnd.Valid {
		t := sessionEnd.Time
		a.SessionEndTime = &t
	}
	return &a, nil
}

func scanAlerts(rows *sql.Rows) ([]model.Alert, error) {
	var out []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return out, nil
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	var out []model.Event
	for rows.Next() {
		ev, err := scanEventWith(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return out, nil
}

// scanEventWith scans an event row, optionally preceded by extra leading
// columns (e.g. the alert_id of a join row).
func scanEventWith(rows *sql.Rows, leading ...any) (model.Event, error) {
	var ev model.Event
	var action string
	var labels, tags []byte

	dest := append(leading,
		&ev.EventID, &ev.ExternalID, &action, &ev.ReceivedAt, &ev.Level, &ev.Title,
		&ev.Description, &ev.ResourceName, &ev.ResourceID, &ev.ResourceType, &ev.Item,
		&ev.SourceID, &ev.Service, &ev.Location, &ev.EventType, &labels, &tags,
	)
	if err := rows.Scan(dest...); err != nil {
		return model.Event{}, fmt.Errorf("failed to scan event: %w", err)
	}

	ev.Action = model.EventAction(action)
	if len(labels) > 0 {
		if err := json.Unmarshal(labels, &ev.Labels); err != nil {
			return model.Event{}, fmt.Errorf("failed to decode labels for event %s: %w", ev.EventID, err)
		}
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &ev.Tags); err != nil {
			return model.Event{}, fmt.Errorf("failed to decode tags for event %s: %w", ev.EventID, err)
		}
	}
	return ev, nil
}

// prefixColumns qualifies each column in a comma-separated list with a table
// alias, for joins that project the full column set.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func marshalJSONMap(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func statusStrings(statuses []model.AlertStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nonEmpty(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
