// Package store persists events, alerts, and their associations. Two
// implementations exist: an in-memory store for tests and single-node runs,
// and a PostgreSQL store for production.
package store

import (
	"errors"
	"time"

	"github.com/sgerhart/alertflux/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when an optimistic alert update lost
	// the race: the row's version moved past the caller's copy. The caller
	// re-reads and retries on its next pass instead of clobbering.
	ErrVersionConflict = errors.New("alert version conflict")
)

// DefaultWriteBatchSize bounds bulk event writes per transaction.
const DefaultWriteBatchSize = 500

// AlertFilter narrows ListAlerts. Zero values mean no constraint.
type AlertFilter struct {
	RuleID           int64
	Fingerprint      string
	Statuses         []model.AlertStatus
	ActiveOnly       bool
	SessionOnly      bool
	SessionStatus    model.SessionStatus
	SessionEndBefore *time.Time
	LastEventBefore  *time.Time
	Limit            int
}

// AlertEvents bundles an alert with its full member event set, ordered by
// received_at. Used by the batch recovery path to build its indices from a
// bounded number of queries.
type AlertEvents struct {
	Alert  model.Alert
	Events []model.Event
}

// Store is the persistence surface the aggregation engine runs against.
type Store interface {
	// Events are write-once: InsertEvents skips ids it has already seen so
	// at-least-once delivery cannot duplicate rows.
	InsertEvents(events []model.Event) error
	ListCreatedEventsSince(since time.Time) ([]model.Event, error)
	ListEventsByIDs(ids []string) ([]model.Event, error)

	CreateAlert(alert *model.Alert) error
	GetAlert(alertID string) (*model.Alert, error)
	ListAlerts(filter AlertFilter) ([]model.Alert, error)

	// UpdateAlert persists only the named fields, guarded by the alert's
	// version: on success the stored and in-memory versions advance by one,
	// otherwise ErrVersionConflict is returned and nothing is written.
	UpdateAlert(alert *model.Alert, fields ...string) error

	// LinkEvents associates events to an alert; already-linked ids are
	// skipped so reprocessing a batch never duplicates associations.
	LinkEvents(alertID string, eventIDs []string) error
	ListAlertEventIDs(alertID string) ([]string, error)
	ListEventsByAlert(alertID string) ([]model.Event, error)

	// ListActiveAlertsByEventExternalIDs finds active alerts owning at
	// least one event whose external_id is in the given set.
	ListActiveAlertsByEventExternalIDs(externalIDs []string) ([]model.Alert, error)

	// FindActiveAlertsWithEventsByExternalIDs is the batch recovery lookup:
	// active alerts owning at least one CREATED event with a matching
	// external_id, each returned with its full event set.
	FindActiveAlertsWithEventsByExternalIDs(externalIDs []string) ([]AlertEvents, error)

	Stats() map[string]any
	Close() error
}

// UpdatableAlertFields names the columns UpdateAlert may write. Anything
// else is a programming defect surfaced as an error.
var UpdatableAlertFields = map[string]bool{
	"status":           true,
	"level":            true,
	"title":            true,
	"content":          true,
	"session_status":   true,
	"session_end_time": true,
	"first_event_time": true,
	"last_event_time":  true,
}
