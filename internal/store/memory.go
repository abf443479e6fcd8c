package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sgerhart/alertflux/internal/model"
)

// MemoryStore keeps everything in process memory behind one RWMutex. It is
// the default store when no database is configured and the fixture store for
// tests. Reads return copies so callers never alias store-owned structs.
type MemoryStore struct {
	mu          sync.RWMutex
	events      map[string]model.Event
	eventOrder  []string
	alerts      map[string]*model.Alert
	alertOrder  []string
	alertEvents map[string]map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:      make(map[string]model.Event),
		alerts:      make(map[string]*model.Alert),
		alertEvents: make(map[string]map[string]struct{}),
	}
}

// InsertEvents stores the batch, skipping event ids already present.
func (m *MemoryStore) InsertEvents(events []model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ev := range events {
		if ev.EventID == "" {
			return fmt.Errorf("event without event_id")
		}
		if _, exists := m.events[ev.EventID]; exists {
			continue
		}
		m.events[ev.EventID] = ev
		m.eventOrder = append(m.eventOrder, ev.EventID)
	}
	return nil
}

// ListCreatedEventsSince returns CREATED events with received_at at or after
// since, ordered by received_at.
func (m *MemoryStore) ListCreatedEventsSince(since time.Time) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Event
	for _, id := range m.eventOrder {
		ev := m.events[id]
		if ev.Action != model.ActionCreated {
			continue
		}
		if ev.ReceivedAt.Before(since) {
			continue
		}
		out = append(out, ev)
	}
	sortEventsByTime(out)
	return out, nil
}

// ListEventsByIDs returns the events for the given ids, skipping unknown
// ids, ordered by received_at.
func (m *MemoryStore) ListEventsByIDs(ids []string) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Event, 0, len(ids))
	for _, id := range ids {
		if ev, ok := m.events[id]; ok {
			out = append(out, ev)
		}
	}
	sortEventsByTime(out)
	return out, nil
}

// CreateAlert stores a new alert, initializing version and timestamps.
func (m *MemoryStore) CreateAlert(alert *model.Alert) error {
	if alert.AlertID == "" {
		return fmt.Errorf("alert without alert_id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.alerts[alert.AlertID]; exists {
		return fmt.Errorf("alert %s already exists", alert.AlertID)
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

	cp := *alert
	m.alerts[alert.AlertID] = &cp
	m.alertOrder = append(m.alertOrder, alert.AlertID)
	return nil
}

// GetAlert returns a copy of the alert or ErrNotFound.
func (m *MemoryStore) GetAlert(alertID string) (*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.alerts[alertID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *stored
	return &cp, nil
}

// ListAlerts returns alerts matching the filter in creation order.
func (m *MemoryStore) ListAlerts(filter AlertFilter) ([]model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Alert
	for _, id := range m.alertOrder {
		a := m.alerts[id]
		if !matchesFilter(a, filter) {
			continue
		}
		out = append(out, *a)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// UpdateAlert writes the named fields if the caller's version still matches
// the stored row, then advances the version on both.
func (m *MemoryStore) UpdateAlert(alert *model.Alert, fields ...string) error {
	if len(fields) == 0 {
		return fmt.Errorf("update of alert %s names no fields", alert.AlertID)
	}
	for _, f := range fields {
		if !UpdatableAlertFields[f] {
			return fmt.Errorf("unknown alert field %q", f)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.alerts[alert.AlertID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != alert.Version {
		return ErrVersionConflict
	}

	for _, f := range fields {
		switch f {
		case "status":
			stored.Status = alert.Status
		case "level":
			stored.Level = alert.Level
		case "title":
			stored.Title = alert.Title
		case "content":
			stored.Content = alert.Content
		case "session_status":
			stored.SessionStatus = alert.SessionStatus
		case "session_end_time":
			stored.SessionEndTime = copyTimePtr(alert.SessionEndTime)
		case "first_event_time":
			stored.FirstEventTime = alert.FirstEventTime
		case "last_event_time":
			stored.LastEventTime = alert.LastEventTime
		}
	}

	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	alert.Version = stored.Version
	alert.UpdatedAt = stored.UpdatedAt
	return nil
}

// LinkEvents associates the event ids to the alert, skipping existing links.
func (m *MemoryStore) LinkEvents(alertID string, eventIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.alerts[alertID]; !ok {
		return ErrNotFound
	}

	links := m.alertEvents[alertID]
	if links == nil {
		links = make(map[string]struct{})
		m.alertEvents[alertID] = links
	}
	for _, id := range eventIDs {
		links[id] = struct{}{}
	}
	return nil
}

// ListAlertEventIDs returns the alert's linked event ids, sorted.
func (m *MemoryStore) ListAlertEventIDs(alertID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.alerts[alertID]; !ok {
		return nil, ErrNotFound
	}

	links := m.alertEvents[alertID]
	out := make([]string, 0, len(links))
	for id := range links {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// ListEventsByAlert returns the alert's linked events ordered by received_at.
func (m *MemoryStore) ListEventsByAlert(alertID string) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.alerts[alertID]; !ok {
		return nil, ErrNotFound
	}

	var out []model.Event
	for id := range m.alertEvents[alertID] {
		if ev, ok := m.events[id]; ok {
			out = append(out, ev)
		}
	}
	sortEventsByTime(out)
	return out, nil
}

// ListActiveAlertsByEventExternalIDs finds active alerts owning at least one
// event with a matching external_id.
func (m *MemoryStore) ListActiveAlertsByEventExternalIDs(externalIDs []string) ([]model.Alert, error) {
	idSet := toSet(externalIDs)
	if len(idSet) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Alert
	for _, alertID := range m.alertOrder {
		a := m.alerts[alertID]
		if !a.Status.IsActive() {
			continue
		}
		if m.alertOwnsExternalID(alertID, idSet, false) {
			out = append(out, *a)
		}
	}
	return out, nil
}

// FindActiveAlertsWithEventsByExternalIDs finds active alerts owning at
// least one CREATED event with a matching external_id and returns each with
// its full event set.
func (m *MemoryStore) FindActiveAlertsWithEventsByExternalIDs(externalIDs []string) ([]AlertEvents, error) {
	idSet := toSet(externalIDs)
	if len(idSet) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []AlertEvents
	for _, alertID := range m.alertOrder {
		a := m.alerts[alertID]
		if !a.Status.IsActive() {
			continue
		}
		if !m.alertOwnsExternalID(alertID, idSet, true) {
			continue
		}

		var events []model.Event
		for id := range m.alertEvents[alertID] {
			if ev, ok := m.events[id]; ok {
				events = append(events, ev)
			}
		}
		sortEventsByTime(events)
		out = append(out, AlertEvents{Alert: *a, Events: events})
	}
	return out, nil
}

// Stats reports store counts for health endpoints.
func (m *MemoryStore) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := 0
	for _, a := range m.alerts {
		if a.Status.IsActive() {
			active++
		}
	}
	return map[string]any{
		"events":        len(m.events),
		"alerts":        len(m.alerts),
		"active_alerts": active,
	}
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// alertOwnsExternalID reports whether any of the alert's events carries one
// of the external ids, optionally restricted to CREATED events. Callers hold
// the read lock.
func (m *MemoryStore) alertOwnsExternalID(alertID string, idSet map[string]struct{}, createdOnly bool) bool {
	for id := range m.alertEvents[alertID] {
		ev, ok := m.events[id]
		if !ok || ev.ExternalID == "" {
			continue
		}
		if createdOnly && ev.Action != model.ActionCreated {
			continue
		}
		if _, match := idSet[ev.ExternalID]; match {
			return true
		}
	}
	return false
}

func matchesFilter(a *model.Alert, f AlertFilter) bool {
	if f.RuleID != 0 && a.RuleID != f.RuleID {
		return false
	}
	if f.Fingerprint != "" && a.Fingerprint != f.Fingerprint {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
		return false
	}
	if f.ActiveOnly && !a.Status.IsActive() {
		return false
	}
	if f.SessionOnly && !a.IsSessionAlert {
		return false
	}
	if f.SessionStatus != model.SessionNone && a.SessionStatus != f.SessionStatus {
		return false
	}
	if f.SessionEndBefore != nil {
		if a.SessionEndTime == nil || a.SessionEndTime.After(*f.SessionEndBefore) {
			return false
		}
	}
	if f.LastEventBefore != nil && a.LastEventTime.After(*f.LastEventBefore) {
		return false
	}
	return true
}

func containsStatus(statuses []model.AlertStatus, s model.AlertStatus) bool {
	for _, status := range statuses {
		if status == s {
			return true
		}
	}
	return false
}

func sortEventsByTime(events []model.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].ReceivedAt.Equal(events[j].ReceivedAt) {
			return events[i].EventID < events[j].EventID
		}
		return events[i].ReceivedAt.Before(events[j].ReceivedAt)
	})
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

func copyTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
