// Package scan runs the per-strategy aggregation cycle: it pulls the window's
// events, matches them against the strategy, groups them in the analytical
// scope, and folds each group into a new or existing alert.
package scan

import (
	"encoding/hex"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sgerhart/alertflux/internal/metrics"
	"github.com/sgerhart/alertflux/internal/model"
	"github.com/sgerhart/alertflux/internal/query"
	"github.com/sgerhart/alertflux/internal/store"
	"github.com/sgerhart/alertflux/internal/strategy"
	"github.com/sgerhart/alertflux/internal/window"
)

// eventCacheSize bounds the per-alert linked-event-id cache.
const eventCacheSize = 2048

const defaultAlertTitle = "Aggregated alert"

// AggregateGroup is one grouped row out of the analytical scope, normalized
// by the processor. Title and Description come from the group's earliest
// member event.
type AggregateGroup struct {
	Fingerprint    string
	Dimensions     map[string]string
	EventIDs       []string
	EventCount     int64
	FirstEventTime time.Time
	LastEventTime  time.Time
	Level          int
	Title          string
	Description    string
}

// Builder folds aggregation groups into alerts: one active alert per
// fingerprint, created on first sight and extended afterwards. A bounded
// cache of already-linked event ids keeps repeated scans from re-querying
// alert membership.
type Builder struct {
	store      store.Store
	metrics    *metrics.Metrics
	logger     *slog.Logger
	eventCache *lru.Cache[string, map[string]struct{}]
}

// NewBuilder creates a Builder. metrics may be nil.
func NewBuilder(st store.Store, m *metrics.Metrics, logger *slog.Logger) *Builder {
	cache, _ := lru.New[string, map[string]struct{}](eventCacheSize)
	return &Builder{
		store:      st,
		metrics:    m,
		logger:     logger,
		eventCache: cache,
	}
}

// CreateOrUpdate routes the group to the active alert with its fingerprint,
// creating one when none exists. It returns the alert and whether it was
// newly created.
func (b *Builder) CreateOrUpdate(group AggregateGroup, st strategy.Strategy, cfg window.Config, now time.Time) (*model.Alert, bool, error) {
	existing, err := b.store.ListAlerts(store.AlertFilter{
		Fingerprint: group.Fingerprint,
		ActiveOnly:  true,
	})
	if err != nil {
		return nil, false, err
	}

	if len(existing) > 0 {
		if len(existing) > 1 {
			// One active alert per fingerprint is the invariant; pick the
			// freshest if it was ever violated.
			b.logger.Warn("Multiple active alerts share a fingerprint, using the newest",
				"fingerprint", group.Fingerprint,
				"count", len(existing))
			sort.Slice(existing, func(i, j int) bool {
				return existing[i].UpdatedAt.After(existing[j].UpdatedAt)
			})
		}
		alert := existing[0]
		if err := b.updateAlert(&alert, group, cfg, now); err != nil {
			return nil, false, err
		}
		return &alert, false, nil
	}

	alert, err := b.createAlert(group, st, cfg, now)
	if err != nil {
		return nil, false, err
	}
	return alert, true, nil
}

func (b *Builder) createAlert(group AggregateGroup, st strategy.Strategy, cfg window.Config, now time.Time) (*model.Alert, error) {
	alert := model.Alert{
		AlertID:        NewAlertID(),
		Fingerprint:    group.Fingerprint,
		RuleID:         st.RuleID,
		Status:         model.StatusUnassigned,
		Level:          model.ClampAlertLevel(group.Level),
		Title:          b.renderTitle(st, group),
		Content:        b.renderContent(st, group),
		FirstEventTime: group.FirstEventTime,
		LastEventTime:  group.LastEventTime,
	}
	if cfg.IsSessionWindow() {
		end := cfg.SessionEnd(now)
		alert.IsSessionAlert = true
		alert.SessionStatus = model.SessionObserving
		alert.SessionEndTime = &end
	}

	if err := b.store.CreateAlert(&alert); err != nil {
		return nil, err
	}

	if len(group.EventIDs) > 0 {
		if err := b.store.LinkEvents(alert.AlertID, group.EventIDs); err != nil {
			return nil, err
		}
		linked := make(map[string]struct{}, len(group.EventIDs))
		for _, id := range group.EventIDs {
			linked[id] = struct{}{}
		}
		b.eventCache.Add(alert.AlertID, linked)
	}

	if b.metrics != nil {
		b.metrics.IncrementAlertsCreated()
	}
	b.logger.Info("Alert created",
		"alert_id", alert.AlertID,
		"fingerprint", alert.Fingerprint,
		"rule_id", st.RuleID,
		"events", len(group.EventIDs),
		"session_alert", alert.IsSessionAlert)
	return &alert, nil
}

func (b *Builder) updateAlert(alert *model.Alert, group AggregateGroup, cfg window.Config, now time.Time) error {
	alert.LastEventTime = group.LastEventTime
	alert.Level = model.ClampAlertLevel(group.Level)
	fields := []string{"last_event_time", "level"}

	// A session alert still observing keeps its deadline sliding while
	// events arrive, so only silence confirms it.
	if alert.IsSessionAlert && alert.SessionStatus == model.SessionObserving && cfg.IsSessionWindow() {
		end := cfg.SessionEnd(now)
		alert.SessionEndTime = &end
		fields = append(fields, "session_end_time")
	}

	if err := b.store.UpdateAlert(alert, fields...); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			b.logger.Warn("Alert changed concurrently, update left for the next scan",
				"alert_id", alert.AlertID,
				"fingerprint", alert.Fingerprint)
			if b.metrics != nil {
				b.metrics.IncrementWriteConflicts()
			}
		}
		return err
	}

	if err := b.linkNewEvents(alert.AlertID, group.EventIDs); err != nil {
		return err
	}

	if b.metrics != nil {
		b.metrics.IncrementAlertsUpdated()
	}
	b.logger.Debug("Alert updated",
		"alert_id", alert.AlertID,
		"fingerprint", alert.Fingerprint,
		"last_event_time", alert.LastEventTime)
	return nil
}

// linkNewEvents associates only the event ids the alert does not hold yet.
func (b *Builder) linkNewEvents(alertID string, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}

	linked, ok := b.eventCache.Get(alertID)
	if !ok {
		ids, err := b.store.ListAlertEventIDs(alertID)
		if err != nil {
			return err
		}
		linked = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			linked[id] = struct{}{}
		}
		b.eventCache.Add(alertID, linked)
	}

	newIDs := make([]string, 0, len(eventIDs))
	for _, id := range eventIDs {
		if _, seen := linked[id]; !seen {
			newIDs = append(newIDs, id)
		}
	}
	if len(newIDs) == 0 {
		return nil
	}

	if err := b.store.LinkEvents(alertID, newIDs); err != nil {
		return err
	}
	for _, id := range newIDs {
		linked[id] = struct{}{}
	}
	return nil
}

func (b *Builder) renderTitle(st strategy.Strategy, group AggregateGroup) string {
	if st.TitleTemplate != "" {
		return query.RenderText(st.TitleTemplate, b.templateValues(st, group))
	}
	if group.Title != "" {
		return group.Title
	}
	return defaultAlertTitle
}

func (b *Builder) renderContent(st strategy.Strategy, group AggregateGroup) string {
	if st.ContentTemplate != "" {
		return query.RenderText(st.ContentTemplate, b.templateValues(st, group))
	}
	return group.Description
}

func (b *Builder) templateValues(st strategy.Strategy, group AggregateGroup) map[string]string {
	values := make(map[string]string, len(group.Dimensions)+2)
	for k, v := range group.Dimensions {
		values[k] = v
	}
	values["title"] = group.Title
	values["rule_name"] = st.Name
	return values
}

// NewAlertID mints an alert identifier like ALERT-9BF4ACC8D7F34C129A2E3D07A1B20C44.
func NewAlertID() string {
	id := uuid.New()
	return "ALERT-" + strings.ToUpper(hex.EncodeToString(id[:]))
}
