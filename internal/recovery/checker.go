package recovery

import (
	"log/slog"

	"github.com/sgerhart/alertflux/internal/metrics"
	"github.com/sgerhart/alertflux/internal/model"
	"github.com/sgerhart/alertflux/internal/store"
)

// Checker decides whether an alert has fully recovered: every created event
// it tracks must be matched by a recovery or closed event with the same
// external id that arrived strictly later. Correlation is by arrival order,
// not event id.
type Checker struct {
	store   store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewChecker creates a Checker. metrics may be nil.
func NewChecker(st store.Store, m *metrics.Metrics, logger *slog.Logger) *Checker {
	return &Checker{store: st, metrics: m, logger: logger}
}

// CheckAndRecover transitions alert to auto_recovery when all of its created
// events are recovered, returning true if the transition happened. Re-running
// it on an already recovered alert is safe; callers restrict it to active
// alerts for efficiency, not correctness.
func (c *Checker) CheckAndRecover(alert *model.Alert) (bool, error) {
	events, err := c.store.ListEventsByAlert(alert.AlertID)
	if err != nil {
		return false, err
	}
	if len(events) == 0 {
		c.logger.Debug("Alert has no associated events", "alert_id", alert.AlertID)
		return false, nil
	}

	var created []model.Event
	recoveryByExternalID := make(map[string][]model.Event)
	for _, ev := range events {
		switch ev.Action {
		case model.ActionCreated:
			created = append(created, ev)
		case model.ActionRecovery, model.ActionClosed:
			// Only recovery events carrying an external id can match
			if ev.ExternalID != "" {
				recoveryByExternalID[ev.ExternalID] = append(recoveryByExternalID[ev.ExternalID], ev)
			}
		}
	}

	if len(created) == 0 && len(recoveryByExternalID) == 0 {
		c.logger.Debug("Alert has no created or recovery events", "alert_id", alert.AlertID)
		return false, nil
	}

	unrecovered := 0
	for _, ev := range created {
		if ev.ExternalID == "" {
			// Without an external id the event can never be matched to a
			// recovery, so the alert stays active.
			c.logger.Warn("Created event without external id cannot be recovered",
				"alert_id", alert.AlertID,
				"event_id", ev.EventID)
			unrecovered++
			continue
		}

		if !hasLaterRecovery(recoveryByExternalID[ev.ExternalID], ev) {
			unrecovered++
		}
	}

	if unrecovered > 0 {
		c.logger.Debug("Alert still has unrecovered created events",
			"alert_id", alert.AlertID,
			"unrecovered", unrecovered)
		return false, nil
	}

	alert.Status = model.StatusAutoRecovery
	fields := []string{"status"}
	if alert.IsSessionAlert && alert.SessionStatus == model.SessionObserving {
		alert.SessionStatus = model.SessionRecovered
		fields = append(fields, "session_status")
	}

	if err := c.store.UpdateAlert(alert, fields...); err != nil {
		return false, err
	}

	if c.metrics != nil {
		c.metrics.IncrementAlertsRecovered()
	}
	c.logger.Info("Alert recovered",
		"alert_id", alert.AlertID,
		"fingerprint", alert.Fingerprint,
		"created_events", len(created),
		"session_alert", alert.IsSessionAlert)
	return true, nil
}

// hasLaterRecovery reports whether any recovery event arrived strictly after
// the created event.
func hasLaterRecovery(recoveries []model.Event, created model.Event) bool {
	for _, r := range recoveries {
		if r.ReceivedAt.After(created.ReceivedAt) {
			return true
		}
	}
	return false
}
