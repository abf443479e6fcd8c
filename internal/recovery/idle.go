package recovery

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sgerhart/alertflux/internal/metrics"
	"github.com/sgerhart/alertflux/internal/model"
	"github.com/sgerhart/alertflux/internal/store"
)

// IdleCloser closes active alerts that stopped receiving events. Each
// strategy opts in with a positive close_minutes; an alert is closed once
// now reaches last_event_time + close_minutes. Session alerts only join the
// countdown after their session is confirmed.
type IdleCloser struct {
	store   store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewIdleCloser creates an IdleCloser. metrics may be nil.
func NewIdleCloser(st store.Store, m *metrics.Metrics, logger *slog.Logger) *IdleCloser {
	return &IdleCloser{store: st, metrics: m, logger: logger}
}

// Run closes idle alerts for every strategy in closeMinutesByRule, keyed by
// rule id with positive close minutes. It returns the number closed.
func (c *IdleCloser) Run(closeMinutesByRule map[int64]int, now time.Time) (int, error) {
	if len(closeMinutesByRule) == 0 {
		c.logger.Info("No strategies with auto close configured, skipping idle check")
		return 0, nil
	}

	closed := 0
	checked := 0
	for ruleID, closeMinutes := range closeMinutesByRule {
		if closeMinutes <= 0 {
			continue
		}

		cutoff := now.Add(-time.Duration(closeMinutes) * time.Minute)
		alerts, err := c.store.ListAlerts(store.AlertFilter{
			RuleID:          ruleID,
			ActiveOnly:      true,
			LastEventBefore: &cutoff,
		})
		if err != nil {
			return closed, err
		}

		for i := range alerts {
			checked++
			if c.closeIdleAlert(alerts[i], ruleID, closeMinutes) {
				closed++
			}
		}
	}

	if c.metrics != nil && closed > 0 {
		c.metrics.IncrementAlertsClosed(closed)
	}
	c.logger.Info("Idle close check complete",
		"checked", checked,
		"closed", closed)
	return closed, nil
}

func (c *IdleCloser) closeIdleAlert(alert model.Alert, ruleID int64, closeMinutes int) bool {
	// An unconfirmed session window is still waiting on a recovery and must
	// not be closed for idleness.
	if alert.IsSessionAlert && alert.SessionStatus != model.SessionConfirmed {
		c.logger.Debug("Session alert not confirmed yet, skipping idle close",
			"alert_id", alert.AlertID,
			"session_status", alert.SessionStatus)
		return false
	}

	if alert.LastEventTime.IsZero() {
		c.logger.Warn("Alert has no last event time, cannot judge idle close",
			"alert_id", alert.AlertID)
		return false
	}

	alert.Status = model.StatusAutoClose
	if err := c.store.UpdateAlert(&alert, "status"); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			c.logger.Warn("Alert changed concurrently, idle close deferred",
				"alert_id", alert.AlertID)
			if c.metrics != nil {
				c.metrics.IncrementWriteConflicts()
			}
			return false
		}
		c.logger.Error("Failed to close idle alert",
			"alert_id", alert.AlertID,
			"error", err)
		return false
	}

	c.logger.Info("Idle alert closed",
		"alert_id", alert.AlertID,
		"rule_id", ruleID,
		"close_minutes", closeMinutes,
		"last_event_time", alert.LastEventTime)
	return true
}
