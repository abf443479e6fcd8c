package recovery

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sgerhart/alertflux/internal/metrics"
	"github.com/sgerhart/alertflux/internal/model"
	"github.com/sgerhart/alertflux/internal/store"
)

// TimeoutChecker advances session-window alerts whose observation window
// elapsed without a recovery: observing becomes confirmed while the alert
// status stays active. It also carries the bulk transitions fired when a
// strategy's session behavior is disabled or the strategy is deleted.
type TimeoutChecker struct {
	store   store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewTimeoutChecker creates a TimeoutChecker. metrics may be nil.
func NewTimeoutChecker(st store.Store, m *metrics.Metrics, logger *slog.Logger) *TimeoutChecker {
	return &TimeoutChecker{store: st, metrics: m, logger: logger}
}

// CheckSessionTimeouts confirms every observing session alert whose
// session_end_time is now or earlier and returns the number confirmed.
func (t *TimeoutChecker) CheckSessionTimeouts(now time.Time) (int, error) {
	alerts, err := t.store.ListAlerts(store.AlertFilter{
		ActiveOnly:       true,
		SessionOnly:      true,
		SessionStatus:    model.SessionObserving,
		SessionEndBefore: &now,
	})
	if err != nil {
		return 0, err
	}

	t.logger.Info("Checking session timeouts", "observing_alerts", len(alerts))

	confirmed := 0
	for i := range alerts {
		alert := alerts[i]
		alert.SessionStatus = model.SessionConfirmed
		if err := t.store.UpdateAlert(&alert, "session_status"); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				t.logger.Warn("Alert changed concurrently, confirmation deferred",
					"alert_id", alert.AlertID)
				if t.metrics != nil {
					t.metrics.IncrementWriteConflicts()
				}
				continue
			}
			t.logger.Error("Failed to confirm session alert",
				"alert_id", alert.AlertID,
				"error", err)
			continue
		}
		confirmed++
		t.logger.Info("Session window confirmed after timeout",
			"alert_id", alert.AlertID,
			"fingerprint", alert.Fingerprint,
			"session_end_time", alert.SessionEndTime)
	}

	if t.metrics != nil && confirmed > 0 {
		t.metrics.IncrementSessionsConfirmed(confirmed)
	}
	t.logger.Info("Session timeout check complete", "confirmed", confirmed)
	return confirmed, nil
}

// ConfirmObservingAlertsByStrategy force-confirms all observing session
// alerts of one strategy. Used when the strategy's session behavior is
// switched off so its alerts stop waiting for a recovery.
func (t *TimeoutChecker) ConfirmObservingAlertsByStrategy(ruleID int64) (int, error) {
	alerts, err := t.observingAlerts(ruleID)
	if err != nil {
		return 0, err
	}

	confirmed := 0
	for i := range alerts {
		alert := alerts[i]
		alert.SessionStatus = model.SessionConfirmed
		if err := t.store.UpdateAlert(&alert, "session_status"); err != nil {
			t.logger.Error("Failed to confirm session alert on strategy change",
				"rule_id", ruleID,
				"alert_id", alert.AlertID,
				"error", err)
			continue
		}
		confirmed++
		t.logger.Info("Session alert confirmed on strategy change",
			"rule_id", ruleID,
			"alert_id", alert.AlertID,
			"fingerprint", alert.Fingerprint)
	}

	if t.metrics != nil && confirmed > 0 {
		t.metrics.IncrementSessionsConfirmed(confirmed)
	}
	t.logger.Info("Strategy change confirmation complete",
		"rule_id", ruleID,
		"confirmed", confirmed)
	return confirmed, nil
}

// CloseObservingSessionAlertsByStrategy closes all observing session alerts
// of one strategy and marks their sessions recovered. Used when the strategy
// itself is deleted.
func (t *TimeoutChecker) CloseObservingSessionAlertsByStrategy(ruleID int64) (int, error) {
	alerts, err := t.observingAlerts(ruleID)
	if err != nil {
		return 0, err
	}

	closed := 0
	for i := range alerts {
		alert := alerts[i]
		previous := alert.Status
		alert.Status = model.StatusClosed
		alert.SessionStatus = model.SessionRecovered
		if err := t.store.UpdateAlert(&alert, "status", "session_status"); err != nil {
			t.logger.Error("Failed to close session alert on strategy removal",
				"rule_id", ruleID,
				"alert_id", alert.AlertID,
				"error", err)
			continue
		}
		closed++
		t.logger.Info("Session alert closed on strategy removal",
			"rule_id", ruleID,
			"alert_id", alert.AlertID,
			"fingerprint", alert.Fingerprint,
			"previous_status", previous)
	}

	if t.metrics != nil && closed > 0 {
		t.metrics.IncrementAlertsClosed(closed)
	}
	t.logger.Info("Strategy removal close complete",
		"rule_id", ruleID,
		"closed", closed)
	return closed, nil
}

func (t *TimeoutChecker) observingAlerts(ruleID int64) ([]model.Alert, error) {
	return t.store.ListAlerts(store.AlertFilter{
		RuleID:        ruleID,
		ActiveOnly:    true,
		SessionOnly:   true,
		SessionStatus: model.SessionObserving,
	})
}
