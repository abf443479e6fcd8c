// Package recovery reconciles alerts against terminal events: closing alerts
// on closed events, recovering them when every created event has a later
// recovery, confirming session windows that elapse, and closing idle alerts.
package recovery

import (
	"errors"
	"log/slog"

	"github.com/sgerhart/alertflux/internal/metrics"
	"github.com/sgerhart/alertflux/internal/model"
	"github.com/sgerhart/alertflux/internal/store"
)

// AutoCloser closes active alerts when a closed event arrives for an
// external id they already track. The closed event only triggers the
// transition; it carries no ordering requirement of its own.
type AutoCloser struct {
	store   store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewAutoCloser creates an AutoCloser. metrics may be nil.
func NewAutoCloser(st store.Store, m *metrics.Metrics, logger *slog.Logger) *AutoCloser {
	return &AutoCloser{store: st, metrics: m, logger: logger}
}

// HandleClosedEvents closes every active alert holding an event whose
// external id appears on a closed event in the batch. It returns the number
// of alerts closed.
func (c *AutoCloser) HandleClosedEvents(events []model.Event) (int, error) {
	externalIDs := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.Action != model.ActionClosed {
			continue
		}
		if ev.ExternalID == "" {
			c.logger.Debug("Closed event without external id ignored", "event_id", ev.EventID)
			continue
		}
		externalIDs = append(externalIDs, ev.ExternalID)
	}
	if len(externalIDs) == 0 {
		return 0, nil
	}

	alerts, err := c.store.ListActiveAlertsByEventExternalIDs(externalIDs)
	if err != nil {
		return 0, err
	}

	closed := 0
	for i := range alerts {
		alert := alerts[i]
		alert.Status = model.StatusAutoClose
		if err := c.store.UpdateAlert(&alert, "status"); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				c.logger.Warn("Alert changed concurrently, close deferred",
					"alert_id", alert.AlertID)
				if c.metrics != nil {
					c.metrics.IncrementWriteConflicts()
				}
				continue
			}
			c.logger.Error("Failed to auto-close alert",
				"alert_id", alert.AlertID,
				"error", err)
			continue
		}
		closed++
		c.logger.Info("Alert auto-closed by closed event",
			"alert_id", alert.AlertID,
			"fingerprint", alert.Fingerprint)
	}

	if c.metrics != nil && closed > 0 {
		c.metrics.IncrementAlertsClosed(closed)
	}
	return closed, nil
}
