package recovery

import (
	"log/slog"

	"github.com/sgerhart/alertflux/internal/metrics"
	"github.com/sgerhart/alertflux/internal/model"
	"github.com/sgerhart/alertflux/internal/store"
)

// Handler links batches of recovery and closed events to the active alerts
// that track the same external ids. It is the bulk counterpart to Checker:
// one store round-trip loads every candidate alert with its events, then all
// matching is done against in-memory indices so the query count stays flat
// no matter how many events arrive.
type Handler struct {
	store   store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHandler creates a Handler. metrics may be nil.
func NewHandler(st store.Store, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{store: st, metrics: m, logger: logger}
}

// HandlerStats summarizes one HandleRecoveryEvents run.
type HandlerStats struct {
	Processed int
	Linked    int
	Skipped   int
}

// HandleRecoveryEvents associates each recovery event with every active alert
// that owns a created event with the same external id. Events already linked
// to an alert are skipped, so redelivered batches are harmless.
func (h *Handler) HandleRecoveryEvents(events []model.Event) (HandlerStats, error) {
	stats := HandlerStats{Processed: len(events)}
	if len(events) == 0 {
		return stats, nil
	}

	externalIDs := make(map[string]struct{})
	for _, ev := range events {
		if ev.ExternalID == "" {
			h.logger.Warn("Recovery event without external id skipped",
				"event_id", ev.EventID)
			continue
		}
		externalIDs[ev.ExternalID] = struct{}{}
	}
	if len(externalIDs) == 0 {
		h.logger.Debug("No recovery events carried an external id")
		return stats, nil
	}

	idList := make([]string, 0, len(externalIDs))
	for id := range externalIDs {
		idList = append(idList, id)
	}

	bundles, err := h.store.FindActiveAlertsWithEventsByExternalIDs(idList)
	if err != nil {
		return stats, err
	}
	if len(bundles) == 0 {
		h.logger.Debug("No active alerts match the recovery batch")
		return stats, nil
	}

	// Index the prefetched alerts: external id → alert ids, and each alert's
	// already-linked event ids so duplicates are caught without re-querying.
	alertsByExternalID := make(map[string][]string)
	linkedEventIDs := make(map[string]map[string]struct{}, len(bundles))
	for _, bundle := range bundles {
		existing := make(map[string]struct{}, len(bundle.Events))
		for _, ev := range bundle.Events {
			existing[ev.EventID] = struct{}{}
			if _, wanted := externalIDs[ev.ExternalID]; wanted && ev.ExternalID != "" {
				alertsByExternalID[ev.ExternalID] = append(alertsByExternalID[ev.ExternalID], bundle.Alert.AlertID)
			}
		}
		linkedEventIDs[bundle.Alert.AlertID] = existing
	}

	for _, ev := range events {
		if ev.ExternalID == "" {
			continue
		}

		alertIDs := alertsByExternalID[ev.ExternalID]
		if len(alertIDs) == 0 {
			h.logger.Debug("Recovery event matches no active alert",
				"event_id", ev.EventID,
				"external_id", ev.ExternalID)
			continue
		}

		for _, alertID := range alertIDs {
			if _, dup := linkedEventIDs[alertID][ev.EventID]; dup {
				stats.Skipped++
				continue
			}
			if err := h.store.LinkEvents(alertID, []string{ev.EventID}); err != nil {
				h.logger.Error("Failed to link recovery event",
					"alert_id", alertID,
					"event_id", ev.EventID,
					"error", err)
				continue
			}
			linkedEventIDs[alertID][ev.EventID] = struct{}{}
			stats.Linked++
			h.logger.Debug("Recovery event linked",
				"alert_id", alertID,
				"event_id", ev.EventID)
		}
	}

	if h.metrics != nil {
		h.metrics.IncrementRecoveryLinks(stats.Linked, stats.Skipped)
	}
	h.logger.Info("Recovery batch processed",
		"processed", stats.Processed,
		"linked", stats.Linked,
		"skipped_duplicates", stats.Skipped)
	return stats, nil
}
