// Package ingest moves events from the outside world into the store: it
// validates and normalizes incoming batches, persists them, and routes
// recovery and closed events to their handlers. The NATS consumer and the
// HTTP intake endpoint both feed the same pipeline.
package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/sgerhart/alertflux/internal/metrics"
	"github.com/sgerhart/alertflux/internal/model"
	"github.com/sgerhart/alertflux/internal/recovery"
	"github.com/sgerhart/alertflux/internal/store"
)

// BatchResult summarizes one intake batch.
type BatchResult struct {
	Accepted int `json:"accepted"`
	Invalid  int `json:"invalid"`
	Linked   int `json:"linked"`
	Closed   int `json:"closed"`
}

// Intake is the shared event admission pipeline. Invalid events are counted
// and dropped with a warning; they never fail the batch.
type Intake struct {
	store     store.Store
	handler   *recovery.Handler
	closer    *recovery.AutoCloser
	metrics   *metrics.Metrics
	logger    *slog.Logger
	batchSize int
}

// NewIntake creates an Intake. m may be nil.
func NewIntake(st store.Store, m *metrics.Metrics, logger *slog.Logger) *Intake {
	return &Intake{
		store:     st,
		handler:   recovery.NewHandler(st, m, logger),
		closer:    recovery.NewAutoCloser(st, m, logger),
		metrics:   m,
		logger:    logger,
		batchSize: store.DefaultWriteBatchSize,
	}
}

// ProcessBatch validates, persists, and routes one batch of events. An empty
// batch is logged and skipped. Store failures abort the batch; everything
// already persisted stays persisted, and redelivery is safe because event
// inserts and link writes are idempotent.
func (in *Intake) ProcessBatch(events []model.Event) (BatchResult, error) {
	var result BatchResult
	if len(events) == 0 {
		in.logger.Warn("Received empty event batch, skipping")
		return result, nil
	}

	accepted := make([]model.Event, 0, len(events))
	for i := range events {
		ev, ok := in.normalize(events[i])
		if !ok {
			result.Invalid++
			if in.metrics != nil {
				in.metrics.IncrementEventsInvalid()
			}
			continue
		}
		accepted = append(accepted, ev)
	}
	result.Accepted = len(accepted)
	if len(accepted) == 0 {
		in.logger.Warn("Event batch had no valid events",
			"received", len(events),
			"invalid", result.Invalid)
		return result, nil
	}

	for start := 0; start < len(accepted); start += in.batchSize {
		end := start + in.batchSize
		if end > len(accepted) {
			end = len(accepted)
		}
		if err := in.store.InsertEvents(accepted[start:end]); err != nil {
			return result, err
		}
	}
	if in.metrics != nil {
		in.metrics.IncrementEventsIngested(len(accepted))
	}

	var linkable, closed []model.Event
	for _, ev := range accepted {
		switch ev.Action {
		case model.ActionRecovery:
			linkable = append(linkable, ev)
		case model.ActionClosed:
			linkable = append(linkable, ev)
			closed = append(closed, ev)
		}
	}

	if len(linkable) > 0 {
		stats, err := in.handler.HandleRecoveryEvents(linkable)
		if err != nil {
			return result, err
		}
		result.Linked = stats.Linked
	}
	if len(closed) > 0 {
		n, err := in.closer.HandleClosedEvents(closed)
		if err != nil {
			return result, err
		}
		result.Closed = n
	}

	in.logger.Info("Event batch processed",
		"received", len(events),
		"accepted", result.Accepted,
		"invalid", result.Invalid,
		"linked", result.Linked,
		"closed", result.Closed)
	return result, nil
}

// normalize validates one incoming event and fills derivable fields. It
// returns false when the event must be dropped.
func (in *Intake) normalize(ev model.Event) (model.Event, bool) {
	ev.EventID = strings.TrimSpace(ev.EventID)
	if ev.EventID == "" {
		in.logger.Warn("Event without event_id dropped", "title", ev.Title)
		return ev, false
	}

	action, ok := parseAction(ev.Action)
	if !ok {
		in.logger.Warn("Event with unknown action dropped",
			"event_id", ev.EventID,
			"action", string(ev.Action))
		return ev, false
	}
	ev.Action = action

	if action == model.ActionCreated && strings.TrimSpace(ev.Title) == "" {
		in.logger.Warn("Created event without title dropped", "event_id", ev.EventID)
		return ev, false
	}

	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}

	if ev.ExternalID == "" {
		ev.ExternalID = GenerateExternalID(ev.Item, ev.ResourceName, ev.SourceID)
		if ev.ExternalID == "" && action != model.ActionCreated {
			// Nothing identifies the subject, so this recovery or closed
			// event can never be matched to an alert. Still persisted.
			in.logger.Warn("Event carries no external id and no source identity",
				"event_id", ev.EventID,
				"action", string(action))
		}
	}
	return ev, true
}

func parseAction(a model.EventAction) (model.EventAction, bool) {
	switch model.EventAction(strings.ToLower(strings.TrimSpace(string(a)))) {
	case model.ActionCreated:
		return model.ActionCreated, true
	case model.ActionRecovery:
		return model.ActionRecovery, true
	case model.ActionClosed:
		return model.ActionClosed, true
	}
	return a, false
}

// GenerateExternalID derives a stable external id from the event's source
// identity fields, so recovery events from the same adapter land on the same
// id as the created event they resolve. Returns "" when every part is empty:
// an identity digest over nothing would glue unrelated events together.
func GenerateExternalID(item, resourceName, sourceID string) string {
	if item == "" && resourceName == "" && sourceID == "" {
		return ""
	}
	sum := md5.Sum([]byte(item + "|" + resourceName + "|" + sourceID))
	return hex.EncodeToString(sum[:])
}
