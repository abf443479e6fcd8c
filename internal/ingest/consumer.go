package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/sgerhart/alertflux/internal/model"
)

const (
	// SubjectEvents receives event batches. The wildcard tail lets sources
	// publish under their own suffix (alertflux.events.zabbix, ...).
	SubjectEvents = "alertflux.events.>"

	// SubjectStrategyChanged and SubjectStrategyDeleted announce strategy
	// lifecycle transitions that require alert cleanup.
	SubjectStrategyChanged = "alertflux.strategies.changed"
	SubjectStrategyDeleted = "alertflux.strategies.deleted"
)

// StrategyLifecycle reacts to strategy change announcements. Implemented by
// the scheduler; the consumer only decodes and dispatches.
type StrategyLifecycle interface {
	StrategyChanged(ruleID int64)
	StrategyDeleted(ruleID int64)
}

// Consumer subscribes the intake pipeline to NATS.
type Consumer struct {
	nc        *nats.Conn
	intake    *Intake
	lifecycle StrategyLifecycle
	logger    *slog.Logger
	queue     string

	subs []*nats.Subscription
}

// NewConsumer creates a Consumer. lifecycle may be nil when no scheduler is
// attached.
func NewConsumer(nc *nats.Conn, intake *Intake, lifecycle StrategyLifecycle, queue string, logger *slog.Logger) *Consumer {
	return &Consumer{
		nc:        nc,
		intake:    intake,
		lifecycle: lifecycle,
		logger:    logger,
		queue:     queue,
	}
}

// Subscribe attaches all subscriptions and blocks until the context is
// cancelled, then drains. Event batches are queue-grouped so one worker in
// the group handles each batch; lifecycle announcements reach every
// instance.
func (c *Consumer) Subscribe(ctx context.Context) error {
	eventsSub, err := c.nc.QueueSubscribe(SubjectEvents, c.queue, c.handleEventsMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}
	c.subs = append(c.subs, eventsSub)
	c.logger.Info("Subscribed to events", "subject", SubjectEvents, "queue", c.queue)

	if c.lifecycle != nil {
		changedSub, err := c.nc.Subscribe(SubjectStrategyChanged, c.handleLifecycleMessage)
		if err != nil {
			c.drain()
			return fmt.Errorf("failed to subscribe to strategy changes: %w", err)
		}
		c.subs = append(c.subs, changedSub)

		deletedSub, err := c.nc.Subscribe(SubjectStrategyDeleted, c.handleLifecycleMessage)
		if err != nil {
			c.drain()
			return fmt.Errorf("failed to subscribe to strategy deletions: %w", err)
		}
		c.subs = append(c.subs, deletedSub)
		c.logger.Info("Subscribed to strategy lifecycle",
			"subjects", []string{SubjectStrategyChanged, SubjectStrategyDeleted})
	}

	<-ctx.Done()

	c.logger.Info("Draining subscriptions")
	c.drain()
	return nil
}

func (c *Consumer) handleEventsMessage(msg *nats.Msg) {
	c.logger.Debug("Received event batch", "subject", msg.Subject, "data_length", len(msg.Data))

	events, err := DecodeEventBatch(msg.Data)
	if err != nil {
		c.logger.Error("Failed to decode event batch",
			"subject", msg.Subject,
			"error", err)
		return
	}

	if _, err := c.intake.ProcessBatch(events); err != nil {
		c.logger.Error("Failed to process event batch",
			"subject", msg.Subject,
			"events", len(events),
			"error", err)
	}
}

func (c *Consumer) handleLifecycleMessage(msg *nats.Msg) {
	var payload struct {
		RuleID int64 `json:"rule_id"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.RuleID == 0 {
		c.logger.Warn("Ignoring malformed strategy lifecycle message",
			"subject", msg.Subject)
		return
	}

	switch msg.Subject {
	case SubjectStrategyChanged:
		c.lifecycle.StrategyChanged(payload.RuleID)
	case SubjectStrategyDeleted:
		c.lifecycle.StrategyDeleted(payload.RuleID)
	}
}

func (c *Consumer) drain() {
	for _, sub := range c.subs {
		if sub == nil {
			continue
		}
		if err := sub.Drain(); err != nil {
			c.logger.Error("Failed to drain subscription",
				"subject", sub.Subject,
				"error", err)
		}
	}
	c.subs = nil
}

// eventEnvelope is the batch form sources publish: a source id plus events.
// Events stays a pointer so an envelope carrying an explicitly empty array is
// distinguishable from a payload that is no envelope at all.
type eventEnvelope struct {
	SourceID string           `json:"source_id"`
	Events   *json.RawMessage `json:"events"`
}

// DecodeEventBatch accepts the three payload shapes sources send: an
// envelope with an events array, a bare array, or a single event object.
// The envelope's source_id is stamped onto events that lack their own.
func DecodeEventBatch(data []byte) ([]model.Event, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Events != nil {
		var events []model.Event
		if err := json.Unmarshal(*envelope.Events, &events); err != nil {
			return nil, fmt.Errorf("envelope events field is not an array: %w", err)
		}
		if envelope.SourceID != "" {
			for i := range events {
				if events[i].SourceID == "" {
					events[i].SourceID = envelope.SourceID
				}
			}
		}
		return events, nil
	}

	var events []model.Event
	if err := json.Unmarshal(data, &events); err == nil {
		return events, nil
	}

	var single model.Event
	if err := json.Unmarshal(data, &single); err != nil || single.EventID == "" {
		return nil, fmt.Errorf("payload is not an event batch")
	}
	return []model.Event{single}, nil
}
