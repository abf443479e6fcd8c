package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/sgerhart/alertflux/internal/model"
)

// SubjectAlerts carries created and updated alerts to downstream consumers
// (dispatchers, notifiers).
const SubjectAlerts = "alertflux.alerts"

// Publisher pushes alerts to NATS. It satisfies the scan processor's
// publisher interface.
type Publisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(nc *nats.Conn, logger *slog.Logger) *Publisher {
	return &Publisher{nc: nc, logger: logger}
}

// PublishAlert publishes the alert as JSON. The change kind travels in a
// header so consumers can filter without decoding the body.
func (p *Publisher) PublishAlert(alert *model.Alert, created bool) error {
	if p.nc == nil || !p.nc.IsConnected() {
		return fmt.Errorf("NATS connection not available")
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	change := "updated"
	if created {
		change = "created"
	}

	headers := nats.Header{}
	headers.Set("x-alert-id", alert.AlertID)
	headers.Set("x-rule-id", strconv.FormatInt(alert.RuleID, 10))
	headers.Set("x-fingerprint", alert.Fingerprint)
	headers.Set("x-level", strconv.Itoa(alert.Level))
	headers.Set("x-change", change)

	msg := &nats.Msg{
		Subject: SubjectAlerts,
		Data:    body,
		Header:  headers,
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	p.logger.Info("Published alert",
		"alert_id", alert.AlertID,
		"rule_id", alert.RuleID,
		"fingerprint", alert.Fingerprint,
		"change", change,
		"subject", SubjectAlerts)
	return nil
}
