// Package metrics holds the Prometheus instrumentation for the aggregator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for the aggregator service
type Metrics struct {
	EventsIngestedTotal    prometheus.Counter
	EventsInvalidTotal     prometheus.Counter
	EventsSkippedTotal     prometheus.Counter
	ScansTotal             prometheus.Counter
	ScanErrorsTotal        prometheus.Counter
	ScanDuration           prometheus.Histogram
	AlertsCreatedTotal     prometheus.Counter
	AlertsUpdatedTotal     prometheus.Counter
	AlertsClosedTotal      prometheus.Counter
	AlertsRecoveredTotal   prometheus.Counter
	SessionsConfirmedTotal prometheus.Counter
	RecoveryLinksTotal     prometheus.Counter
	RecoverySkipsTotal     prometheus.Counter
	WriteConflictsTotal    prometheus.Counter
	PublishErrorsTotal     prometheus.Counter
	StrategiesLoaded       prometheus.Gauge
	ActiveAlerts           prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a Metrics instance registered on reg. Tests pass
// their own registry so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsIngestedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "alertflux_events_ingested_total",
			Help: "Total number of events accepted by the intake",
		}),
		EventsInvalidTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "alertflux_events_invalid_total",
			Help: "Total number of invalid events rejected",
		}),
		EventsSkippedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "alertflux_events_skipped_total",
			Help: "Total number of aggregation rows skipped for data quality",
		}),
		ScansTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "alertflux_scans_total",
			Help: "Total number of strategy scans executed",
		}),
		ScanErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "alertflux_scan_errors_total",
			Help: "Total number of strategy scans that failed",
		}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "alertflux_scan_duration_seconds",
			Help:    "Duration of a single strategy scan",
			Buckets: prometheus.DefBuckets,
		}),
		AlertsCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "alertflux_alerts_created_total",
			Help: "Total number of alerts created",
		}),
		AlertsUpdatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "alertflux_alerts_updated_total",
			Help: "Total number of alerts updated with new events",
		}),
		AlertsClosedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "alertflux_alerts_closed_total",
			Help: "Total number of alerts closed automatically",
		}),
		AlertsRecoveredTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "alertflux_alerts_recovered_total",
			Help: "Total number of session alerts marked recovered",
		}),
		SessionsConfirmedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "alertflux_sessions_confirmed_total",
			Help: "Total number of session alerts confirmed after their observation window",
		}),
		RecoveryLinksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "alertflux_recovery_links_total",
			Help: "Total number of recovery events linked to active alerts",
		}),
		RecoverySkipsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "alertflux_recovery_skips_total",
			Help: "Total number of recovery events skipped as already linked",
		}),
		WriteConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "alertflux_alert_write_conflicts_total",
			Help: "Total number of alert updates lost to a concurrent version bump",
		}),
		PublishErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "alertflux_publish_errors_total",
			Help: "Total number of alert publish errors",
		}),
		StrategiesLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "alertflux_strategies_loaded",
			Help: "Number of enabled strategies in the current snapshot",
		}),
		ActiveAlerts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "alertflux_active_alerts",
			Help: "Number of alerts currently in an active status",
		}),
	}
}

// IncrementEventsIngested increments the events ingested counter
func (m *Metrics) IncrementEventsIngested(n int) {
	m.EventsIngestedTotal.Add(float64(n))
}

// IncrementEventsInvalid increments the invalid events counter
func (m *Metrics) IncrementEventsInvalid() {
	m.EventsInvalidTotal.Inc()
}

// IncrementEventsSkipped increments the skipped aggregation rows counter
func (m *Metrics) IncrementEventsSkipped() {
	m.EventsSkippedTotal.Inc()
}

// ObserveScan records one finished scan with its outcome and duration
func (m *Metrics) ObserveScan(seconds float64, err error) {
	m.ScansTotal.Inc()
	m.ScanDuration.Observe(seconds)
	if err != nil {
		m.ScanErrorsTotal.Inc()
	}
}

// IncrementAlertsCreated increments the alerts created counter
func (m *Metrics) IncrementAlertsCreated() {
	m.AlertsCreatedTotal.Inc()
}

// IncrementAlertsUpdated increments the alerts updated counter
func (m *Metrics) IncrementAlertsUpdated() {
	m.AlertsUpdatedTotal.Inc()
}

// IncrementAlertsClosed adds n to the alerts closed counter
func (m *Metrics) IncrementAlertsClosed(n int) {
	m.AlertsClosedTotal.Add(float64(n))
}

// IncrementAlertsRecovered increments the recovered alerts counter
func (m *Metrics) IncrementAlertsRecovered() {
	m.AlertsRecoveredTotal.Inc()
}

// IncrementSessionsConfirmed adds n to the confirmed sessions counter
func (m *Metrics) IncrementSessionsConfirmed(n int) {
	m.SessionsConfirmedTotal.Add(float64(n))
}

// IncrementRecoveryLinks records one recovery batch's linked and skipped counts
func (m *Metrics) IncrementRecoveryLinks(linked, skipped int) {
	m.RecoveryLinksTotal.Add(float64(linked))
	m.RecoverySkipsTotal.Add(float64(skipped))
}

// IncrementWriteConflicts increments the write conflict counter
func (m *Metrics) IncrementWriteConflicts() {
	m.WriteConflictsTotal.Inc()
}

// IncrementPublishErrors increments the publish error counter
func (m *Metrics) IncrementPublishErrors() {
	m.PublishErrorsTotal.Inc()
}

// SetStrategiesLoaded sets the loaded strategies gauge
func (m *Metrics) SetStrategiesLoaded(n float64) {
	m.StrategiesLoaded.Set(n)
}

// SetActiveAlerts sets the active alerts gauge
func (m *Metrics) SetActiveAlerts(n float64) {
	m.ActiveAlerts.Set(n)
}
