package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.IncrementEventsIngested(3)
	m.IncrementEventsInvalid()
	m.IncrementAlertsCreated()
	m.IncrementAlertsClosed(2)
	m.IncrementRecoveryLinks(4, 1)
	m.IncrementWriteConflicts()
	m.SetStrategiesLoaded(7)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsIngestedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsInvalidTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsCreatedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AlertsClosedTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.RecoveryLinksTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecoverySkipsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WriteConflictsTotal))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.StrategiesLoaded))
}

func TestObserveScanCountsErrors(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.ObserveScan(0.25, nil)
	m.ObserveScan(0.5, errors.New("engine exploded"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ScansTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScanErrorsTotal))
}
